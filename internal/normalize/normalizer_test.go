package normalize

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/aescanero/dago-task-gateway/internal/domain"
)

func newNormalizer(t *testing.T, opts ...Option) *Normalizer {
	t.Helper()
	n, err := New(opts...)
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	return n
}

func str(s string) *string { return &s }

func TestMissingClosingBraceIsRepaired(t *testing.T) {
	n := newNormalizer(t)
	raw := `Here is your answer {"tasks":{"text":"Paris","image":null,"audio":null,"web":null}`

	res := n.Normalize(domain.RawOutput{Text: raw}, "What is the capital of France?")
	if res.Stage != StageRepair {
		t.Fatalf("expected repair stage, got %s (%s)", res.Stage, res.Reason)
	}
	want := domain.RoutingDecision{
		Tasks:         domain.Tasks{Text: str("Paris")},
		FinalDecision: domain.DecisionText,
	}
	if !reflect.DeepEqual(res.Decision, want) {
		t.Fatalf("got %+v want %+v", res.Decision, want)
	}
}

func TestEmptyOutputFallsBack(t *testing.T) {
	n := newNormalizer(t)
	res := n.Normalize(domain.RawOutput{Text: ""}, "draw a cat")

	if res.Stage != StageFallback {
		t.Fatalf("expected fallback, got %s", res.Stage)
	}
	data, err := json.Marshal(res.Decision)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"tasks":{"text":"draw a cat","image":null,"audio":null,"web":null},"final_decision":"text"}`
	if string(data) != want {
		t.Fatalf("got %s want %s", data, want)
	}
}

func TestUpstreamFailureFallsBack(t *testing.T) {
	n := newNormalizer(t)
	res := n.Normalize(domain.RawOutput{
		Text:    `{"tasks":{"image":"ignored"}}`,
		Failure: &domain.Failure{Kind: domain.FailureTimeout, Message: "worker a:1 timed out"},
	}, "draw a cat")

	if res.Stage != StageFallback {
		t.Fatalf("expected fallback, got %s", res.Stage)
	}
	if res.Decision.Tasks.Text == nil || *res.Decision.Tasks.Text != "draw a cat" {
		t.Fatalf("fallback should carry the prompt, got %+v", res.Decision.Tasks)
	}
	if res.Reason == "" {
		t.Fatalf("expected a reason")
	}
}

func TestStages(t *testing.T) {
	n := newNormalizer(t)

	tests := []struct {
		name     string
		raw      string
		stage    Stage
		decision domain.Decision
		text     *string
		image    *string
	}{
		{
			name:     "valid json",
			raw:      `{"tasks":{"text":"explain lift","image":null,"audio":null,"web":null},"final_decision":"text"}`,
			stage:    StageDirect,
			decision: domain.DecisionText,
			text:     str("explain lift"),
		},
		{
			name:     "surrounding prose",
			raw:      "Sure! {\"tasks\":{\"text\":null,\"image\":\"a bird\",\"audio\":null,\"web\":null}} Hope that helps.",
			stage:    StageExtract,
			decision: domain.DecisionImage,
			image:    str("a bird"),
		},
		{
			name:     "code fence",
			raw:      "```json\n{\"tasks\":{\"text\":\"aerodynamics\",\"image\":\"a bird\"}}\n```",
			stage:    StageExtract,
			decision: domain.DecisionCombination,
			text:     str("aerodynamics"),
			image:    str("a bird"),
		},
		{
			name:     "missing opening brace",
			raw:      `"tasks":{"text":"Paris","image":null,"audio":null,"web":null},"final_decision":"text"}`,
			stage:    StageRepair,
			decision: domain.DecisionText,
			text:     str("Paris"),
		},
		{
			name:     "truncated string",
			raw:      `{"tasks":{"text":null,"image":"a sunset over the se`,
			stage:    StageRepair,
			decision: domain.DecisionImage,
			image:    str("a sunset over the se"),
		},
		{
			name:     "trailing comma",
			raw:      `{"tasks":{"text":"hello",`,
			stage:    StageRepair,
			decision: domain.DecisionText,
			text:     str("hello"),
		},
		{
			name:     "braces inside strings",
			raw:      `noise {"tasks":{"text":"use {curly} braces","image":null}} noise`,
			stage:    StageExtract,
			decision: domain.DecisionText,
			text:     str("use {curly} braces"),
		},
		{
			name:     "prose only",
			raw:      "I think you should draw a cat.",
			stage:    StageFallback,
			decision: domain.DecisionText,
			text:     str("prompt"),
		},
		{
			name:     "json without tasks",
			raw:      `{"answer":"Paris"}`,
			stage:    StageFallback,
			decision: domain.DecisionText,
			text:     str("prompt"),
		},
		{
			name:     "tasks is not an object",
			raw:      `{"tasks":"text"}`,
			stage:    StageFallback,
			decision: domain.DecisionText,
			text:     str("prompt"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := n.Normalize(domain.RawOutput{Text: tt.raw}, "prompt")
			if res.Stage != tt.stage {
				t.Fatalf("stage: got %s want %s", res.Stage, tt.stage)
			}
			if res.Decision.FinalDecision != tt.decision {
				t.Fatalf("decision: got %s want %s", res.Decision.FinalDecision, tt.decision)
			}
			if !reflect.DeepEqual(res.Decision.Tasks.Text, tt.text) {
				t.Fatalf("text slot: got %v want %v", deref(res.Decision.Tasks.Text), deref(tt.text))
			}
			if !reflect.DeepEqual(res.Decision.Tasks.Image, tt.image) {
				t.Fatalf("image slot: got %v want %v", deref(res.Decision.Tasks.Image), deref(tt.image))
			}
		})
	}
}

func TestSlotCoercion(t *testing.T) {
	n := newNormalizer(t)
	d, ok := n.Direct(`{"tasks":{"text":"  padded  ","image":"","audio":42,"web":{"q":"news"}}}`)
	if !ok {
		t.Fatalf("expected direct parse")
	}
	if deref(d.Tasks.Text) != "padded" {
		t.Fatalf("expected trimmed text, got %q", deref(d.Tasks.Text))
	}
	if d.Tasks.Image != nil {
		t.Fatalf("blank slot should be null")
	}
	if deref(d.Tasks.Audio) != "42" {
		t.Fatalf("expected number rendered as text, got %q", deref(d.Tasks.Audio))
	}
	if deref(d.Tasks.Web) != `{"q":"news"}` {
		t.Fatalf("expected object rendered as JSON, got %q", deref(d.Tasks.Web))
	}
	if d.FinalDecision != domain.DecisionCombination {
		t.Fatalf("expected combination, got %s", d.FinalDecision)
	}
}

func TestFinalDecisionKeptOrInferred(t *testing.T) {
	n := newNormalizer(t)

	d, _ := n.Direct(`{"tasks":{"text":"a","image":"b"},"final_decision":"IMAGE"}`)
	if d.FinalDecision != domain.DecisionImage {
		t.Fatalf("expected valid decision to be kept, got %s", d.FinalDecision)
	}

	d, _ = n.Direct(`{"tasks":{"web":"latest news"},"final_decision":"search"}`)
	if d.FinalDecision != domain.DecisionWeb {
		t.Fatalf("expected invalid decision to be inferred as web, got %s", d.FinalDecision)
	}

	d, _ = n.Direct(`{"tasks":{}}`)
	if d.FinalDecision != domain.DecisionText {
		t.Fatalf("expected empty tasks to infer text, got %s", d.FinalDecision)
	}
}

func TestCustomDecisionExpr(t *testing.T) {
	n := newNormalizer(t, WithDecisionExpr(`"web" in active ? "web" : "text"`))
	d, ok := n.Direct(`{"tasks":{"text":"a","web":"b"}}`)
	if !ok {
		t.Fatalf("expected parse")
	}
	if d.FinalDecision != domain.DecisionWeb {
		t.Fatalf("got %s", d.FinalDecision)
	}

	n = newNormalizer(t, WithDecisionExpr(`"nonsense"`))
	d, _ = n.Direct(`{"tasks":{"image":"a"}}`)
	if d.FinalDecision != domain.DecisionText {
		t.Fatalf("expected unknown decisions to map to text, got %s", d.FinalDecision)
	}

	if _, err := New(WithDecisionExpr(`size(active)`)); err == nil {
		t.Fatalf("expected non-string expression to be rejected")
	}
}

var corpus = []string{
	"",
	"   ",
	"{",
	"}",
	"{}",
	"{{{{",
	"}}}}{{{{",
	`"`,
	`{"tasks":`,
	`{"tasks":{`,
	`{"tasks":{"text":"\`,
	`{"tasks":{"text":"a\"b"}}`,
	`{"tasks":[1,2,3]}`,
	`[{"tasks":{"text":"a"}}]`,
	`null`,
	`42`,
	"plain prose with no json at all",
	"```\n```",
	"```json\n{\"tasks\":{\"audio\":\"rain sounds\"}\n```",
	`{"tasks":{"text":"a","image":"b","audio":"c","web":"d"},"final_decision":"combination"}`,
	`Here is your answer {"tasks":{"text":"Paris","image":null,"audio":null,"web":null}`,
	`{"tasks":{"text":"x"}} {"tasks":{"image":"a much longer image prompt here"}}`,
	`{"tasks":{"text":"first"}}{"other":"value that is considerably longer than the first one"}`,
	`{"tasks":{"text":null,"image":null,"audio":null,"web":null}}`,
	"\x00\xff\xfe{",
	"{\"tasks\":{\"text\":\"caf\xe9\",\"image\":null,\"audio\":null,\"web\":null}}",
	"{\"tasks\":{\"image\":\"\xff\xfe a cat \xc3\"},\"final_decision\":\"image\"}",
	`Use {curly} style. Note { here: {"tasks":{"text":null,"image":"a cat","audio":null,"web":null},"final_decision":"image"}`,
}

func TestFallbackTotality(t *testing.T) {
	n := newNormalizer(t)
	for _, raw := range corpus {
		res := n.Normalize(domain.RawOutput{Text: raw}, "draw a cat")
		if !res.Decision.FinalDecision.Valid() {
			t.Fatalf("input %q produced invalid decision %q", raw, res.Decision.FinalDecision)
		}
	}
}

func TestIdempotence(t *testing.T) {
	n := newNormalizer(t)
	for _, raw := range corpus {
		first := n.Normalize(domain.RawOutput{Text: raw}, "draw a cat")
		data, err := json.Marshal(first.Decision)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		second := n.Normalize(domain.RawOutput{Text: string(data)}, "draw a cat")
		if second.Stage != StageDirect {
			t.Fatalf("input %q: re-normalizing %s took stage %s", raw, data, second.Stage)
		}
		if !reflect.DeepEqual(first.Decision, second.Decision) {
			t.Fatalf("input %q: %+v != %+v", raw, first.Decision, second.Decision)
		}
	}
}

func TestInvalidUTF8IsIdempotent(t *testing.T) {
	n := newNormalizer(t)
	tests := []struct {
		raw    string
		prompt string
		want   string
	}{
		{"{\"tasks\":{\"text\":\"caf\xe9\"}}", "anything", "caf\uFFFD"},
		{"", "draw a caf\xe9", "draw a caf\uFFFD"},
	}
	for _, tt := range tests {
		first := n.Normalize(domain.RawOutput{Text: tt.raw}, tt.prompt)
		if got := deref(first.Decision.Tasks.Text); got != tt.want {
			t.Fatalf("input %q: text = %q, want %q", tt.raw, got, tt.want)
		}
		data, err := json.Marshal(first.Decision)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		second := n.Normalize(domain.RawOutput{Text: string(data)}, tt.prompt)
		if !reflect.DeepEqual(first.Decision, second.Decision) {
			t.Fatalf("input %q: %+v != %+v", tt.raw, first.Decision, second.Decision)
		}
	}
}

func TestExtractSkipsUnclosedBrace(t *testing.T) {
	n := newNormalizer(t)
	raw := `Use {curly} style. Note { here: {"tasks":{"text":null,"image":"a cat","audio":null,"web":null},"final_decision":"image"}`

	res := n.Normalize(domain.RawOutput{Text: raw}, "draw a cat")
	if res.Stage != StageExtract {
		t.Fatalf("expected extract stage, got %s (%s)", res.Stage, res.Reason)
	}
	if deref(res.Decision.Tasks.Image) != "a cat" || res.Decision.FinalDecision != domain.DecisionImage {
		t.Fatalf("unexpected decision %+v", res.Decision)
	}
}

func TestBalancedSpans(t *testing.T) {
	tests := map[string][]string{
		"no braces":             nil,
		"{a} {b}":               {"{a}", "{b}"},
		"{ open {x}":            {"{x}"},
		`{"s":"}"} tail`:        {`{"s":"}"}`},
		"}}}}{{{{":              nil,
		`{ "unterminated {y}`:   {"{y}"},
		`{ "closed" {z} rest {`: {`{z}`},
	}
	for in, want := range tests {
		if got := balancedSpans(in); !reflect.DeepEqual(got, want) {
			t.Fatalf("balancedSpans(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractPrefersLongestSpan(t *testing.T) {
	n := newNormalizer(t)
	d, ok := n.Extract(`{"tasks":{"text":"x"}} {"tasks":{"image":"a much longer image prompt here"}}`)
	if !ok {
		t.Fatalf("expected extraction")
	}
	if d.Tasks.Image == nil {
		t.Fatalf("expected the longest span to win, got %+v", d.Tasks)
	}
}

func TestCloseStructure(t *testing.T) {
	tests := map[string]string{
		`{"a":1`:         `{"a":1}`,
		`{"a":[1,2`:      `{"a":[1,2]}`,
		`{"a":"b`:        `{"a":"b"}`,
		`{"a":`:          `{"a":null}`,
		`{"a":1,`:        `{"a":1}`,
		`{"a":{"b":"c"}}`: `{"a":{"b":"c"}}`,
	}
	for in, want := range tests {
		if got := closeStructure(in); got != want {
			t.Fatalf("closeStructure(%q) = %q, want %q", in, got, want)
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
