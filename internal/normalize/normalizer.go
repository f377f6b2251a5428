package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/tidwall/gjson"
)

// Stage names the pipeline stage that produced a decision.
type Stage string

const (
	StageDirect   Stage = "direct"
	StageExtract  Stage = "extract"
	StageRepair   Stage = "repair"
	StageFallback Stage = "fallback"
)

// Result is the outcome of one normalization.
type Result struct {
	Decision domain.RoutingDecision
	Stage    Stage
	Reason   string
}

// Option configures a Normalizer.
type Option func(*options)

type options struct {
	decisionExpr string
}

// WithDecisionExpr overrides the CEL expression used to infer final_decision.
func WithDecisionExpr(expr string) Option {
	return func(o *options) {
		o.decisionExpr = expr
	}
}

// Normalizer runs the staged extraction pipeline.
type Normalizer struct {
	decider *Decider
}

// New creates a normalizer.
func New(opts ...Option) (*Normalizer, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	decider, err := NewDecider(o.decisionExpr)
	if err != nil {
		return nil, err
	}
	return &Normalizer{decider: decider}, nil
}

// Normalize converts raw into a decision. It never fails.
func (n *Normalizer) Normalize(raw domain.RawOutput, prompt string) Result {
	if raw.Failure != nil {
		return Fallback(prompt, fmt.Sprintf("upstream %s failure: %s", raw.Failure.Kind, raw.Failure.Message))
	}

	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return Fallback(prompt, "empty output")
	}

	if d, ok := n.Direct(text); ok {
		return Result{Decision: d, Stage: StageDirect}
	}
	if d, ok := n.Extract(text); ok {
		return Result{Decision: d, Stage: StageExtract}
	}
	if d, ok := n.Repair(text); ok {
		return Result{Decision: d, Stage: StageRepair}
	}

	return Fallback(prompt, "output could not be parsed")
}

// Direct parses the whole text as a decision.
func (n *Normalizer) Direct(text string) (domain.RoutingDecision, bool) {
	return n.decode(strings.TrimSpace(text))
}

// Extract tries every balanced {...} span, longest first, then the span from
// the first '{' to the last '}'.
func (n *Normalizer) Extract(text string) (domain.RoutingDecision, bool) {
	for _, candidate := range extractCandidates(text) {
		if d, ok := n.decode(candidate); ok {
			return d, true
		}
	}
	return domain.RoutingDecision{}, false
}

// Repair synthesizes missing delimiters. It tries the text with a leading '{'
// added (when absent) and the text cut at its first '{', closing any open
// string and brackets in each.
func (n *Normalizer) Repair(text string) (domain.RoutingDecision, bool) {
	body := stripFences(strings.TrimSpace(text))
	if body == "" {
		return domain.RoutingDecision{}, false
	}

	var candidates []string
	if !strings.HasPrefix(body, "{") {
		candidates = append(candidates, closeStructure("{"+body))
	}
	if i := strings.Index(body, "{"); i >= 0 {
		candidates = append(candidates, closeStructure(body[i:]))
	}

	for _, candidate := range candidates {
		if d, ok := n.decode(candidate); ok {
			return d, true
		}
	}
	return domain.RoutingDecision{}, false
}

// Fallback routes prompt to the text tool.
func Fallback(prompt, reason string) Result {
	return Result{
		Decision: domain.FallbackDecision(prompt),
		Stage:    StageFallback,
		Reason:   reason,
	}
}

func (n *Normalizer) decode(s string) (domain.RoutingDecision, bool) {
	if !gjson.Valid(s) {
		return domain.RoutingDecision{}, false
	}
	root := gjson.Parse(s)
	if !root.IsObject() {
		return domain.RoutingDecision{}, false
	}
	tasks := root.Get("tasks")
	if !tasks.IsObject() {
		return domain.RoutingDecision{}, false
	}

	var d domain.RoutingDecision
	for _, slot := range domain.Slots {
		d.Tasks.Set(slot, coerceSlot(tasks.Get(slot)))
	}

	decision := domain.Decision(strings.ToLower(strings.TrimSpace(root.Get("final_decision").String())))
	if !decision.Valid() {
		decision = n.decider.Decide(d.Tasks)
	}
	d.FinalDecision = decision

	return d, true
}

// coerceSlot maps a JSON value to a slot prompt. Null and blank strings mean
// the tool is unused; other non-string values keep their JSON text. Invalid
// UTF-8 is replaced so the value survives re-encoding unchanged.
func coerceSlot(v gjson.Result) *string {
	var s string
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.String:
		s = v.Str
	default:
		s = v.Raw
	}
	s = strings.TrimSpace(strings.ToValidUTF8(s, "\uFFFD"))
	if s == "" {
		return nil
	}
	return &s
}

func extractCandidates(text string) []string {
	spans := balancedSpans(text)
	sort.SliceStable(spans, func(i, j int) bool {
		return len(spans[i]) > len(spans[j])
	})

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		greedy := text[start : end+1]
		seen := false
		for _, span := range spans {
			if span == greedy {
				seen = true
				break
			}
		}
		if !seen {
			spans = append(spans, greedy)
		}
	}
	return spans
}

// balancedSpans returns every outermost {...} span whose braces balance,
// ignoring braces inside JSON strings. An opening brace that never closes is
// skipped and the scan resumes after it.
func balancedSpans(text string) []string {
	var spans []string
	for from := 0; from < len(text); {
		i := strings.IndexByte(text[from:], '{')
		if i < 0 {
			break
		}
		start := from + i
		end := matchBrace(text, start)
		if end < 0 {
			from = start + 1
			continue
		}
		spans = append(spans, text[start:end+1])
		from = end + 1
	}
	return spans
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// closeStructure appends whatever is needed to terminate an open string and
// close open objects and arrays.
func closeStructure(s string) string {
	var stack []byte
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		if escape {
			b.WriteString(`\`)
		}
		b.WriteString(`"`)
	} else {
		trimmed := strings.TrimRight(s, " \t\r\n")
		switch {
		case strings.HasSuffix(trimmed, ","):
			b.Reset()
			b.WriteString(strings.TrimSuffix(trimmed, ","))
		case strings.HasSuffix(trimmed, ":"):
			b.WriteString("null")
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func stripFences(s string) string {
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimLeft(strings.TrimPrefix(s, "```"), "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		}
	}
	if last := strings.LastIndex(s, "```"); last >= 0 {
		s = s[:last]
	}
	return strings.TrimSpace(s)
}
