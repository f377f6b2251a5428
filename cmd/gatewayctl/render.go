package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/gateway"
	"github.com/aescanero/dago-task-gateway/internal/normalize"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#DDDDDD"))
	unusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555")).Italic(true)
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	badStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func renderDecision(d domain.RoutingDecision) []string {
	lines := []string{row("decision", titleStyle.Render(string(d.FinalDecision)))}
	for _, slot := range domain.Slots {
		v := d.Tasks.Get(slot)
		if v == nil {
			lines = append(lines, row(slot, unusedStyle.Render("unused")))
			continue
		}
		lines = append(lines, row(slot, valueStyle.Render(*v)))
	}
	return lines
}

func renderEnvelope(env gateway.Envelope) string {
	lines := []string{
		row("prompt", valueStyle.Render(env.Prompt)),
		row("words", valueStyle.Render(fmt.Sprint(env.WordCount))),
	}
	lines = append(lines, renderDecision(env.Result)...)

	if d := env.Diagnostics; d != nil {
		lines = append(lines,
			row("stage", valueStyle.Render(string(d.Stage))),
			row("worker", valueStyle.Render(d.Worker)),
			row("latency", valueStyle.Render(fmt.Sprintf("%dms", d.LatencyMS))),
		)
		if d.Failure != nil {
			lines = append(lines, row("failure", badStyle.Render(d.Failure.Kind+": "+d.Failure.Message)))
		}
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderHealth(h gateway.HealthResponse, ready bool) string {
	readiness := okStyle.Render("ready")
	if !ready {
		readiness = badStyle.Render("not ready")
	}
	return boxStyle.Render(strings.Join([]string{
		row("status", valueStyle.Render(h.Status)),
		row("live workers", valueStyle.Render(fmt.Sprint(h.ModelsConnected))),
		row("readiness", readiness),
	}, "\n"))
}

func renderProbe(address, status string, elapsed time.Duration) string {
	state := okStyle.Render(status)
	if status != "SERVING" {
		state = badStyle.Render(status)
	}
	return boxStyle.Render(strings.Join([]string{
		row("worker", valueStyle.Render(address)),
		row("health", state),
		row("round trip", valueStyle.Render(elapsed.Round(time.Millisecond).String())),
	}, "\n"))
}

func renderTrial(text, workerErr string, result normalize.Result) string {
	lines := []string{}
	if workerErr != "" {
		lines = append(lines, row("worker error", badStyle.Render(workerErr)))
	} else {
		lines = append(lines, row("raw output", valueStyle.Render(text)))
	}
	lines = append(lines, row("stage", valueStyle.Render(string(result.Stage))))
	if result.Reason != "" {
		lines = append(lines, row("reason", valueStyle.Render(result.Reason)))
	}
	lines = append(lines, renderDecision(result.Decision)...)
	return boxStyle.Render(strings.Join(lines, "\n"))
}
