package normalize

import (
	"context"
	"fmt"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/eval/cel"
)

// DefaultDecisionExpr picks combination for several active tools, the single
// active tool otherwise, and text when nothing is active.
const DefaultDecisionExpr = `size(active) > 1 ? "combination" : (size(active) == 1 ? active[0] : "text")`

// Decider infers final_decision from the recovered tasks.
type Decider struct {
	evaluator *cel.Evaluator
	expr      string
}

// NewDecider compiles expr, or DefaultDecisionExpr when expr is empty.
func NewDecider(expr string) (*Decider, error) {
	if expr == "" {
		expr = DefaultDecisionExpr
	}
	evaluator := cel.NewEvaluator()
	if err := evaluator.ValidateExpression(expr); err != nil {
		return nil, fmt.Errorf("invalid decision expression: %w", err)
	}
	return &Decider{evaluator: evaluator, expr: expr}, nil
}

// Decide returns the decision for tasks, or text if the expression errors or
// names something that is not a decision.
func (d *Decider) Decide(tasks domain.Tasks) domain.Decision {
	slots := make(map[string]interface{}, len(domain.Slots))
	for _, slot := range domain.Slots {
		if v := tasks.Get(slot); v != nil {
			slots[slot] = *v
		} else {
			slots[slot] = nil
		}
	}

	out, err := d.evaluator.Evaluate(context.Background(), d.expr, map[string]interface{}{
		"tasks":  slots,
		"active": tasks.Active(),
	})
	if err != nil {
		return domain.DecisionText
	}
	s, ok := out.(string)
	if !ok {
		return domain.DecisionText
	}
	decision := domain.Decision(s)
	if !decision.Valid() {
		return domain.DecisionText
	}
	return decision
}
