// Package cel provides a CEL (Common Expression Language) evaluator for the
// final-decision rule of the output normalizer.
//
// When a model returns a task breakdown without a usable final_decision, the
// normalizer derives one by evaluating a single CEL expression over the
// recovered tasks. The expression sees two variables:
//
//   - tasks:  map of slot name (text, image, audio, web) to prompt or null
//   - active: list of the non-null slot names, in canonical order
//
// and must return a string naming a decision.
//
// Example usage:
//
//	evaluator := cel.NewEvaluator()
//
//	vars := map[string]interface{}{
//	    "tasks":  map[string]interface{}{"text": "explain lift", "image": "a bird", "audio": nil, "web": nil},
//	    "active": []string{"text", "image"},
//	}
//
//	result, err := evaluator.Evaluate(ctx, `size(active) > 1 ? "combination" : "text"`, vars)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decision := result.(string) // "combination"
package cel
