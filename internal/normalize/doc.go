// Package normalize turns raw model output into a RoutingDecision.
//
// The pipeline runs four stages in a fixed order and stops at the first that
// succeeds:
//
//  1. direct   - the whole text is a JSON object with a tasks object
//  2. extract  - the longest balanced {...} span in the text parses
//  3. repair   - missing opening or closing delimiters are synthesized
//  4. fallback - the prompt is routed to the text tool
//
// The fallback stage cannot fail, so Normalize always returns a decision with
// final_decision set. Every stage is pure; running the pipeline on the JSON
// encoding of its own output returns the same decision.
//
// Example usage:
//
//	n, err := normalize.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res := n.Normalize(domain.RawOutput{Text: raw}, prompt)
//	fmt.Println(res.Stage, res.Decision.FinalDecision)
package normalize
