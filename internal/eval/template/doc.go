// Package template renders the Handlebars prompts a model worker sends to its
// engine.
//
// Templates are compiled once and cached by their source text. Helpers are
// registered globally the first time an engine is created.
//
// Example usage:
//
//	engine := template.NewEngine()
//
//	out, err := engine.Render("Question: {{trim prompt}}\nReply with JSON:", map[string]interface{}{
//	    "prompt": "  draw a cat ",
//	})
//	// out == "Question: draw a cat\nReply with JSON:"
//
// Built-in helpers:
//   - uppercase, lowercase, trim - string case and whitespace
//   - default - Return default value if first arg is empty
//   - json - Render a value as a JSON literal (unescaped)
//   - join - Join a string slice with a separator
//   - words - Count whitespace-separated words
package template
