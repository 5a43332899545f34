package tools

import "encoding/json"

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string // content appended to the conversation for the model
	IsError bool   // marks a validation or execution failure
	Err     error  // internal error, logged but never sent to the model
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

// ErrorResult wraps message as a structured {"error": ...} object so the
// model can read the failure and continue the round.
func ErrorResult(message string) *Result {
	raw, _ := json.Marshal(map[string]string{"error": message})
	return &Result{ForLLM: string(raw), IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

// jsonResult marshals v as the LLM-facing payload. Marshal failures turn
// into error results rather than panics.
func jsonResult(v any) *Result {
	raw, err := json.Marshal(v)
	if err != nil {
		return ErrorResult("internal: " + err.Error()).WithError(err)
	}
	return NewResult(string(raw))
}
