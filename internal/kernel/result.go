package kernel

import (
	"fmt"
	"strings"
)

// Error codes carried on Result.ErrCode. Action and hook errors never
// propagate as Go errors past the executor bridge; they are normalised
// into a Result and fed back to the model.
const (
	ErrPatternNotFound     = "PATTERN_NOT_FOUND"
	ErrAmbiguous           = "AMBIGUOUS"
	ErrDestructiveRejected = "DESTRUCTIVE_REJECTED"
	ErrForbidden           = "FORBIDDEN"
	ErrTimeout             = "TIMEOUT"
	ErrDenied              = "DENIED"
	ErrMissingEndTask      = "MISSING_END_TASK"
	ErrNotFound            = "NOT_FOUND"
	ErrIO                  = "IO"
	ErrUnknown             = "UNKNOWN"
)

// maxErrorRawChars bounds the raw output appended to LLM-facing error text.
const maxErrorRawChars = 4000

// Result is the unified dual-track return type from tool and action execution.
// The LLM sees ForLLM when present, else Output; the user sees ForUser unless
// Silent. The two tracks are independent.
type Result struct {
	OK       bool                   `json:"ok"`
	Output   string                 `json:"output,omitempty"`
	ForLLM   string                 `json:"for_llm,omitempty"`
	ForUser  string                 `json:"for_user,omitempty"`
	Silent   bool                   `json:"silent,omitempty"`
	ErrCode  string                 `json:"err_code,omitempty"`
	ErrMsg   string                 `json:"err_msg,omitempty"`
	Hint     string                 `json:"hint,omitempty"`
	Raw      string                 `json:"-"` // raw output attached to error text for diagnosis
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func NewResult(output string) *Result {
	return &Result{OK: true, Output: output}
}

func SilentResult(output string) *Result {
	return &Result{OK: true, Output: output, Silent: true}
}

func UserResult(forLLM, forUser string) *Result {
	return &Result{OK: true, ForLLM: forLLM, ForUser: forUser}
}

func ErrorResult(code, message string) *Result {
	return &Result{ErrCode: code, ErrMsg: message}
}

func (r *Result) WithHint(hint string) *Result {
	r.Hint = hint
	return r
}

func (r *Result) WithRaw(raw string) *Result {
	r.Raw = raw
	return r
}

// LLMText renders the result for the model. Errors are prefixed
// "ERROR [<code>]: <message> (hint: <hint>)" with up to 4000 chars of raw
// output appended so the model can diagnose.
func (r *Result) LLMText() string {
	if r.OK {
		if r.ForLLM != "" {
			return r.ForLLM
		}
		return r.Output
	}

	var b strings.Builder
	code := r.ErrCode
	if code == "" {
		code = ErrUnknown
	}
	fmt.Fprintf(&b, "ERROR [%s]: %s", code, r.ErrMsg)
	if r.Hint != "" {
		fmt.Fprintf(&b, " (hint: %s)", r.Hint)
	}
	if r.Raw != "" {
		raw := r.Raw
		if len(raw) > maxErrorRawChars {
			raw = raw[:maxErrorRawChars]
		}
		b.WriteString("\n")
		b.WriteString(raw)
	}
	return b.String()
}

// UserText renders the result for the user, or "" when nothing should surface.
func (r *Result) UserText() string {
	if r.Silent {
		return ""
	}
	if r.ForUser != "" {
		return r.ForUser
	}
	if !r.OK {
		return fmt.Sprintf("error: %s", r.ErrMsg)
	}
	return ""
}
