package resolver

import (
	"fmt"
	"strings"

	value "github.com/hanpama/entityql/internal/value"
)

// Path locates a value in the response: field response keys and list indexes.
type Path []any

func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		}
	}
	return b.String()
}

// Append returns a copy of p extended with elem.
func (p Path) Append(elem any) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = elem
	return out
}

// Error is a GraphQL error reported in a response.
type Error struct {
	Message    string         `json:"message"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`

	err error
}

// NewError wraps err as a response error at path.
func NewError(err error, path Path) *Error {
	return &Error{Message: err.Error(), Path: path, err: err}
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.err }

// Result is the response to one operation.
type Result struct {
	Data       value.Value    `json:"data"`
	Errors     []*Error       `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// HasErrors reports whether the result carries any error.
func (r *Result) HasErrors() bool { return r != nil && len(r.Errors) > 0 }
