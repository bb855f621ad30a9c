package resolver

import "fmt"

// Defect is a broken internal guarantee, such as an abstract-typed value
// without a usable __typename. It aborts the request instead of being
// reported as a field error.
type Defect struct {
	Message string
}

func Defectf(format string, args ...any) *Defect {
	return &Defect{Message: fmt.Sprintf(format, args...)}
}

func (d *Defect) Error() string { return "internal error: " + d.Message }
