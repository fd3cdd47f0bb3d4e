package api

import "fmt"

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one structural problem reported by the validator. Node is the
// affected node name, qualified as "outer/inner" when the problem lives
// inside a sub-workflow.
//
// Issues are never fatal by themselves; callers decide whether any
// error-severity issue should abort.
type Issue struct {
	Node        string
	Description string
	Severity    Severity
}

func (i Issue) String() string {
	if i.Node == "" {
		return fmt.Sprintf("[%s] %s", i.Severity, i.Description)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Node, i.Description)
}

// HasErrors reports whether any issue in the list carries error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
