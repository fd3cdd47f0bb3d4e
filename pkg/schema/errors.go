package schema

import "fmt"

// DocumentError reports a single defect found in a Document.
type DocumentError struct {
	Path   string // dotted location, e.g. "nodes.classify" or "workflow.transitions[2]"
	Reason string
}

func (e *DocumentError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// AggregateError collects every defect of a Document so callers see them all
// at once instead of fixing them one by one.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d document errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// DocumentErrors returns the collected defects if err is an AggregateError,
// nil otherwise.
func DocumentErrors(err error) []error {
	if aggr, ok := err.(*AggregateError); ok {
		return aggr.Errors
	}
	return nil
}

func aggregate(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: errs}
}
