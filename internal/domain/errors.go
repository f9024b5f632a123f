package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ValidationError represents malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	if ok {
		return true
	}
	_, ok = target.(*ValidationError)
	return ok
}

// ConsistencyError reports a batch commit whose outcome the store could not
// guarantee. Callers retry the whole operation.
type ConsistencyError struct {
	Op  string
	Err error
}

func (e ConsistencyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: consistency error", e.Op)
	}
	return fmt.Sprintf("%s: consistency error: %v", e.Op, e.Err)
}

func (e ConsistencyError) Unwrap() error {
	return e.Err
}

func (e ConsistencyError) Is(target error) bool {
	_, ok := target.(ConsistencyError)
	if ok {
		return true
	}
	_, ok = target.(*ConsistencyError)
	return ok
}

var (
	// ErrNotFound is the sentinel error for missing resources.
	ErrNotFound = NotFoundError{}
	// ErrValidation is the sentinel error for malformed input.
	ErrValidation = ValidationError{}
	// ErrConsistency is the sentinel error for unguaranteed commits.
	ErrConsistency = ConsistencyError{}
)
