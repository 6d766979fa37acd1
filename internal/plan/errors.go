package plan

import "errors"

// Sentinel errors
var (
	ErrDependencyUnresolved = errors.New("plan: dependency unresolved")
	ErrDependencyCycle      = errors.New("plan: dependency cycle")
	ErrInvalidPlan          = errors.New("plan: invalid plan")
	ErrInvalidArgument      = errors.New("plan: invalid argument")
	ErrMissingEnv           = errors.New("plan: environment variable not set")
)
