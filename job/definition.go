package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the job name stored on each enqueued record.
	Name string

	// Handler processes the decoded payload. progress may be called any
	// number of times while the handler runs.
	Handler func(ctx context.Context, payload T, progress Progress) error
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T, progress Progress) error) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
	}
}
