package app

import "romba-go/internal/romba"

// Operation tracks the CLI command being run. Operations live in memory
// until a command that changes the index or a depot persists them.
type Operation struct {
	ID         string
	Operation  string
	Parameters string
	Status     string

	persisted bool
}

// NewOperation creates an in-memory operation that succeeds unless Fail is
// called with an error.
func NewOperation(id, operation, parameters string) *Operation {
	return &Operation{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		Status:     romba.OperationSuccess,
	}
}

// Persisted returns true if this operation has been saved to the index.
func (op *Operation) Persisted() bool {
	return op.persisted
}

// Fail marks the operation failed when err is non-nil and returns err.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = romba.OperationFailed
	}
	return err
}
