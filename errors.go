package sqlcall

// DriverError represents a failure surfaced by the underlying database
// call. It is propagated unchanged to the caller; the adapter never
// swallows one, except the statement-clear step during Close.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op
}

func (e *DriverError) Unwrap() error { return e.Err }

// StateError represents an operation attempted in the wrong handle state,
// typically after Close.
type StateError struct {
	Op      string
	Message string
}

func (e *StateError) Error() string {
	return e.Op + ": " + e.Message
}

// ArgumentError represents a missing or invalid caller-supplied argument:
// an absent extractor or mapper, an identifier that is neither a name nor
// a positive ordinal, a NULL whose type cannot be derived.
type ArgumentError struct {
	Op      string
	Message string
}

func (e *ArgumentError) Error() string {
	return e.Op + ": " + e.Message
}

func driverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Op: op, Err: err}
}
