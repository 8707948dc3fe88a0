package locator

// Error is a sentinel error type for locator lookups.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

var (
	// ErrNotFound is returned when no service, factory or alias matches a name.
	ErrNotFound = Error("service not found")

	// ErrEmptyName is returned when registering under an empty name.
	ErrEmptyName = Error("service name cannot be empty")

	// ErrNilFactory is returned when registering a nil factory.
	ErrNilFactory = Error("factory cannot be nil")

	// ErrAliasCycle is returned when an alias chain loops back on itself.
	ErrAliasCycle = Error("alias cycle detected")
)
