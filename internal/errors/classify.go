package errors

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	// KindOK means there was no error.
	KindOK Kind = iota
	// KindConflict is a lost compare-and-swap; re-reading and retrying may succeed.
	KindConflict
	// KindInvalid is a caller error; retrying won't help.
	KindInvalid
	// KindFault is everything else.
	KindFault
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	default:
		return "fault"
	}
}

// Classify maps an error onto a Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case IsConflictError(err):
		return KindConflict
	case IsValidationError(err), IsNotFoundError(err), IsNotConfiguredError(err):
		return KindInvalid
	default:
		return KindFault
	}
}
