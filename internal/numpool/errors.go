package numpool

// Error is a typed pool failure with a stable machine code. The code is
// surfaced by the handler summary logging (err_code attribute).
type Error struct {
	code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Code returns the stable machine-readable code for this failure.
func (e *Error) Code() string { return e.code }

var (
	// ErrExhausted reports that no number is currently available. Recoverable:
	// the requester retries once numbers free up.
	ErrExhausted = &Error{code: "EXHAUSTED", msg: "no numbers available"}
	// ErrNotFound reports an operation referencing a number outside the pool.
	ErrNotFound = &Error{code: "NOT_FOUND", msg: "number not in pool"}
)
