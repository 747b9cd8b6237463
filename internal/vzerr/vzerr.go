// Package vzerr defines the error kinds the VZFS core signals to its
// callers (one kind per failure mode, looked up with errors.Is/errors.As
// at the boundary that turns it into a protocol reply).
package vzerr

import "fmt"

// Kind identifies one of the error categories VZFS distinguishes.
// The Operator maps a Kind to the failure reason it puts in a reply.
type Kind int

const (
	_ Kind = iota
	InvalidPath
	NotFound
	NotALeaf
	NotADirectory
	Exists
	NotEmpty
	AlreadyEmpty
	Contended
	StoreError
)

func (k Kind) String() string {
	switch k {
	case InvalidPath:
		return "InvalidPath"
	case NotFound:
		return "NotFound"
	case NotALeaf:
		return "NotALeaf"
	case NotADirectory:
		return "NotADirectory"
	case Exists:
		return "Exists"
	case NotEmpty:
		return "NotEmpty"
	case AlreadyEmpty:
		return "AlreadyEmpty"
	case Contended:
		return "Contended"
	case StoreError:
		return "StoreError"
	default:
		return "Unknown"
	}
}

// E is the concrete error type carrying a Kind. Callers recover the kind
// with errors.As(err, &e); wrapping with fmt.Errorf("...: %w", err) at
// intermediate layers preserves it.
type E struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *E) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *E) Unwrap() error { return e.Err }

// Is reports whether target is an *E with the same Kind, so that
// errors.Is(err, vzerr.New(vzerr.NotFound, "", nil)) reads naturally
// without needing a dedicated sentinel per op.
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *E. op is conventionally "package.Func".
func New(kind Kind, op string, err error) *E {
	return &E{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind of err if it (or something it wraps) is an *E,
// and StoreError otherwise -- every non-vzerr failure surfaced by the
// store layer is reported to the actor protocol as an opaque StoreError.
func Of(err error) Kind {
	var e *E
	if As(err, &e) {
		return e.Kind
	}
	return StoreError
}

// As walks err's Unwrap chain and stores the first *E it finds in
// target, reporting whether it found one.
func As(err error, target **E) bool {
	for err != nil {
		if e, ok := err.(*E); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
