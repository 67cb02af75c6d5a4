package launch

import "errors"

var (
	// ErrUnsupportedMethod marks method names or values outside the
	// compiled-in set.
	ErrUnsupportedMethod = errors.New("unsupported launch method")

	// ErrMethodNotApplicable marks methods that exist but cannot launch
	// the given task shape.
	ErrMethodNotApplicable = errors.New("launch method not applicable")
)
