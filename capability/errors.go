package capability

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by restricted-context substitutes for
// capabilities that have no safe equivalent. It is always fatal to the one
// call and never retried automatically.
var ErrUnavailable = errors.New("capability: not available in this environment")

// unavailable wraps ErrUnavailable with the name of the operation so callers
// can distinguish "empty result" from "operation unsupported".
func unavailable(op string) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, op)
}
