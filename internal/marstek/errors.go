package marstek

import (
	"errors"
	"fmt"
)

// Classified failure kinds for the Marstek Cloud API client.
//
// Every error returned by the client wraps exactly one of these, so callers
// can classify with errors.Is() without parsing message text:
//
//	if errors.Is(err, marstek.ErrInvalidCredentials) {
//	    // credentials are wrong - do not retry automatically
//	}
var (
	// ErrInvalidCredentials is returned when the login endpoint rejects the
	// email/password pair (HTTP 401). Not retryable; requires new credentials.
	ErrInvalidCredentials = errors.New("marstek: invalid email or password")

	// ErrPermissionDenied is returned when the device-list endpoint answers
	// with code 8: the account exists but has no API access. The session
	// token is cleared before this is returned. Distinct from
	// ErrInvalidCredentials - re-entering the same credentials will not help,
	// but neither is a re-auth needed.
	ErrPermissionDenied = errors.New("marstek: api access denied (code 8) - account may not have api permissions")

	// ErrTransient covers every failure worth retrying on the next cycle:
	// network faults, timeouts, server-side 5xx, malformed response bodies.
	ErrTransient = errors.New("marstek: transient api failure")
)

// transientf builds an ErrTransient-classed error with a descriptive message.
// Never call it with an already-classified error as an argument; classified
// errors must re-propagate unchanged.
func transientf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrTransient}, args...)...)
}

// isClassified reports whether err already carries one of the public kinds.
func isClassified(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrTransient)
}
