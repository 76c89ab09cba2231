package sqlcheck

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
)

// CheckValue uses libinjection to detect SQL injection patterns in a
// caller-supplied value. Only string values are checked; numbers, booleans,
// and other types cannot carry injection payloads.
//
// Returns nil if the value is clean, or an error wrapping
// apperrors.ErrUnsafeValue with the libinjection fingerprint.
func CheckValue(name string, value any) error {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return fmt.Errorf("%w: parameter %q matched injection fingerprint %q",
			apperrors.ErrUnsafeValue, name, fingerprint)
	}
	return nil
}

// CheckValues validates positional parameter values, naming them $1..$n in
// any returned error.
func CheckValues(values []any) error {
	for i, v := range values {
		if err := CheckValue(fmt.Sprintf("$%d", i+1), v); err != nil {
			return err
		}
	}
	return nil
}
