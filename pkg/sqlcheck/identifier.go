package sqlcheck

import (
	"fmt"
	"regexp"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
)

// identifierPattern matches unquoted SQL identifiers: a letter or underscore
// followed by letters, digits, or underscores. Anything else must not be
// interpolated into DDL.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const maxIdentifierLength = 63 // PostgreSQL's NAMEDATALEN-1, the strictest of the supported kinds

// ValidateIdentifier rejects schema/table/column names that cannot be safely
// interpolated into generated SQL.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty identifier", apperrors.ErrUnsafeValue)
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: identifier %q exceeds %d characters", apperrors.ErrUnsafeValue, name, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: identifier %q contains illegal characters", apperrors.ErrUnsafeValue, name)
	}
	return nil
}
