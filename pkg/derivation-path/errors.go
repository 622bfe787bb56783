package path

import (
	"fmt"
)

var (
	ErrMissingDerivationPath          = fmt.Errorf("missing derivation path")
	ErrRequiredAbsoluteDerivationPath = fmt.Errorf("path must be an absolute derivation starting with 'm/'")
	ErrMalformedDerivationPath        = fmt.Errorf("path must not start or end with a '/'")
	ErrDerivationPathTooDeep          = fmt.Errorf("path must not have more than %d levels", MaxDepth)
	ErrInvalidAccountPath             = fmt.Errorf(`account path must be in the form m/purpose'/coin_type'/account'/change/index`)
)
