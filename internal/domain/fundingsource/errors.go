package fundingsource

import "errors"

var (
	ErrFundingSourceNotFound = errors.New("funding source not found")
	ErrInvalidSourceKind     = errors.New("invalid funding source kind")
	ErrMissingSourceID       = errors.New("funding source id is required")
)
