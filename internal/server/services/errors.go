package services

import (
	"errors"
	"fmt"

	"github.com/dkravets/assetvault/internal/common"
)

// sentinels already meaningful to callers; anything else coming out of a
// store is a transient storage failure and must not leak verbatim.
var sentinels = []error{
	common.ErrNotFound,
	common.ErrSessionNotFound,
	common.ErrForbidden,
	common.ErrInvalidInput,
	common.ErrStorageFailure,
	common.ErrTransactionFailure,
}

// asStorageFailure passes taxonomy errors through unchanged and wraps raw
// store errors as common.ErrStorageFailure.
func asStorageFailure(err error) error {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", common.ErrStorageFailure, err)
}
