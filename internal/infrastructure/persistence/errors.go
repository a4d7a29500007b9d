package persistence

import (
	"errors"

	"github.com/fleetbill/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps driver errors onto the domain taxonomy. Domain errors
// pass through; anything else the database reports becomes a StorageError.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.WrapDomainError(shared.CodeAlreadyExists, op+": duplicate key", err)
	default:
		return shared.WrapDomainError(shared.CodeStorage, op+" failed", err)
	}
}
