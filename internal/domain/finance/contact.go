package finance

import (
	"strings"

	"github.com/fleetbill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Contact is the customer an invoice is billed to. The CRM owns contacts;
// the engine only needs to know that one exists.
type Contact struct {
	shared.Record
	Name string
}

// NewContact creates a contact reference with a known id
func NewContact(id uuid.UUID, name string) (*Contact, error) {
	if id == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Contact ID cannot be empty")
	}
	c := &Contact{Record: shared.NewRecord(), Name: strings.TrimSpace(name)}
	c.ID = id
	return c, nil
}
