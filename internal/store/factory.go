package store

import (
	"clientdesk.app/identity/core/db"
)

// Stores hands out stores bound to one connection or transaction.
type Stores struct {
	conn db.DBTX
}

func NewStores(conn db.DBTX) *Stores {
	return &Stores{conn: conn}
}

func (s *Stores) Users() UserStore {
	return newUserStore(s.conn)
}

func (s *Stores) Organizations() OrganizationStore {
	return newOrganizationStore(s.conn)
}

func (s *Stores) Invitations() InvitationStore {
	return newInvitationStore(s.conn)
}

func (s *Stores) Customers() CustomerStore {
	return newCustomerStore(s.conn)
}

func (s *Stores) Assignments() AssignmentStore {
	return newAssignmentStore(s.conn)
}
