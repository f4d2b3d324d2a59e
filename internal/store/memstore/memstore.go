// Package memstore is an in-memory implementation of the identity stores for
// development and testing. Transactions hold the store lock for their whole
// duration and work on a snapshot that replaces the live data on success.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/store"
)

type data struct {
	seq         int64
	users       map[int64]model.User
	orgs        map[int64]model.Organization
	invitations map[int64]model.Invitation
	customers   map[int64]model.Customer
	assignments map[int64]model.CustomerAssignment
}

func newData() *data {
	return &data{
		users:       make(map[int64]model.User),
		orgs:        make(map[int64]model.Organization),
		invitations: make(map[int64]model.Invitation),
		customers:   make(map[int64]model.Customer),
		assignments: make(map[int64]model.CustomerAssignment),
	}
}

func (d *data) clone() *data {
	c := &data{seq: d.seq}
	c.users = make(map[int64]model.User, len(d.users))
	for k, v := range d.users {
		c.users[k] = cloneUser(v)
	}
	c.orgs = make(map[int64]model.Organization, len(d.orgs))
	for k, v := range d.orgs {
		c.orgs[k] = v
	}
	c.invitations = make(map[int64]model.Invitation, len(d.invitations))
	for k, v := range d.invitations {
		c.invitations[k] = cloneInvitation(v)
	}
	c.customers = make(map[int64]model.Customer, len(d.customers))
	for k, v := range d.customers {
		c.customers[k] = v
	}
	c.assignments = make(map[int64]model.CustomerAssignment, len(d.assignments))
	for k, v := range d.assignments {
		c.assignments[k] = v
	}
	return c
}

func (d *data) nextID(id int64) int64 {
	if id != 0 {
		if id > d.seq {
			d.seq = id
		}
		return id
	}
	d.seq++
	return d.seq
}

// Store is the in-memory database.
type Store struct {
	mu   sync.Mutex
	data *data

	// Now stamps created_at and updated_at. Defaults to time.Now.
	Now func() time.Time
}

func New() *Store {
	return &Store{data: newData(), Now: time.Now}
}

// Tx exposes stores bound to one in-flight transaction.
type Tx struct {
	v view
}

func (t *Tx) Users() store.UserStore                 { return userTable{t.v} }
func (t *Tx) Organizations() store.OrganizationStore { return orgTable{t.v} }
func (t *Tx) Invitations() store.InvitationStore     { return invitationTable{t.v} }
func (t *Tx) Customers() store.CustomerStore         { return customerTable{t.v} }
func (t *Tx) Assignments() store.AssignmentStore     { return assignmentTable{t.v} }

// WithTx runs fn against a snapshot of the store. The snapshot becomes the
// live data only if fn returns nil. Stores returned by the Store itself must
// not be used inside fn.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.data.clone()
	if err := fn(&Tx{v: view{d: snapshot, now: s.Now}}); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

func (s *Store) Users() store.UserStore                 { return userTable{view{s: s, now: s.Now}} }
func (s *Store) Organizations() store.OrganizationStore { return orgTable{view{s: s, now: s.Now}} }
func (s *Store) Invitations() store.InvitationStore     { return invitationTable{view{s: s, now: s.Now}} }
func (s *Store) Customers() store.CustomerStore         { return customerTable{view{s: s, now: s.Now}} }
func (s *Store) Assignments() store.AssignmentStore     { return assignmentTable{view{s: s, now: s.Now}} }

// view is either bound to the live store (s set) or to a transaction snapshot (d set).
type view struct {
	s   *Store
	d   *data
	now func() time.Time
}

func (v view) do(fn func(d *data) error) error {
	if v.s == nil {
		return fn(v.d)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.data)
}

// --- users -------------------------------------------------------------------

type userTable struct{ v view }

func (t userTable) GetByID(_ context.Context, id int64) (*model.User, error) {
	var out *model.User
	err := t.v.do(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return store.ErrNotFound
		}
		out = ptr(cloneUser(u))
		return nil
	})
	return out, err
}

func (t userTable) GetByExternalID(_ context.Context, externalID string) (*model.User, error) {
	var out *model.User
	err := t.v.do(func(d *data) error {
		for _, u := range d.users {
			if u.ExternalID == externalID {
				out = ptr(cloneUser(u))
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (t userTable) GetActiveByOrgAndEmail(_ context.Context, orgID int64, email string) (*model.User, error) {
	var out *model.User
	err := t.v.do(func(d *data) error {
		var matches []model.User
		for _, u := range d.users {
			if u.InOrganization(orgID) && !u.IsDeleted() && strings.EqualFold(u.Email, email) {
				matches = append(matches, u)
			}
		}
		if len(matches) == 0 {
			return store.ErrNotFound
		}
		slices.SortFunc(matches, func(a, b model.User) int { return newer(a.CreatedAt, a.ID, b.CreatedAt, b.ID) })
		out = ptr(cloneUser(matches[0]))
		return nil
	})
	return out, err
}

func (t userTable) ListActiveByOrganization(_ context.Context, orgID int64) ([]model.User, error) {
	var out []model.User
	err := t.v.do(func(d *data) error {
		for _, u := range d.users {
			if u.InOrganization(orgID) && !u.IsDeleted() {
				out = append(out, cloneUser(u))
			}
		}
		slices.SortFunc(out, func(a, b model.User) int { return -newer(a.CreatedAt, a.ID, b.CreatedAt, b.ID) })
		return nil
	})
	return out, err
}

func (t userTable) CountActiveByOrgAndRole(_ context.Context, orgID int64, role model.Role) (int, error) {
	var n int
	err := t.v.do(func(d *data) error {
		for _, u := range d.users {
			if u.InOrganization(orgID) && !u.IsDeleted() && u.HasRole(role) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (t userTable) Create(_ context.Context, user *model.User) error {
	return t.v.do(func(d *data) error {
		for _, u := range d.users {
			if u.ExternalID == user.ExternalID {
				return fmt.Errorf("memstore: user with external id %q already exists", user.ExternalID)
			}
		}
		if err := checkUser(d, user); err != nil {
			return err
		}
		now := t.v.now()
		user.ID = d.nextID(user.ID)
		user.CreatedAt, user.UpdatedAt = now, now
		d.users[user.ID] = cloneUser(*user)
		return nil
	})
}

func (t userTable) Update(_ context.Context, user *model.User) error {
	return t.v.do(func(d *data) error {
		existing, ok := d.users[user.ID]
		if !ok {
			return store.ErrNotFound
		}
		if err := checkUser(d, user); err != nil {
			return err
		}
		user.ExternalID = existing.ExternalID
		user.CreatedAt = existing.CreatedAt
		user.UpdatedAt = t.v.now()
		d.users[user.ID] = cloneUser(*user)
		return nil
	})
}

func (t userTable) SoftDelete(_ context.Context, id int64, at time.Time) error {
	return t.v.do(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return store.ErrNotFound
		}
		u.DeletedAt = &at
		u.ImpersonatingUserID = nil
		u.UpdatedAt = t.v.now()
		d.users[id] = u
		return nil
	})
}

func (t userTable) ClearImpersonationOf(_ context.Context, targetID int64) error {
	return t.v.do(func(d *data) error {
		for id, u := range d.users {
			if u.ImpersonatingUserID != nil && *u.ImpersonatingUserID == targetID {
				u.ImpersonatingUserID = nil
				u.UpdatedAt = t.v.now()
				d.users[id] = u
			}
		}
		return nil
	})
}

// checkUser mirrors the users table check constraints.
func checkUser(d *data, u *model.User) error {
	if u.Role != nil && !u.Role.Valid() {
		return fmt.Errorf("memstore: invalid role %q", *u.Role)
	}
	if u.Role != nil && u.OrganizationID == nil {
		return fmt.Errorf("memstore: user %q has a role without an organization", u.ExternalID)
	}
	if u.HasRole(model.RoleClient) && u.CustomerID == nil {
		return fmt.Errorf("memstore: client user %q has no customer", u.ExternalID)
	}
	if u.OrganizationID != nil {
		if _, ok := d.orgs[*u.OrganizationID]; !ok {
			return fmt.Errorf("memstore: organization %d does not exist", *u.OrganizationID)
		}
	}
	return nil
}

// --- organizations -------------------------------------------------------------

type orgTable struct{ v view }

func (t orgTable) GetByID(_ context.Context, id int64) (*model.Organization, error) {
	var out *model.Organization
	err := t.v.do(func(d *data) error {
		o, ok := d.orgs[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &o
		return nil
	})
	return out, err
}

func (t orgTable) GetByExternalID(_ context.Context, externalID string) (*model.Organization, error) {
	var out *model.Organization
	err := t.v.do(func(d *data) error {
		for _, o := range d.orgs {
			if o.ExternalID == externalID {
				out = &o
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (t orgTable) Create(_ context.Context, org *model.Organization) error {
	return t.v.do(func(d *data) error {
		for _, o := range d.orgs {
			if o.ExternalID == org.ExternalID {
				return fmt.Errorf("memstore: organization with external id %q already exists", org.ExternalID)
			}
		}
		if org.SubscriptionStatus == "" {
			org.SubscriptionStatus = model.SubscriptionInactive
		}
		now := t.v.now()
		org.ID = d.nextID(org.ID)
		org.CreatedAt, org.UpdatedAt = now, now
		d.orgs[org.ID] = *org
		return nil
	})
}

func (t orgTable) Update(_ context.Context, org *model.Organization) error {
	return t.v.do(func(d *data) error {
		existing, ok := d.orgs[org.ID]
		if !ok {
			return store.ErrNotFound
		}
		org.ExternalID = existing.ExternalID
		org.CreatedAt = existing.CreatedAt
		org.UpdatedAt = t.v.now()
		d.orgs[org.ID] = *org
		return nil
	})
}

// --- invitations ---------------------------------------------------------------

type invitationTable struct{ v view }

func (t invitationTable) GetByID(_ context.Context, id int64) (*model.Invitation, error) {
	var out *model.Invitation
	err := t.v.do(func(d *data) error {
		inv, ok := d.invitations[id]
		if !ok {
			return store.ErrNotFound
		}
		out = ptr(cloneInvitation(inv))
		return nil
	})
	return out, err
}

func (t invitationTable) GetByExternalID(_ context.Context, externalID string) (*model.Invitation, error) {
	return t.newest(func(inv model.Invitation) bool { return inv.ExternalID == externalID })
}

func (t invitationTable) GetPendingByOrgAndEmail(_ context.Context, orgID int64, email string, now time.Time) (*model.Invitation, error) {
	return t.newest(func(inv model.Invitation) bool {
		return inv.OrganizationID == orgID && inv.Email == email && !inv.IsExpired(now)
	})
}

func (t invitationTable) GetLatestByOrgAndEmail(_ context.Context, orgID int64, email string) (*model.Invitation, error) {
	return t.newest(func(inv model.Invitation) bool {
		return inv.OrganizationID == orgID && inv.Email == email
	})
}

func (t invitationTable) GetNewestPendingByEmail(_ context.Context, email string, now time.Time) (*model.Invitation, error) {
	return t.newest(func(inv model.Invitation) bool {
		return inv.Email == email && !inv.IsExpired(now)
	})
}

func (t invitationTable) ListPendingByOrganization(_ context.Context, orgID int64, now time.Time) ([]model.Invitation, error) {
	var out []model.Invitation
	err := t.v.do(func(d *data) error {
		out = filterInvitations(d, func(inv model.Invitation) bool {
			return inv.OrganizationID == orgID && !inv.IsExpired(now)
		})
		return nil
	})
	return out, err
}

func (t invitationTable) CountPendingByOrgAndRole(_ context.Context, orgID int64, role model.Role, now time.Time) (int, error) {
	var n int
	err := t.v.do(func(d *data) error {
		n = len(filterInvitations(d, func(inv model.Invitation) bool {
			return inv.OrganizationID == orgID && inv.Role == role && !inv.IsExpired(now)
		}))
		return nil
	})
	return n, err
}

func (t invitationTable) Create(_ context.Context, inv *model.Invitation) error {
	return t.v.do(func(d *data) error {
		for _, existing := range d.invitations {
			if existing.ExternalID == inv.ExternalID {
				return fmt.Errorf("memstore: invitation with external id %q already exists", inv.ExternalID)
			}
		}
		if !inv.Role.Invitable() {
			return fmt.Errorf("memstore: invalid invitation role %q", inv.Role)
		}
		if inv.Role == model.RoleClient && inv.CustomerID == nil {
			return fmt.Errorf("memstore: client invitation for %q has no customer", inv.Email)
		}
		inv.ID = d.nextID(inv.ID)
		inv.CreatedAt = t.v.now()
		d.invitations[inv.ID] = cloneInvitation(*inv)
		return nil
	})
}

func (t invitationTable) Delete(_ context.Context, id int64) error {
	return t.v.do(func(d *data) error {
		delete(d.invitations, id)
		return nil
	})
}

func (t invitationTable) newest(match func(model.Invitation) bool) (*model.Invitation, error) {
	var out *model.Invitation
	err := t.v.do(func(d *data) error {
		matches := filterInvitations(d, match)
		if len(matches) == 0 {
			return store.ErrNotFound
		}
		out = &matches[0]
		return nil
	})
	return out, err
}

// filterInvitations returns matching invitations, newest first.
func filterInvitations(d *data, match func(model.Invitation) bool) []model.Invitation {
	var out []model.Invitation
	for _, inv := range d.invitations {
		if match(inv) {
			out = append(out, cloneInvitation(inv))
		}
	}
	slices.SortFunc(out, func(a, b model.Invitation) int { return newer(a.CreatedAt, a.ID, b.CreatedAt, b.ID) })
	return out
}

// --- customers and assignments ------------------------------------------------

type customerTable struct{ v view }

func (t customerTable) GetByID(_ context.Context, id int64) (*model.Customer, error) {
	var out *model.Customer
	err := t.v.do(func(d *data) error {
		c, ok := d.customers[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (t customerTable) Create(_ context.Context, customer *model.Customer) error {
	return t.v.do(func(d *data) error {
		if _, ok := d.orgs[customer.OrganizationID]; !ok {
			return fmt.Errorf("memstore: organization %d does not exist", customer.OrganizationID)
		}
		customer.ID = d.nextID(customer.ID)
		customer.CreatedAt = t.v.now()
		d.customers[customer.ID] = *customer
		return nil
	})
}

func (t customerTable) CountByOrganization(_ context.Context, orgID int64) (int, error) {
	var n int
	err := t.v.do(func(d *data) error {
		for _, c := range d.customers {
			if c.OrganizationID == orgID {
				n++
			}
		}
		return nil
	})
	return n, err
}

type assignmentTable struct{ v view }

func (t assignmentTable) Create(_ context.Context, a *model.CustomerAssignment) error {
	return t.v.do(func(d *data) error {
		if _, ok := d.users[a.StaffUserID]; !ok {
			return fmt.Errorf("memstore: user %d does not exist", a.StaffUserID)
		}
		if _, ok := d.customers[a.CustomerID]; !ok {
			return fmt.Errorf("memstore: customer %d does not exist", a.CustomerID)
		}
		for _, existing := range d.assignments {
			if existing.StaffUserID == a.StaffUserID && existing.CustomerID == a.CustomerID {
				return fmt.Errorf("memstore: user %d is already assigned to customer %d", a.StaffUserID, a.CustomerID)
			}
		}
		a.ID = d.nextID(a.ID)
		a.CreatedAt = t.v.now()
		d.assignments[a.ID] = *a
		return nil
	})
}

func (t assignmentTable) ListByStaff(_ context.Context, staffUserID int64) ([]model.CustomerAssignment, error) {
	var out []model.CustomerAssignment
	err := t.v.do(func(d *data) error {
		for _, a := range d.assignments {
			if a.StaffUserID == staffUserID {
				out = append(out, a)
			}
		}
		slices.SortFunc(out, func(a, b model.CustomerAssignment) int {
			return -newer(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
		})
		return nil
	})
	return out, err
}

func (t assignmentTable) DeleteByStaff(_ context.Context, staffUserID int64) (int, error) {
	var n int
	err := t.v.do(func(d *data) error {
		for id, a := range d.assignments {
			if a.StaffUserID == staffUserID {
				delete(d.assignments, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

// --- helpers ---------------------------------------------------------------------

// newer orders newest first, breaking created_at ties by id.
func newer(aAt time.Time, aID int64, bAt time.Time, bID int64) int {
	if c := bAt.Compare(aAt); c != 0 {
		return c
	}
	switch {
	case aID > bID:
		return -1
	case aID < bID:
		return 1
	}
	return 0
}

func ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneUser(u model.User) model.User {
	u.OrganizationID = clonePtr(u.OrganizationID)
	u.Role = clonePtr(u.Role)
	u.CustomerID = clonePtr(u.CustomerID)
	u.ImpersonatingUserID = clonePtr(u.ImpersonatingUserID)
	u.DeletedAt = clonePtr(u.DeletedAt)
	return u
}

func cloneInvitation(inv model.Invitation) model.Invitation {
	inv.CustomerID = clonePtr(inv.CustomerID)
	inv.InviterUserID = clonePtr(inv.InviterUserID)
	return inv
}
