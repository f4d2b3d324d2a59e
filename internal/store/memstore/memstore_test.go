package memstore_test

import (
	"context"
	"errors"
	"time"

	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/store"
	"clientdesk.app/identity/internal/store/memstore"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		mem   *memstore.Store
		clock time.Time
		org   model.Organization
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		mem = memstore.New()
		mem.Now = func() time.Time { return clock }

		org = model.Organization{ExternalID: "org_1", Name: "Acme"}
		Expect(mem.Organizations().Create(ctx, &org)).To(Succeed())
	})

	Describe("users", func() {
		It("returns ErrNotFound for unknown ids", func() {
			_, err := mem.Users().GetByExternalID(ctx, "user_missing")
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("returns copies that do not alias stored state", func() {
			u := &model.User{ExternalID: "user_1", Email: "a@x.com", OrganizationID: &org.ID, Role: model.RolePtr(model.RoleStaff)}
			Expect(mem.Users().Create(ctx, u)).To(Succeed())

			got, err := mem.Users().GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			*got.Role = model.RoleAdmin

			again, err := mem.Users().GetByID(ctx, u.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*again.Role).To(Equal(model.RoleStaff))
		})

		It("rejects a client without a customer", func() {
			u := &model.User{ExternalID: "user_1", OrganizationID: &org.ID, Role: model.RolePtr(model.RoleClient)}
			Expect(mem.Users().Create(ctx, u)).NotTo(Succeed())
		})

		It("excludes soft-deleted users from active lookups", func() {
			u := &model.User{ExternalID: "user_1", Email: "a@x.com", OrganizationID: &org.ID, Role: model.RolePtr(model.RoleStaff)}
			Expect(mem.Users().Create(ctx, u)).To(Succeed())
			Expect(mem.Users().SoftDelete(ctx, u.ID, clock)).To(Succeed())

			_, err := mem.Users().GetActiveByOrgAndEmail(ctx, org.ID, "a@x.com")
			Expect(err).To(MatchError(store.ErrNotFound))

			n, err := mem.Users().CountActiveByOrgAndRole(ctx, org.ID, model.RoleStaff)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			got, err := mem.Users().GetByExternalID(ctx, "user_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IsDeleted()).To(BeTrue())
		})
	})

	Describe("invitations", func() {
		It("prefers the newest unexpired invitation for an email", func() {
			older := &model.Invitation{ExternalID: "inv_1", Email: "bob@x.com", OrganizationID: org.ID, Role: model.RoleStaff, ExpiresAt: clock.Add(time.Hour)}
			Expect(mem.Invitations().Create(ctx, older)).To(Succeed())
			clock = clock.Add(time.Minute)
			newer := &model.Invitation{ExternalID: "inv_2", Email: "bob@x.com", OrganizationID: org.ID, Role: model.RoleStaff, ExpiresAt: clock.Add(time.Hour)}
			Expect(mem.Invitations().Create(ctx, newer)).To(Succeed())

			got, err := mem.Invitations().GetNewestPendingByEmail(ctx, "bob@x.com", clock)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ExternalID).To(Equal("inv_2"))
		})

		It("treats expired invitations as not pending", func() {
			inv := &model.Invitation{ExternalID: "inv_1", Email: "bob@x.com", OrganizationID: org.ID, Role: model.RoleStaff, ExpiresAt: clock.Add(time.Hour)}
			Expect(mem.Invitations().Create(ctx, inv)).To(Succeed())

			later := clock.Add(2 * time.Hour)
			_, err := mem.Invitations().GetPendingByOrgAndEmail(ctx, org.ID, "bob@x.com", later)
			Expect(err).To(MatchError(store.ErrNotFound))

			latest, err := mem.Invitations().GetLatestByOrgAndEmail(ctx, org.ID, "bob@x.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(latest.ID).To(Equal(inv.ID))
		})

		It("deletes idempotently", func() {
			inv := &model.Invitation{ExternalID: "inv_1", Email: "bob@x.com", OrganizationID: org.ID, Role: model.RoleStaff, ExpiresAt: clock.Add(time.Hour)}
			Expect(mem.Invitations().Create(ctx, inv)).To(Succeed())
			Expect(mem.Invitations().Delete(ctx, inv.ID)).To(Succeed())
			Expect(mem.Invitations().Delete(ctx, inv.ID)).To(Succeed())
		})
	})

	Describe("WithTx", func() {
		It("commits writes when fn succeeds", func() {
			err := mem.WithTx(ctx, func(tx *memstore.Tx) error {
				return tx.Users().Create(ctx, &model.User{ExternalID: "user_1", Email: "a@x.com"})
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = mem.Users().GetByExternalID(ctx, "user_1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("discards writes when fn fails", func() {
			boom := errors.New("boom")
			err := mem.WithTx(ctx, func(tx *memstore.Tx) error {
				if err := tx.Users().Create(ctx, &model.User{ExternalID: "user_1", Email: "a@x.com"}); err != nil {
					return err
				}
				return boom
			})
			Expect(err).To(MatchError(boom))

			_, err = mem.Users().GetByExternalID(ctx, "user_1")
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("removes every assignment of a staff member", func() {
			staff := &model.User{ExternalID: "user_1", Email: "s@x.com", OrganizationID: &org.ID, Role: model.RolePtr(model.RoleStaff)}
			Expect(mem.Users().Create(ctx, staff)).To(Succeed())
			for _, name := range []string{"Globex", "Initech"} {
				c := &model.Customer{OrganizationID: org.ID, Name: name}
				Expect(mem.Customers().Create(ctx, c)).To(Succeed())
				Expect(mem.Assignments().Create(ctx, &model.CustomerAssignment{
					OrganizationID: org.ID, StaffUserID: staff.ID, CustomerID: c.ID,
				})).To(Succeed())
			}

			var removed int
			err := mem.WithTx(ctx, func(tx *memstore.Tx) error {
				var err error
				removed, err = tx.Assignments().DeleteByStaff(ctx, staff.ID)
				return err
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(2))

			left, err := mem.Assignments().ListByStaff(ctx, staff.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(left).To(BeEmpty())
		})
	})
})
