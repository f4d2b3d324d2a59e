package service_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clientdesk.app/identity/common/id"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/service"
)

var _ = Describe("SyncService", func() {
	var (
		f   *fixture
		svc service.SyncService
		org *model.Organization
	)

	BeforeEach(func() {
		f = newFixture()
		svc = f.svcs.Sync()
		org = f.org("org_acme")
	})

	Describe("UpsertUserFromAuth", func() {
		It("should converge to the same row when repeated", func() {
			params := service.UpsertUserParams{
				ExternalID:     "user_ada",
				Email:          "ADA@example.com",
				FirstName:      "Ada",
				OrganizationID: &org.ID,
				Role:           model.RolePtr(model.RoleStaff),
			}

			first, err := svc.UpsertUserFromAuth(f.ctx, params)
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.UpsertUserFromAuth(f.ctx, params)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.ID).To(Equal(first.ID))
			Expect(second.Email).To(Equal("ada@example.com"))
			Expect(*second.Role).To(Equal(model.RoleStaff))
		})

		It("should not blank names the provider omits", func() {
			f.user("user_ada", "ada@example.com", nil, "", nil)
			_, err := svc.UpsertUserFromAuth(f.ctx, service.UpsertUserParams{ExternalID: "user_ada", FirstName: "Ada", LastName: "Lovelace"})
			Expect(err).NotTo(HaveOccurred())

			user, err := svc.UpsertUserFromAuth(f.ctx, service.UpsertUserParams{ExternalID: "user_ada"})

			Expect(err).NotTo(HaveOccurred())
			Expect(user.FirstName).To(Equal("Ada"))
			Expect(user.Email).To(Equal("ada@example.com"))
		})

		It("should reject a role without an organization", func() {
			_, err := svc.UpsertUserFromAuth(f.ctx, service.UpsertUserParams{
				ExternalID: "user_ada",
				Role:       model.RolePtr(model.RoleStaff),
			})
			Expect(err).To(MatchError(service.ErrRoleWithoutOrg))
		})

		It("should reject a client without a customer", func() {
			_, err := svc.UpsertUserFromAuth(f.ctx, service.UpsertUserParams{
				ExternalID:     "user_ada",
				OrganizationID: &org.ID,
				Role:           model.RolePtr(model.RoleClient),
			})
			Expect(err).To(MatchError(service.ErrCustomerRequired))
		})

		It("should clear the customer when a client becomes staff", func() {
			customer := f.customer(org)
			f.user("user_ada", "ada@example.com", org, model.RoleClient, &customer.ID)

			user, err := svc.UpsertUserFromAuth(f.ctx, service.UpsertUserParams{
				ExternalID: "user_ada",
				Role:       model.RolePtr(model.RoleStaff),
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(user.CustomerID).To(BeNil())
		})

		It("should leave a removed user removed unless asked to reactivate", func() {
			removed := f.user("user_ada", "ada@example.com", org, model.RoleStaff, nil)
			Expect(f.mem.Users().SoftDelete(f.ctx, removed.ID, f.now)).To(Succeed())

			user, err := svc.UpsertUserFromAuth(f.ctx, service.UpsertUserParams{ExternalID: "user_ada"})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.IsDeleted()).To(BeTrue())

			user, err = svc.UpsertUserFromAuth(f.ctx, service.UpsertUserParams{ExternalID: "user_ada", ReactivateIfDeleted: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.IsDeleted()).To(BeFalse())
		})
	})

	Describe("SyncFromInvitation", func() {
		It("should apply and consume the invitation", func() {
			inv := f.invitation("inv_1", "ada@example.com", org, model.RoleStaff, nil, time.Hour)

			user, err := svc.SyncFromInvitation(f.ctx, inv, service.UpsertUserParams{ExternalID: "user_ada", Email: "ada@example.com"})

			Expect(err).NotTo(HaveOccurred())
			Expect(*user.OrganizationID).To(Equal(org.ID))
			Expect(f.invitationExists(inv.ID)).To(BeFalse())
		})
	})

	Describe("SoftDeleteUser", func() {
		It("should drop staff assignments and impersonation pointers", func() {
			customer := f.customer(org)
			staff := f.user("user_staff", "staff@example.com", org, model.RoleStaff, nil)
			admin := f.user("user_admin", "admin@example.com", org, model.RoleAdmin, nil)
			admin.ImpersonatingUserID = &staff.ID
			Expect(f.mem.Users().Update(f.ctx, admin)).To(Succeed())
			Expect(f.mem.Assignments().Create(f.ctx, &model.CustomerAssignment{
				ID:             id.New(),
				OrganizationID: org.ID,
				StaffUserID:    staff.ID,
				CustomerID:     customer.ID,
			})).To(Succeed())

			Expect(svc.SoftDeleteUser(f.ctx, staff.ID)).To(Succeed())

			Expect(f.reload(staff.ID).IsDeleted()).To(BeTrue())
			Expect(f.reload(admin.ID).ImpersonatingUserID).To(BeNil())
			assignments, err := f.mem.Assignments().ListByStaff(f.ctx, staff.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(assignments).To(BeEmpty())
		})

		It("should report unknown users", func() {
			Expect(svc.SoftDeleteUser(f.ctx, 42)).To(MatchError(service.ErrUserNotFound))
		})
	})
})
