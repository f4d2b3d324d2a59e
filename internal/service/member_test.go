package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"clientdesk.app/identity/common/id"
	"clientdesk.app/identity/internal/idp"
	"clientdesk.app/identity/internal/model"
	"clientdesk.app/identity/internal/queue"
	"clientdesk.app/identity/internal/service"
)

var _ = Describe("MemberService", func() {
	var (
		f     *fixture
		svc   service.MemberService
		org   *model.Organization
		admin *model.User
		staff *model.User
	)

	BeforeEach(func() {
		f = newFixture()
		svc = f.svcs.Members()
		org = f.org("org_acme")
		admin = f.user("user_admin", "admin@example.com", org, model.RoleAdmin, nil)
		staff = f.user("user_staff", "staff@example.com", org, model.RoleStaff, nil)
	})

	Describe("List", func() {
		It("should list active members of the caller's organization", func() {
			removed := f.user("user_gone", "gone@example.com", org, model.RoleStaff, nil)
			Expect(f.mem.Users().SoftDelete(f.ctx, removed.ID, f.now)).To(Succeed())
			f.user("user_out", "out@example.com", f.org("org_other"), model.RoleStaff, nil)

			members, err := svc.List(f.ctx, f.rc(staff))

			Expect(err).NotTo(HaveOccurred())
			ids := []int64{}
			for _, m := range members {
				ids = append(ids, m.ID)
			}
			Expect(ids).To(ConsistOf(admin.ID, staff.ID))
		})
	})

	Describe("Remove", func() {
		It("should soft-delete the member and cascade", func() {
			customer := f.customer(org)
			Expect(f.mem.Assignments().Create(f.ctx, &model.CustomerAssignment{
				ID:             id.New(),
				OrganizationID: org.ID,
				StaffUserID:    staff.ID,
				CustomerID:     customer.ID,
			})).To(Succeed())
			other := f.user("user_admin2", "admin2@example.com", org, model.RoleAdmin, nil)
			other.ImpersonatingUserID = &staff.ID
			Expect(f.mem.Users().Update(f.ctx, other)).To(Succeed())
			f.provider.listMembershipsFn = func(_ context.Context, userID string, _ ...idp.MembershipStatus) ([]idp.Membership, error) {
				return []idp.Membership{
					{ID: "om_acme", UserID: userID, OrganizationID: "org_acme"},
					{ID: "om_other", UserID: userID, OrganizationID: "org_other"},
				}, nil
			}

			Expect(svc.Remove(f.ctx, f.rc(admin), staff.ID)).To(Succeed())

			Expect(f.reload(staff.ID).IsDeleted()).To(BeTrue())
			assignments, err := f.mem.Assignments().ListByStaff(f.ctx, staff.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(assignments).To(BeEmpty())
			Expect(f.reload(other.ID).ImpersonatingUserID).To(BeNil())
			Expect(f.provider.deletedMemberships).To(ConsistOf("om_acme"))
			Expect(f.producer.types()).To(ConsistOf(queue.EventMemberRemoved))
		})

		It("should remove locally when the provider is unavailable", func() {
			f.provider.listMembershipsFn = func(_ context.Context, _ string, _ ...idp.MembershipStatus) ([]idp.Membership, error) {
				return nil, &idp.Error{Op: "list memberships", Status: 503, Err: errors.New("down")}
			}

			Expect(svc.Remove(f.ctx, f.rc(admin), staff.ID)).To(Succeed())
			Expect(f.reload(staff.ID).IsDeleted()).To(BeTrue())
		})

		It("should refuse to remove the caller", func() {
			Expect(svc.Remove(f.ctx, f.rc(admin), admin.ID)).To(MatchError(service.ErrSelfAction))
		})

		It("should refuse staff callers", func() {
			Expect(svc.Remove(f.ctx, f.rc(staff), admin.ID)).To(MatchError(service.ErrAdminRequired))
		})

		It("should report already removed members as not found", func() {
			Expect(svc.Remove(f.ctx, f.rc(admin), staff.ID)).To(Succeed())
			Expect(svc.Remove(f.ctx, f.rc(admin), staff.ID)).To(MatchError(service.ErrUserNotFound))
		})
	})

	Describe("ChangeRole", func() {
		It("should promote staff to admin", func() {
			user, err := svc.ChangeRole(f.ctx, f.rc(admin), staff.ID, service.ChangeRoleInput{Role: model.RoleAdmin})

			Expect(err).NotTo(HaveOccurred())
			Expect(*user.Role).To(Equal(model.RoleAdmin))
			Expect(f.producer.types()).To(ConsistOf(queue.EventMemberRoleChanged))
		})

		It("should clear impersonation when demoting an admin", func() {
			other := f.user("user_admin2", "admin2@example.com", org, model.RoleAdmin, nil)
			other.ImpersonatingUserID = &staff.ID
			Expect(f.mem.Users().Update(f.ctx, other)).To(Succeed())

			user, err := svc.ChangeRole(f.ctx, f.rc(admin), other.ID, service.ChangeRoleInput{Role: model.RoleStaff})

			Expect(err).NotTo(HaveOccurred())
			Expect(*user.Role).To(Equal(model.RoleStaff))
			Expect(user.ImpersonatingUserID).To(BeNil())
		})

		It("should reject changing a client", func() {
			customer := f.customer(org)
			client := f.user("user_client", "client@example.com", org, model.RoleClient, &customer.ID)

			_, err := svc.ChangeRole(f.ctx, f.rc(admin), client.ID, service.ChangeRoleInput{Role: model.RoleStaff})
			Expect(err).To(MatchError(service.ErrClientRoleChange))
		})

		It("should reject changing to client", func() {
			_, err := svc.ChangeRole(f.ctx, f.rc(admin), staff.ID, service.ChangeRoleInput{Role: model.RoleClient})
			Expect(err).To(MatchError(service.ErrClientRoleChange))
			Expect(err).To(MatchError(service.ErrValidation))
		})

		It("should reject changing one's own role", func() {
			_, err := svc.ChangeRole(f.ctx, f.rc(admin), admin.ID, service.ChangeRoleInput{Role: model.RoleStaff})
			Expect(err).To(MatchError(service.ErrSelfAction))
		})

		It("should detect a concurrent change", func() {
			expected := model.RoleAdmin
			_, err := svc.ChangeRole(f.ctx, f.rc(admin), staff.ID, service.ChangeRoleInput{Role: model.RoleAdmin, ExpectedRole: &expected})
			Expect(err).To(MatchError(service.ErrRoleMismatch))
			Expect(*f.reload(staff.ID).Role).To(Equal(model.RoleStaff))
		})

		It("should be blocked while impersonating", func() {
			_, err := f.svcs.Access().StartImpersonating(f.ctx, f.rc(admin), staff.ID)
			Expect(err).NotTo(HaveOccurred())
			other := f.user("user_other", "other@example.com", org, model.RoleStaff, nil)

			_, err = svc.ChangeRole(f.ctx, f.rc(admin), other.ID, service.ChangeRoleInput{Role: model.RoleAdmin})
			Expect(err).To(MatchError(service.ErrImpersonationBlocked))
		})

		It("should not publish when the role is unchanged", func() {
			_, err := svc.ChangeRole(f.ctx, f.rc(admin), staff.ID, service.ChangeRoleInput{Role: model.RoleStaff})

			Expect(err).NotTo(HaveOccurred())
			Expect(f.producer.types()).To(BeEmpty())
		})
	})

	Describe("AssignCustomer", func() {
		It("should assign once", func() {
			customer := f.customer(org)

			first, err := svc.AssignCustomer(f.ctx, f.rc(admin), staff.ID, customer.ID)
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.AssignCustomer(f.ctx, f.rc(admin), staff.ID, customer.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.ID).To(Equal(first.ID))
			assignments, err := svc.ListAssignments(f.ctx, f.rc(admin), staff.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(assignments).To(HaveLen(1))
		})

		It("should only assign staff", func() {
			customer := f.customer(org)

			_, err := svc.AssignCustomer(f.ctx, f.rc(admin), admin.ID, customer.ID)
			Expect(err).To(MatchError(service.ErrNotStaff))
		})

		It("should reject customers of another organization", func() {
			foreign := f.customer(f.org("org_other"))

			_, err := svc.AssignCustomer(f.ctx, f.rc(admin), staff.ID, foreign.ID)
			Expect(err).To(MatchError(service.ErrCrossOrganization))
		})
	})
})
