package dto

import (
	"time"

	"clientdesk.app/identity/internal/model"
)

type ChangeRoleRequest struct {
	Role         model.Role  `json:"role" binding:"required"`
	ExpectedRole *model.Role `json:"expected_role,omitempty"`
}

type AssignCustomerRequest struct {
	CustomerID int64 `json:"customer_id,string" binding:"required"`
}

type AssignmentResponse struct {
	ID          int64     `json:"id,string"`
	StaffUserID int64     `json:"staff_user_id,string"`
	CustomerID  int64     `json:"customer_id,string"`
	CreatedAt   time.Time `json:"created_at"`
}

func ToAssignmentResponse(a *model.CustomerAssignment) *AssignmentResponse {
	return &AssignmentResponse{
		ID:          a.ID,
		StaffUserID: a.StaffUserID,
		CustomerID:  a.CustomerID,
		CreatedAt:   a.CreatedAt,
	}
}

type ListMembersResponse struct {
	Members []*UserResponse `json:"members"`
}

type ListAssignmentsResponse struct {
	Assignments []*AssignmentResponse `json:"assignments"`
}
