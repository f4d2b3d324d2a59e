package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clientdesk.app/identity/internal/http/dto"
	"clientdesk.app/identity/internal/service"
)

type MemberHandler struct {
	members service.MemberService
}

func NewMemberHandler(members service.MemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

func (h *MemberHandler) List(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	members, err := h.members.List(c.Request.Context(), rc)
	if err != nil {
		respondError(c, err, "list members")
		return
	}
	c.JSON(http.StatusOK, dto.ListMembersResponse{Members: dto.ToUserResponses(members)})
}

func (h *MemberHandler) Remove(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.members.Remove(c.Request.Context(), rc, userID); err != nil {
		respondError(c, err, "remove member")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MemberHandler) ChangeRole(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: role is required"})
		return
	}

	user, err := h.members.ChangeRole(c.Request.Context(), rc, userID, service.ChangeRoleInput{
		Role:         req.Role,
		ExpectedRole: req.ExpectedRole,
	})
	if err != nil {
		respondError(c, err, "change role")
		return
	}
	c.JSON(http.StatusOK, dto.ToUserResponse(user))
}

func (h *MemberHandler) AssignCustomer(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.AssignCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: customer_id is required"})
		return
	}

	assignment, err := h.members.AssignCustomer(c.Request.Context(), rc, userID, req.CustomerID)
	if err != nil {
		respondError(c, err, "assign customer")
		return
	}
	c.JSON(http.StatusCreated, dto.ToAssignmentResponse(assignment))
}

func (h *MemberHandler) ListAssignments(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	assignments, err := h.members.ListAssignments(c.Request.Context(), rc, userID)
	if err != nil {
		respondError(c, err, "list assignments")
		return
	}

	resp := dto.ListAssignmentsResponse{Assignments: make([]*dto.AssignmentResponse, 0, len(assignments))}
	for i := range assignments {
		resp.Assignments = append(resp.Assignments, dto.ToAssignmentResponse(&assignments[i]))
	}
	c.JSON(http.StatusOK, resp)
}
