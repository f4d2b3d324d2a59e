package model

import "time"

type Customer struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// CustomerAssignment links a staff member to a customer they work on.
type CustomerAssignment struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	StaffUserID    int64     `json:"staff_user_id"`
	CustomerID     int64     `json:"customer_id"`
	CreatedAt      time.Time `json:"created_at"`
}
