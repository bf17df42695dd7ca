package domain

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID string
	Email  string
	Role   Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

type Coordinates struct {
	Longitude float64 `json:"lng"`
	Latitude  float64 `json:"lat"`
}

type Address struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId"`
	Address       string       `json:"address"`
	Coordinates   Coordinates  `json:"coordinates"`
	CreatedAt     time.Time    `json:"createdAt"`
	LastUpdatedAt *time.Time   `json:"lastUpdatedAt,omitempty"`
	Updates       []AuditEntry `json:"updates"`
}
