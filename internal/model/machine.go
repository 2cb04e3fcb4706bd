package model

import "time"

type Machine struct {
	ID             int        `json:"id"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	OwnerLogin     string     `json:"owner_login"`
	Location       string     `json:"location,omitempty"`
	CommissionedAt *time.Time `json:"commissioned_at,omitempty"`
}
