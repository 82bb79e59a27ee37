package models

import "time"

type Provider struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Client struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Availability is a provider-declared open window [StartTime, EndTime).
type Availability struct {
	ID         int64     `json:"id"`
	ProviderID int64     `json:"provider_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	CreatedAt  time.Time `json:"created_at"`
}

// SlotDetail is a slot joined with its reservation and client, used for exports.
type SlotDetail struct {
	Slot
	ClientID    *int64     `json:"client_id,omitempty"`
	ClientName  string     `json:"client_name,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}
