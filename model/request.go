package model

import "time"

// RequestStatus is the state of an SOP request
type RequestStatus string

// Request status constants
const (
	RequestPending    RequestStatus = "Pending"
	RequestInProgress RequestStatus = "In Progress"
)

// Request asks for a new SOP to be written
type Request struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Department  string        `json:"department"`
	Submitter   string        `json:"submitter"`
	Priority    int           `json:"priority"` // 1 (low) .. 5 (urgent)
	Description string        `json:"description"`
	Status      RequestStatus `json:"status"`
	SubmittedAt time.Time     `json:"submittedAt"`
}

// User is a registered person who can author or review SOPs
type User struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
	Role  string `json:"role" yaml:"role"` // author, reviewer, admin
}

// User roles
const (
	RoleAuthor   = "author"
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
)

// ExportEntry records a PDF export without duplicating the record body
type ExportEntry struct {
	SOPID         string    `json:"sopId"`
	Title         string    `json:"title"`
	Version       string    `json:"version"`
	Status        Status    `json:"status"`
	ExportedAt    time.Time `json:"exportedAt"`
	ArchiveURL    string    `json:"archiveUrl,omitempty"`
	DeliveredTo   string    `json:"deliveredTo,omitempty"`
	DeliveryError string    `json:"deliveryError,omitempty"`
}
