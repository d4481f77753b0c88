package models

import "time"

type GigStatus string

const (
	GigPending   GigStatus = "Pending"
	GigAccepted  GigStatus = "Accepted"
	GigCompleted GigStatus = "Completed"
	GigDeclined  GigStatus = "Declined"
)

// Gig is a scheduled service engagement between a requester and a pal.
type Gig struct {
	ID            string     `json:"id"`
	PalID         string     `json:"pal_id,omitempty"`
	PalName       string     `json:"pal_name,omitempty"`
	RequesterID   string     `json:"requester_id,omitempty"`
	RequesterName string     `json:"requester_name"`
	Service       string     `json:"service"`
	Date          string     `json:"date"`
	Day           string     `json:"day"`
	Time          string     `json:"time"`
	Duration      string     `json:"duration,omitempty"`
	Status        GigStatus  `json:"status"`
	Price         float64    `json:"price"`
	Location      string     `json:"location"`
	Requirements  []string   `json:"requirements"`
	Version       int        `json:"version"`
	Timestamp     time.Time  `json:"timestamp"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
