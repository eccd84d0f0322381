package model

import "time"

// Occurrence is one concrete, display-ready showing of a calendar event
// (after recurrence expansion and description parsing). Values are built
// fresh for every request and never mutated afterwards.
type Occurrence struct {
	// ID is "{uid|title|event}-{start as ISO-8601 UTC millis}" and is unique
	// within a result set.
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Category comes from a "Type:" line in the description; may be empty.
	Category string `json:"type"`

	Image    string `json:"image,omitempty"`
	ImageAlt string `json:"imgalt,omitempty"`
	Summary  string `json:"desc,omitempty"`
}

// Reservation is a booking request after defaults have been applied.
type Reservation struct {
	FullName  string
	Phone     string
	Email     string
	PartySize string
	Date      string
	Time      string
	Notes     string
}
