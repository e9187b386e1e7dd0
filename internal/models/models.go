package models

import "time"

// DefaultStatus is assigned to every account at registration until the user
// changes it.
const DefaultStatus = "I am new!"

// User is a registered account. PasswordHash persists with the record (the
// JSON-file driver round-trips this struct) and must never appear in a
// response body; API responses translate through DTOs that omit it.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Status       string    `json:"status"`
	Posts        []string  `json:"posts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Post is a single authored entry. CreatorID is fixed at creation and never
// reassigned; ImageKey addresses the blob store and may be empty.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageKey  string    `json:"imageKey,omitempty"`
	CreatorID string    `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
