package storage

import (
	"context"
	"errors"

	"inkwell/internal/models"
)

var (
	// ErrEmailTaken is returned when registration finds the address already
	// in use. The check is read-then-insert, so two racing registrations can
	// both miss it.
	ErrEmailTaken = errors.New("email already in use")
	// ErrUserNotFound is returned by user lookups and updates on a missing id.
	ErrUserNotFound = errors.New("user not found")
	// ErrPostNotFound is returned by post lookups, updates, and deletes on a
	// missing id.
	ErrPostNotFound = errors.New("post not found")
)

// CreateUserParams carries the fields persisted at registration. The password
// arrives pre-hashed; the store never sees plaintext credentials.
type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
}

// CreatePostParams carries the fields persisted when a post is created.
type CreatePostParams struct {
	Title     string
	Content   string
	ImageKey  string
	CreatorID string
}

// PostUpdate mutates a post. Nil fields are left untouched; a non-nil
// ImageKey replaces the reference even when it points at the empty string.
type PostUpdate struct {
	Title    *string
	Content  *string
	ImageKey *string
}

// Repository exposes the datastore operations required by the API facades.
// Both the JSON file driver and the Postgres driver satisfy it.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	GetUser(id string) (models.User, bool, error)
	FindUserByEmail(email string) (models.User, bool, error)
	UpdateUserStatus(id, status string) (models.User, error)
	AppendUserPost(userID, postID string) error
	RemoveUserPost(userID, postID string) error

	CreatePost(params CreatePostParams) (models.Post, error)
	GetPost(id string) (models.Post, bool, error)
	ListPosts(page, perPage int) ([]models.Post, int, error)
	UpdatePost(id string, update PostUpdate) (models.Post, error)
	DeletePost(id string) error
}

var (
	_ Repository = (*Storage)(nil)
	_ Repository = (*postgresRepository)(nil)
)
