package api

import (
	"context"
	"encoding/json"
	"errors"

	"inkwell/internal/apperr"
	"inkwell/internal/auth"
	"inkwell/internal/storage"
	"inkwell/internal/validate"
)

type createUserArgs struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type createUserResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

func (h *Handler) createUser(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req createUserArgs
	if err := decodeArguments(args, &req); err != nil {
		return nil, err
	}

	var checks validate.Violations
	checks.Email("email", req.Email)
	checks.Name("name", req.Name)
	checks.Password("password", req.Password)
	if err := checks.Err(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(validate.NormalizeText(req.Password))
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user, err := h.Store.CreateUser(storage.CreateUserParams{
		Email:        validate.NormalizeEmail(req.Email),
		Name:         validate.NormalizeText(req.Name),
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return nil, apperr.Conflict("User exists already!")
		}
		return nil, apperr.Internal(err)
	}
	return createUserResponse{Message: "User created!", User: newUserResponse(user)}, nil
}

type loginArgs struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// login is the one read path allowed to touch the password hash. Unknown
// address and wrong password share the same kind and status; only the message
// differs.
func (h *Handler) login(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req loginArgs
	if err := decodeArguments(args, &req); err != nil {
		return nil, err
	}

	user, found, err := h.Store.FindUserByEmail(validate.NormalizeEmail(req.Email))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !found {
		return nil, apperr.Authentication("A user with this email could not be found.")
	}
	if err := auth.VerifyPassword(user.PasswordHash, validate.NormalizeText(req.Password)); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, apperr.Authentication("Password is incorrect.")
		}
		return nil, apperr.Internal(err)
	}

	token, err := h.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return loginResponse{Token: token, UserID: user.ID}, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

func (h *Handler) status(ctx context.Context, args json.RawMessage) (interface{}, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	user, found, err := h.Store.GetUser(actor.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !found {
		return nil, apperr.NotFound("User not found.")
	}
	return statusResponse{Status: user.Status}, nil
}

type updateStatusArgs struct {
	Status string `json:"status"`
}

type updateStatusResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (h *Handler) updateStatus(ctx context.Context, args json.RawMessage) (interface{}, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var req updateStatusArgs
	if err := decodeArguments(args, &req); err != nil {
		return nil, err
	}

	var checks validate.Violations
	checks.Status("status", req.Status)
	if err := checks.Err(); err != nil {
		return nil, err
	}

	user, err := h.Store.UpdateUserStatus(actor.ID, validate.NormalizeText(req.Status))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, apperr.NotFound("User not found.")
		}
		return nil, apperr.Internal(err)
	}
	return updateStatusResponse{Message: "Status updated!", Status: user.Status}, nil
}
