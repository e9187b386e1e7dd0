package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"inkwell/internal/apperr"
)

// operationRequest is the dispatch envelope: one named operation plus its
// loosely typed argument bag.
type operationRequest struct {
	Operation string          `json:"operation"`
	Arguments json.RawMessage `json:"arguments"`
}

type operationFunc func(ctx context.Context, args json.RawMessage) (interface{}, error)

func (h *Handler) operations() map[string]operationFunc {
	return map[string]operationFunc{
		"createUser":   h.createUser,
		"login":        h.login,
		"createPost":   h.createPost,
		"fetchPosts":   h.fetchPosts,
		"getPost":      h.getPost,
		"updatePost":   h.updatePost,
		"deletePost":   h.deletePost,
		"status":       h.status,
		"updateStatus": h.updateStatus,
	}
}

// Operations is the single dispatch endpoint. It owns the full operation
// catalog and performs no domain logic itself: it parses the envelope, invokes
// the named operation, and translates any failure into the uniform error body.
func (h *Handler) Operations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeFailureMessage(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed.", r.Method))
		return
	}

	var req operationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailureMessage(w, http.StatusBadRequest, "Could not parse request body.")
		return
	}
	operation, ok := h.operations()[req.Operation]
	if !ok {
		writeFailureMessage(w, http.StatusBadRequest, fmt.Sprintf("Unknown operation %q.", req.Operation))
		return
	}

	payload, err := operation(r.Context(), req.Arguments)
	if err != nil {
		appErr := apperr.From(err)
		if apperr.IsKind(appErr, apperr.KindInternal) {
			h.Logger.Error("operation failed", "operation", req.Operation, "error", err)
		}
		writeFailure(w, appErr)
		return
	}
	status := http.StatusOK
	if req.Operation == "createUser" || req.Operation == "createPost" {
		status = http.StatusCreated
	}
	writeJSON(w, status, payload)
}

func decodeArguments(args json.RawMessage, dest interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, dest); err != nil {
		return apperr.Wrap(apperr.KindValidation, "Could not parse arguments.", err)
	}
	return nil
}
