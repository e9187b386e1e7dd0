package api

import (
	"context"
	"encoding/json"
	"errors"

	"inkwell/internal/apperr"
	"inkwell/internal/blob"
	"inkwell/internal/models"
	"inkwell/internal/storage"
	"inkwell/internal/validate"
)

type createPostArgs struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageKey string `json:"imageKey"`
}

type createPostResponse struct {
	Message string       `json:"message"`
	Post    postResponse `json:"post"`
}

func (h *Handler) createPost(ctx context.Context, args json.RawMessage) (interface{}, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var req createPostArgs
	if err := decodeArguments(args, &req); err != nil {
		return nil, err
	}

	var checks validate.Violations
	checks.Title("title", req.Title)
	checks.Content("content", req.Content)
	if err := checks.Err(); err != nil {
		return nil, err
	}

	if _, found, err := h.Store.GetUser(actor.ID); err != nil {
		return nil, apperr.Internal(err)
	} else if !found {
		return nil, apperr.NotFound("User not found.")
	}

	imageKey := blob.CleanKey(req.ImageKey)
	post, err := h.Store.CreatePost(storage.CreatePostParams{
		Title:     validate.NormalizeText(req.Title),
		Content:   validate.NormalizeText(req.Content),
		ImageKey:  imageKey,
		CreatorID: actor.ID,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	// The post stands even when the owner's reference set cannot be
	// re-saved; the gap is logged, not rolled back.
	if err := h.Store.AppendUserPost(actor.ID, post.ID); err != nil {
		h.Logger.Error("append post reference failed", "post", post.ID, "user", actor.ID, "error", err)
	}

	if blob.IsStaged(post.ImageKey) {
		post = h.claimStagedImage(post)
	}
	return createPostResponse{Message: "Post created!", Post: newPostResponse(post)}, nil
}

// claimStagedImage renames a staged blob to its post-derived key and records
// the new reference. Both steps are best-effort: a failure leaves the post
// pointing at whichever key last succeeded, and is only logged.
func (h *Handler) claimStagedImage(post models.Post) models.Post {
	stagedKey := post.ImageKey
	finalKey := blob.PostKey(post.ID, stagedKey)
	if h.Blobs == nil {
		return post
	}
	if err := h.Blobs.Rename(stagedKey, finalKey); err != nil {
		h.Logger.Error("claim image blob failed", "post", post.ID, "key", stagedKey, "error", err)
		return post
	}
	updated, err := h.Store.UpdatePost(post.ID, storage.PostUpdate{ImageKey: &finalKey})
	if err != nil {
		h.Logger.Error("record image key failed", "post", post.ID, "key", finalKey, "error", err)
		return post
	}
	return updated
}

type fetchPostsArgs struct {
	Page int `json:"page"`
}

type fetchPostsResponse struct {
	Posts      []postResponse `json:"posts"`
	TotalPosts int            `json:"totalPosts"`
}

func (h *Handler) fetchPosts(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	var req fetchPostsArgs
	if err := decodeArguments(args, &req); err != nil {
		return nil, err
	}
	page := req.Page
	if page < 1 {
		page = 1
	}

	posts, total, err := h.Store.ListPosts(page, h.pageSize())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	response := fetchPostsResponse{Posts: make([]postResponse, 0, len(posts)), TotalPosts: total}
	for _, post := range posts {
		response.Posts = append(response.Posts, newPostResponse(post))
	}
	return response, nil
}

type postIDArgs struct {
	ID string `json:"id"`
}

type getPostResponse struct {
	Post postResponse `json:"post"`
}

func (h *Handler) getPost(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	var req postIDArgs
	if err := decodeArguments(args, &req); err != nil {
		return nil, err
	}

	post, found, err := h.Store.GetPost(req.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !found {
		return nil, apperr.NotFound("Could not find post.")
	}
	return getPostResponse{Post: newPostResponse(post)}, nil
}

type updatePostArgs struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageKey string `json:"imageKey"`
}

type updatePostResponse struct {
	Message string       `json:"message"`
	Post    postResponse `json:"post"`
}

func (h *Handler) updatePost(ctx context.Context, args json.RawMessage) (interface{}, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var req updatePostArgs
	if err := decodeArguments(args, &req); err != nil {
		return nil, err
	}

	post, found, err := h.Store.GetPost(req.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !found {
		return nil, apperr.NotFound("Could not find post.")
	}
	if post.CreatorID != actor.ID {
		return nil, apperr.Authorization("Not authorized!")
	}

	var checks validate.Violations
	checks.Title("title", req.Title)
	checks.Content("content", req.Content)
	if err := checks.Err(); err != nil {
		return nil, err
	}

	title := validate.NormalizeText(req.Title)
	content := validate.NormalizeText(req.Content)
	update := storage.PostUpdate{Title: &title, Content: &content}

	previousKey := post.ImageKey
	newKey := blob.CleanKey(req.ImageKey)
	replacingImage := newKey != "" && newKey != previousKey
	if replacingImage {
		finalKey := newKey
		if blob.IsStaged(newKey) && h.Blobs != nil {
			finalKey = blob.PostKey(post.ID, newKey)
			if err := h.Blobs.Rename(newKey, finalKey); err != nil {
				h.Logger.Error("claim image blob failed", "post", post.ID, "key", newKey, "error", err)
			}
		}
		update.ImageKey = &finalKey
	}

	updated, err := h.Store.UpdatePost(post.ID, update)
	if err != nil {
		if errors.Is(err, storage.ErrPostNotFound) {
			return nil, apperr.NotFound("Could not find post.")
		}
		return nil, apperr.Internal(err)
	}

	if replacingImage && previousKey != "" && previousKey != updated.ImageKey {
		h.removeBlob(previousKey)
	}
	return updatePostResponse{Message: "Post updated!", Post: newPostResponse(updated)}, nil
}

type deletePostResponse struct {
	Message string `json:"message"`
	Deleted bool   `json:"deleted"`
}

func (h *Handler) deletePost(ctx context.Context, args json.RawMessage) (interface{}, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var req postIDArgs
	if err := decodeArguments(args, &req); err != nil {
		return nil, err
	}

	post, found, err := h.Store.GetPost(req.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !found {
		return nil, apperr.NotFound("Could not find post.")
	}
	if post.CreatorID != actor.ID {
		return nil, apperr.Authorization("Not authorized!")
	}

	// Cleanup is gated on the reported delete so a racing second delete
	// (which sees not-found) never triggers it again.
	if err := h.Store.DeletePost(post.ID); err != nil {
		if errors.Is(err, storage.ErrPostNotFound) {
			return nil, apperr.NotFound("Could not find post.")
		}
		return nil, apperr.Internal(err)
	}

	if post.ImageKey != "" {
		h.removeBlob(post.ImageKey)
	}
	if err := h.Store.RemoveUserPost(post.CreatorID, post.ID); err != nil {
		h.Logger.Error("remove post reference failed", "post", post.ID, "user", post.CreatorID, "error", err)
	}
	return deletePostResponse{Message: "Post deleted!", Deleted: true}, nil
}

// removeBlob is fire-and-forget: failures are logged, never retried or
// surfaced.
func (h *Handler) removeBlob(key string) {
	if h.Blobs == nil || key == "" {
		return
	}
	if err := h.Blobs.Delete(key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		h.Logger.Error("delete image blob failed", "key", key, "error", err)
	}
}
