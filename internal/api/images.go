package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"inkwell/internal/blob"
)

var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpg":  ".jpg",
	"image/jpeg": ".jpeg",
}

type uploadImageResponse struct {
	Message  string `json:"message"`
	FilePath string `json:"filePath,omitempty"`
}

// UploadImage stages an image blob ahead of a createPost or updatePost
// operation. Non-image parts are consumed and silently discarded rather than
// rejected; the response simply reports that no file was stored. An optional
// oldKey field requests best-effort deletion of a superseded blob.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		w.Header().Set("Allow", "PUT, POST")
		writeFailureMessage(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed.", r.Method))
		return
	}
	if _, err := requireActor(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}

	if err := h.uploadSlots.Acquire(r.Context(), 1); err != nil {
		writeFailureMessage(w, http.StatusServiceUnavailable, "Too many concurrent uploads.")
		return
	}
	defer h.uploadSlots.Release(1)

	reader, err := r.MultipartReader()
	if err != nil {
		writeFailureMessage(w, http.StatusBadRequest, "Invalid multipart payload.")
		return
	}

	var storedKey string
	var oldKey string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeFailureMessage(w, http.StatusBadRequest, "Could not read multipart data.")
			return
		}
		name := part.FormName()
		switch name {
		case "image":
			if storedKey != "" {
				_ = discardPart(part)
				continue
			}
			key, saveErr := h.stageImagePart(part)
			if saveErr != nil {
				writeFailure(w, saveErr)
				return
			}
			storedKey = key
		case "oldKey", "oldPath":
			payload, readErr := io.ReadAll(part)
			_ = part.Close()
			if readErr != nil {
				writeFailureMessage(w, http.StatusBadRequest, "Could not read form field.")
				return
			}
			oldKey = strings.TrimSpace(string(payload))
		default:
			_ = discardPart(part)
		}
	}

	if storedKey == "" {
		writeJSON(w, http.StatusOK, uploadImageResponse{Message: "No file provided!"})
		return
	}
	if oldKey != "" && oldKey != storedKey {
		h.removeBlob(blob.CleanKey(oldKey))
	}
	writeJSON(w, http.StatusCreated, uploadImageResponse{Message: "File stored.", FilePath: storedKey})
}

// stageImagePart saves an image part under a temporary key. Parts with a
// non-image content type are drained and dropped, mirroring the file filter
// this API has always had: no error, no stored file.
func (h *Handler) stageImagePart(part *multipart.Part) (string, error) {
	contentType := strings.ToLower(strings.TrimSpace(part.Header.Get("Content-Type")))
	if _, ok := allowedImageTypes[contentType]; !ok {
		return "", discardPart(part)
	}

	key, err := blob.NewStagedKey(part.FileName())
	if err != nil {
		_ = part.Close()
		return "", err
	}
	if path.Ext(key) == "" {
		key += allowedImageTypes[contentType]
	}
	err = h.Blobs.Save(key, contentType, part)
	_ = part.Close()
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return key, nil
}

func discardPart(part *multipart.Part) error {
	_, err := io.Copy(io.Discard, part)
	_ = part.Close()
	if err != nil {
		return fmt.Errorf("drain multipart part: %w", err)
	}
	return nil
}

var imageContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// ServeImage streams a stored blob. Keys never contain path separators, so
// the trailing path segment is the whole key.
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeFailureMessage(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed.", r.Method))
		return
	}
	key := blob.CleanKey(strings.TrimPrefix(r.URL.Path, "/images/"))
	if key == "" || key == "." {
		writeFailureMessage(w, http.StatusNotFound, "Image not found.")
		return
	}
	content, modified, err := h.Blobs.Open(key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeFailureMessage(w, http.StatusNotFound, "Image not found.")
			return
		}
		h.Logger.Error("open image blob failed", "key", key, "error", err)
		writeFailureMessage(w, http.StatusInternalServerError, "An error occurred.")
		return
	}
	defer content.Close()

	if contentType, ok := imageContentTypes[strings.ToLower(path.Ext(key))]; ok {
		w.Header().Set("Content-Type", contentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if !modified.IsZero() {
		w.Header().Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	}
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, content); err != nil {
		h.Logger.Debug("stream image interrupted", "key", key, "error", err)
	}
}
