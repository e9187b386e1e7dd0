package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"inkwell/internal/models"
)

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName, contentType, fileBody string) (*bytes.Buffer, string) {
	t.Helper()
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("WriteField error: %v", err)
		}
	}
	if fileField != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="`+fileName+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart error: %v", err)
		}
		if _, err := part.Write([]byte(fileBody)); err != nil {
			t.Fatalf("write part error: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer error: %v", err)
	}
	return &buffer, writer.FormDataContentType()
}

func uploadRequest(t *testing.T, actor *models.User, body *bytes.Buffer, contentType string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/api/images", body)
	req.Header.Set("Content-Type", contentType)
	if actor != nil {
		req = req.WithContext(ContextWithUser(req.Context(), *actor))
	}
	return req
}

func TestUploadImageRequiresIdentity(t *testing.T) {
	h, _, _ := newTestHandler(t)

	body, contentType := multipartBody(t, nil, "image", "photo.png", "image/png", "png bytes")
	recorder := httptest.NewRecorder()
	h.UploadImage(recorder, uploadRequest(t, nil, body, contentType))
	expectFailure(t, recorder, http.StatusUnauthorized, "Not authenticated!")
}

func TestUploadImageStoresStagedBlob(t *testing.T) {
	h, store, blobs := newTestHandler(t)
	user := registerUser(t, store, "max@test.com")

	body, contentType := multipartBody(t, nil, "image", "photo.png", "image/png", "png bytes")
	recorder := httptest.NewRecorder()
	h.UploadImage(recorder, uploadRequest(t, &user, body, contentType))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["message"] != "File stored." {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	key, _ := payload["filePath"].(string)
	if !strings.HasPrefix(key, "upload-") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("expected staged png key, got %q", key)
	}
	if _, _, err := blobs.Open(key); err != nil {
		t.Fatalf("expected stored blob: %v", err)
	}
}

func TestUploadImageDiscardsNonImageParts(t *testing.T) {
	h, store, _ := newTestHandler(t)
	user := registerUser(t, store, "max@test.com")

	body, contentType := multipartBody(t, nil, "image", "notes.txt", "text/plain", "not an image")
	recorder := httptest.NewRecorder()
	h.UploadImage(recorder, uploadRequest(t, &user, body, contentType))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["message"] != "No file provided!" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
}

func TestUploadImageDeletesSupersededBlob(t *testing.T) {
	h, store, blobs := newTestHandler(t)
	user := registerUser(t, store, "max@test.com")
	if err := blobs.Save("upload-old.png", "image/png", strings.NewReader("stale")); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	body, contentType := multipartBody(t, map[string]string{"oldKey": "upload-old.png"}, "image", "photo.png", "image/png", "fresh bytes")
	recorder := httptest.NewRecorder()
	h.UploadImage(recorder, uploadRequest(t, &user, body, contentType))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	if _, _, err := blobs.Open("upload-old.png"); err == nil {
		t.Fatal("superseded blob should be deleted")
	}
}

func TestUploadImageRejectsNonMultipart(t *testing.T) {
	h, store, _ := newTestHandler(t)
	user := registerUser(t, store, "max@test.com")

	req := httptest.NewRequest(http.MethodPut, "/api/images", strings.NewReader("plain body"))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ContextWithUser(req.Context(), user))
	recorder := httptest.NewRecorder()
	h.UploadImage(recorder, req)
	expectFailure(t, recorder, http.StatusBadRequest, "Invalid multipart payload.")
}

func TestServeImage(t *testing.T) {
	h, _, blobs := newTestHandler(t)
	if err := blobs.Save("post-1.png", "image/png", strings.NewReader("png bytes")); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/images/post-1.png", nil)
	recorder := httptest.NewRecorder()
	h.ServeImage(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	if recorder.Body.String() != "png bytes" {
		t.Fatalf("unexpected body: %q", recorder.Body.String())
	}

	missing := httptest.NewRecorder()
	h.ServeImage(missing, httptest.NewRequest(http.MethodGet, "/images/missing.png", nil))
	expectFailure(t, missing, http.StatusNotFound, "Image not found.")
}

func TestServeImageBlocksTraversal(t *testing.T) {
	h, _, blobs := newTestHandler(t)
	if err := blobs.Save("secret.png", "image/png", strings.NewReader("bytes")); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	// The traversal collapses to the bare key; nothing outside the store
	// root is ever reachable.
	req := httptest.NewRequest(http.MethodGet, "/images/..%2F..%2Fsecret.png", nil)
	recorder := httptest.NewRecorder()
	h.ServeImage(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected collapsed key to resolve, got %d", recorder.Code)
	}
	if recorder.Body.String() != "bytes" {
		t.Fatalf("unexpected body: %q", recorder.Body.String())
	}
}
