package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"inkwell/internal/models"
)

type dataset struct {
	Users map[string]models.User `json:"users"`
	Posts map[string]models.Post `json:"posts"`
}

func newDataset() dataset {
	return dataset{
		Users: make(map[string]models.User),
		Posts: make(map[string]models.Post),
	}
}

// Storage is the JSON-file datastore. All access is serialized through the
// mutex; every mutation rewrites the backing file atomically and rolls the
// in-memory state back when the write fails.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	clock    func() time.Time
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

// NewStorage opens (or initializes) the JSON datastore at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath: path,
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Posts == nil {
		s.data.Posts = make(map[string]models.Post)
	}
	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// Ping reports whether the backing directory is writable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.filePath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

// Close is a no-op for the file-backed store.
func (s *Storage) Close(ctx context.Context) error {
	return nil
}

func cloneUser(user models.User) models.User {
	cloned := user
	if user.Posts != nil {
		cloned.Posts = append([]string(nil), user.Posts...)
	}
	return cloned
}

func generateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// CreateUser registers a new account. The email must already be normalized to
// lowercase by the caller; uniqueness is a scan over existing users.
func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if params.Email == "" {
		return models.User{}, errors.New("email is required")
	}
	for _, user := range s.data.Users {
		if user.Email == params.Email {
			return models.User{}, ErrEmailTaken
		}
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}

	now := s.clock()
	user := models.User{
		ID:           id,
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: params.PasswordHash,
		Status:       models.DefaultStatus,
		Posts:        []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, id)
		return models.User{}, err
	}
	return cloneUser(user), nil
}

// GetUser fetches a user by id.
func (s *Storage) GetUser(id string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, false, nil
	}
	return cloneUser(user), true, nil
}

// FindUserByEmail fetches a user by normalized address. This is the one read
// path that exposes the password hash, used only by login.
func (s *Storage) FindUserByEmail(email string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.data.Users {
		if user.Email == email {
			return cloneUser(user), true, nil
		}
	}
	return models.User{}, false, nil
}

// UpdateUserStatus replaces the status line.
func (s *Storage) UpdateUserStatus(id, status string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.data.Users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}

	updated := cloneUser(previous)
	updated.Status = status
	updated.UpdatedAt = s.clock()

	s.data.Users[id] = updated
	if err := s.persist(); err != nil {
		s.data.Users[id] = previous
		return models.User{}, err
	}
	return cloneUser(updated), nil
}

// AppendUserPost adds a post reference to the user's owned set.
func (s *Storage) AppendUserPost(userID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.data.Users[userID]
	if !ok {
		return ErrUserNotFound
	}

	for _, existing := range previous.Posts {
		if existing == postID {
			return nil
		}
	}

	updated := cloneUser(previous)
	updated.Posts = append(updated.Posts, postID)

	s.data.Users[userID] = updated
	if err := s.persist(); err != nil {
		s.data.Users[userID] = previous
		return err
	}
	return nil
}

// RemoveUserPost drops a post reference from the user's owned set. Removing
// an absent reference is not an error.
func (s *Storage) RemoveUserPost(userID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.data.Users[userID]
	if !ok {
		return ErrUserNotFound
	}

	updated := cloneUser(previous)
	filtered := updated.Posts[:0]
	for _, existing := range updated.Posts {
		if existing != postID {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(previous.Posts) {
		return nil
	}
	updated.Posts = filtered

	s.data.Users[userID] = updated
	if err := s.persist(); err != nil {
		s.data.Users[userID] = previous
		return err
	}
	return nil
}

// CreatePost persists a new post owned by params.CreatorID.
func (s *Storage) CreatePost(params CreatePostParams) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := generateID()
	if err != nil {
		return models.Post{}, err
	}

	now := s.clock()
	post := models.Post{
		ID:        id,
		Title:     params.Title,
		Content:   params.Content,
		ImageKey:  params.ImageKey,
		CreatorID: params.CreatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.data.Posts[id] = post
	if err := s.persist(); err != nil {
		delete(s.data.Posts, id)
		return models.Post{}, err
	}
	return post, nil
}

// GetPost fetches a post by id.
func (s *Storage) GetPost(id string) (models.Post, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.data.Posts[id]
	if !ok {
		return models.Post{}, false, nil
	}
	return post, true, nil
}

// ListPosts returns the page-th slice (1-indexed) ordered by creation time
// descending plus the total count. Creation-time ties break on id so pages
// remain stable.
func (s *Storage) ListPosts(page, perPage int) ([]models.Post, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}

	ordered := make([]models.Post, 0, len(s.data.Posts))
	for _, post := range s.data.Posts {
		ordered = append(ordered, post)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})

	total := len(ordered)
	skip := perPage * (page - 1)
	if skip >= total {
		return []models.Post{}, total, nil
	}
	end := skip + perPage
	if end > total {
		end = total
	}
	return append([]models.Post(nil), ordered[skip:end]...), total, nil
}

// UpdatePost applies the non-nil fields of update.
func (s *Storage) UpdatePost(id string, update PostUpdate) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.data.Posts[id]
	if !ok {
		return models.Post{}, ErrPostNotFound
	}

	updated := previous
	if update.Title != nil {
		updated.Title = *update.Title
	}
	if update.Content != nil {
		updated.Content = *update.Content
	}
	if update.ImageKey != nil {
		updated.ImageKey = *update.ImageKey
	}
	updated.UpdatedAt = s.clock()

	s.data.Posts[id] = updated
	if err := s.persist(); err != nil {
		s.data.Posts[id] = previous
		return models.Post{}, err
	}
	return updated, nil
}

// DeletePost removes a post. Deleting an absent id returns ErrPostNotFound so
// callers can gate collateral cleanup on reported success.
func (s *Storage) DeletePost(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.data.Posts[id]
	if !ok {
		return ErrPostNotFound
	}

	delete(s.data.Posts, id)
	if err := s.persist(); err != nil {
		s.data.Posts[id] = previous
		return err
	}
	return nil
}
