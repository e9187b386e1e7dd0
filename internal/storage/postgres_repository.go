package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkwell/internal/models"
)

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// schema exists.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{pool: pool, cfg: cfg}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *postgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	ctx := context.Background()
	if params.Email == "" {
		return models.User{}, errors.New("email is required")
	}

	// Uniqueness is a read-then-insert check, not a constraint; concurrent
	// registrations for the same address can both pass it.
	var existing string
	err := r.pool.QueryRow(ctx, `
SELECT id FROM users WHERE email = $1
`, params.Email).Scan(&existing)
	if err == nil {
		return models.User{}, ErrEmailTaken
	}
	if !isNoRows(err) {
		return models.User{}, fmt.Errorf("check email: %w", err)
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	now := r.cfg.Clock()
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
	_, err = r.pool.Exec(ctx, `
INSERT INTO users (id, email, name, password_hash, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, user.ID, user.Email, user.Name, user.PasswordHash, user.Status, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) loadUserPosts(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
SELECT post_id FROM user_posts WHERE user_id = $1 ORDER BY post_id
`, userID)
	if err != nil {
		return nil, fmt.Errorf("load user posts: %w", err)
	}
	defer rows.Close()

	posts := []string{}
	for rows.Next() {
		var postID string
		if err := rows.Scan(&postID); err != nil {
			return nil, fmt.Errorf("scan user post: %w", err)
		}
		posts = append(posts, postID)
	}
	return posts, rows.Err()
}

func (r *postgresRepository) scanUser(ctx context.Context, row pgx.Row) (models.User, bool, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return models.User{}, false, nil
		}
		return models.User{}, false, err
	}
	posts, err := r.loadUserPosts(ctx, user.ID)
	if err != nil {
		return models.User{}, false, err
	}
	user.Posts = posts
	return user, true, nil
}

func (r *postgresRepository) GetUser(id string) (models.User, bool, error) {
	ctx := context.Background()
	row := r.pool.QueryRow(ctx, `
SELECT id, email, name, password_hash, status, created_at, updated_at
FROM users WHERE id = $1
`, id)
	return r.scanUser(ctx, row)
}

func (r *postgresRepository) FindUserByEmail(email string) (models.User, bool, error) {
	ctx := context.Background()
	row := r.pool.QueryRow(ctx, `
SELECT id, email, name, password_hash, status, created_at, updated_at
FROM users WHERE email = $1
`, email)
	return r.scanUser(ctx, row)
}

func (r *postgresRepository) UpdateUserStatus(id, status string) (models.User, error) {
	ctx := context.Background()
	tag, err := r.pool.Exec(ctx, `
UPDATE users SET status = $2, updated_at = $3 WHERE id = $1
`, id, status, r.cfg.Clock())
	if err != nil {
		return models.User{}, fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, ErrUserNotFound
	}
	user, ok, err := r.GetUser(id)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *postgresRepository) AppendUserPost(userID, postID string) error {
	ctx := context.Background()
	var exists string
	if err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE id = $1`, userID).Scan(&exists); err != nil {
		if isNoRows(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("check user: %w", err)
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO user_posts (user_id, post_id)
VALUES ($1, $2)
ON CONFLICT (user_id, post_id) DO NOTHING
`, userID, postID)
	if err != nil {
		return fmt.Errorf("append user post: %w", err)
	}
	return nil
}

func (r *postgresRepository) RemoveUserPost(userID, postID string) error {
	ctx := context.Background()
	var exists string
	if err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE id = $1`, userID).Scan(&exists); err != nil {
		if isNoRows(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("check user: %w", err)
	}
	_, err := r.pool.Exec(ctx, `
DELETE FROM user_posts WHERE user_id = $1 AND post_id = $2
`, userID, postID)
	if err != nil {
		return fmt.Errorf("remove user post: %w", err)
	}
	return nil
}

func (r *postgresRepository) CreatePost(params CreatePostParams) (models.Post, error) {
	ctx := context.Background()
	id, err := generateID()
	if err != nil {
		return models.Post{}, err
	}
	now := r.cfg.Clock()
	post := models.Post{
		ID:        id,
		Title:     params.Title,
		Content:   params.Content,
		ImageKey:  params.ImageKey,
		CreatorID: params.CreatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO posts (id, title, content, image_key, creator_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, post.ID, post.Title, post.Content, post.ImageKey, post.CreatorID, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return models.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

func (r *postgresRepository) GetPost(id string) (models.Post, bool, error) {
	ctx := context.Background()
	var post models.Post
	err := r.pool.QueryRow(ctx, `
SELECT id, title, content, image_key, creator_id, created_at, updated_at
FROM posts WHERE id = $1
`, id).Scan(&post.ID, &post.Title, &post.Content, &post.ImageKey, &post.CreatorID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return models.Post{}, false, nil
		}
		return models.Post{}, false, err
	}
	return post, true, nil
}

func (r *postgresRepository) ListPosts(page, perPage int) ([]models.Post, int, error) {
	ctx := context.Background()
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, title, content, image_key, creator_id, created_at, updated_at
FROM posts
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2
`, perPage, perPage*(page-1))
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.Title, &post.Content, &post.ImageKey, &post.CreatorID, &post.CreatedAt, &post.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *postgresRepository) UpdatePost(id string, update PostUpdate) (models.Post, error) {
	ctx := context.Background()
	post, ok, err := r.GetPost(id)
	if err != nil {
		return models.Post{}, err
	}
	if !ok {
		return models.Post{}, ErrPostNotFound
	}

	if update.Title != nil {
		post.Title = *update.Title
	}
	if update.Content != nil {
		post.Content = *update.Content
	}
	if update.ImageKey != nil {
		post.ImageKey = *update.ImageKey
	}
	post.UpdatedAt = r.cfg.Clock()

	tag, err := r.pool.Exec(ctx, `
UPDATE posts SET title = $2, content = $3, image_key = $4, updated_at = $5
WHERE id = $1
`, post.ID, post.Title, post.Content, post.ImageKey, post.UpdatedAt)
	if err != nil {
		return models.Post{}, fmt.Errorf("update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Post{}, ErrPostNotFound
	}
	return post, nil
}

func (r *postgresRepository) DeletePost(id string) error {
	ctx := context.Background()
	tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}
