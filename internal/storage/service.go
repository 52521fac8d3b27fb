package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"assistant/internal/blob"
	"assistant/internal/db"
	"assistant/internal/mediaurl"
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")
	ErrDisallowedType = errors.New("mime type not allowed in bucket")
	ErrExecutableFile = blob.ErrExecutableFile
	ErrFileTooLarge   = errors.New("object exceeds bucket size limit")
	ErrInvalidName    = errors.New("invalid object name")
	ErrInvalidBucket  = errors.New("invalid bucket name")
)

type BucketSpec struct {
	Name             string
	Public           bool
	FileSizeLimit    int64
	AllowedMimeTypes []string
}

type Bucket struct {
	Name             string    `json:"name"`
	Public           bool      `json:"public"`
	FileSizeLimit    int64     `json:"fileSizeLimit"`
	AllowedMimeTypes []string  `json:"allowedMimeTypes"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Object struct {
	Bucket       string    `json:"bucket"`
	Name         string    `json:"name"`
	StoragePath  string    `json:"-"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"size"`
	CacheControl string    `json:"cacheControl"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

// Service is a bucket/object store: metadata lives in SQLite, bytes on the
// filesystem.
type Service struct {
	db      *db.DB
	blobs   *blob.Service
	baseURL string
}

func NewService(database *db.DB, blobs *blob.Service, baseURL string) *Service {
	return &Service{
		db:      database,
		blobs:   blobs,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// EnsureBucket creates the bucket when it does not exist yet. created is
// false when a bucket with that name was already present; its settings are
// left untouched.
func (s *Service) EnsureBucket(ctx context.Context, spec BucketSpec) (bool, error) {
	name := strings.TrimSpace(spec.Name)
	if !validBucketName(name) {
		return false, ErrInvalidBucket
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets (name, public, file_size_limit, allowed_mime_types, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, spec.Public, spec.FileSizeLimit, joinMimeTypes(spec.AllowedMimeTypes), time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("creating bucket: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *Service) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	var (
		b       Bucket
		allowed string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, public, file_size_limit, allowed_mime_types, created_at FROM buckets WHERE name = ?`,
		name,
	).Scan(&b.Name, &b.Public, &b.FileSizeLimit, &allowed, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting bucket: %w", err)
	}
	b.AllowedMimeTypes = splitMimeTypes(allowed)
	return &b, nil
}

// Upload stores r as bucket/name. With Upsert an existing object is
// replaced and its previous bytes are deleted; without it an existing name
// fails with ErrObjectExists.
func (s *Service) Upload(ctx context.Context, bucketName, name string, r io.Reader, opts UploadOptions) (*Object, error) {
	if !validObjectName(name) {
		return nil, ErrInvalidName
	}

	bucket, err := s.GetBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	contentType := blob.TrimMimeParams(opts.ContentType)
	if contentType != "" && !bucket.allows(contentType) {
		return nil, ErrDisallowedType
	}

	if !opts.Upsert {
		if _, err := s.Stat(ctx, bucketName, name); err == nil {
			return nil, ErrObjectExists
		} else if !errors.Is(err, ErrObjectNotFound) {
			return nil, err
		}
	}

	objectID, err := db.GenerateID("obj")
	if err != nil {
		return nil, fmt.Errorf("generating object id: %w", err)
	}
	storagePath := blob.ObjectPath(bucket.Name, objectID)

	written, err := s.blobs.Write(storagePath, r, bucket.FileSizeLimit)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrFileTooLarge):
			return nil, ErrFileTooLarge
		case errors.Is(err, blob.ErrExecutableFile):
			return nil, ErrExecutableFile
		default:
			return nil, fmt.Errorf("writing object data: %w", err)
		}
	}

	if contentType == "" {
		contentType = written.DetectedMimeType
	}
	if blob.IsBlockedMimeType(written.DetectedMimeType) || !bucket.allows(contentType) {
		s.deleteBlob(storagePath)
		return nil, ErrDisallowedType
	}

	now := time.Now().UTC()
	obj := &Object{
		Bucket:       bucket.Name,
		Name:         name,
		StoragePath:  storagePath,
		MimeType:     contentType,
		SizeBytes:    written.SizeBytes,
		CacheControl: opts.CacheControl,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	replaced, err := s.saveObject(ctx, obj, opts.Upsert)
	if err != nil {
		s.deleteBlob(storagePath)
		return nil, err
	}
	if replaced != "" && replaced != storagePath {
		s.deleteBlob(replaced)
	}

	return obj, nil
}

// saveObject records obj and returns the storage path of the object it
// replaced, if any.
func (s *Service) saveObject(ctx context.Context, obj *Object, upsert bool) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previousPath string
	var previousCreated time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT storage_path, created_at FROM objects WHERE bucket = ? AND name = ?`,
		obj.Bucket, obj.Name,
	).Scan(&previousPath, &previousCreated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO objects (bucket, name, storage_path, mime_type, size_bytes, cache_control, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			obj.Bucket, obj.Name, obj.StoragePath, obj.MimeType, obj.SizeBytes, obj.CacheControl, obj.CreatedAt, obj.UpdatedAt,
		)
		if db.IsUniqueConstraintError(err) {
			return "", ErrObjectExists
		}
		if err != nil {
			return "", fmt.Errorf("inserting object: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("looking up object: %w", err)
	case !upsert:
		return "", ErrObjectExists
	default:
		obj.CreatedAt = previousCreated
		_, err = tx.ExecContext(ctx,
			`UPDATE objects SET storage_path = ?, mime_type = ?, size_bytes = ?, cache_control = ?, updated_at = ?
			 WHERE bucket = ? AND name = ?`,
			obj.StoragePath, obj.MimeType, obj.SizeBytes, obj.CacheControl, obj.UpdatedAt, obj.Bucket, obj.Name,
		)
		if err != nil {
			return "", fmt.Errorf("updating object: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing object: %w", err)
	}
	return previousPath, nil
}

func (s *Service) Stat(ctx context.Context, bucket, name string) (*Object, error) {
	var obj Object
	err := s.db.QueryRowContext(ctx,
		`SELECT bucket, name, storage_path, mime_type, size_bytes, cache_control, created_at, updated_at
		 FROM objects WHERE bucket = ? AND name = ?`,
		bucket, name,
	).Scan(&obj.Bucket, &obj.Name, &obj.StoragePath, &obj.MimeType, &obj.SizeBytes, &obj.CacheControl, &obj.CreatedAt, &obj.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting object: %w", err)
	}
	return &obj, nil
}

// OpenPublic opens an object for serving. Objects in private buckets are
// reported as not found.
func (s *Service) OpenPublic(ctx context.Context, bucketName, name string) (*Object, *os.File, error) {
	bucket, err := s.GetBucket(ctx, bucketName)
	if errors.Is(err, ErrBucketNotFound) {
		return nil, nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if !bucket.Public {
		return nil, nil, ErrObjectNotFound
	}
	return s.Open(ctx, bucketName, name)
}

func (s *Service) Open(ctx context.Context, bucket, name string) (*Object, *os.File, error) {
	obj, err := s.Stat(ctx, bucket, name)
	if err != nil {
		return nil, nil, err
	}

	f, err := s.blobs.Open(obj.StoragePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening object data: %w", err)
	}
	return obj, f, nil
}

// Download reads a whole object into memory.
func (s *Service) Download(ctx context.Context, bucket, name string) ([]byte, string, error) {
	obj, f, err := s.Open(ctx, bucket, name)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("reading object data: %w", err)
	}
	return data, obj.MimeType, nil
}

func (s *Service) Remove(ctx context.Context, bucket, name string) error {
	obj, err := s.Stat(ctx, bucket, name)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM objects WHERE bucket = ? AND name = ? AND storage_path = ?`,
		bucket, name, obj.StoragePath,
	)
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrObjectNotFound
	}

	s.deleteBlob(obj.StoragePath)
	return nil
}

func (s *Service) PublicURL(bucket, name string) string {
	return mediaurl.Object(s.baseURL, bucket, name)
}

func (s *Service) listUpdatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Object, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bucket, name, storage_path FROM objects WHERE updated_at < ? ORDER BY updated_at LIMIT ?`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing expired objects: %w", err)
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		var obj Object
		if err := rows.Scan(&obj.Bucket, &obj.Name, &obj.StoragePath); err != nil {
			return nil, fmt.Errorf("scanning expired object: %w", err)
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

func (s *Service) deleteBlob(storagePath string) {
	if err := s.blobs.Delete(storagePath); err != nil {
		slog.Warn("error deleting object data", "component", "storage", "error", err, "storage_path", storagePath)
	}
}

func (b *Bucket) allows(mimeType string) bool {
	mimeType = blob.TrimMimeParams(mimeType)
	if mimeType == "" || blob.IsBlockedMimeType(mimeType) {
		return false
	}
	if len(b.AllowedMimeTypes) == 0 {
		return true
	}
	for _, pattern := range b.AllowedMimeTypes {
		if MatchMimeType(pattern, mimeType) {
			return true
		}
	}
	return false
}

// MatchMimeType matches a media type against an exact type or a wildcard
// pattern such as "image/*".
func MatchMimeType(pattern, mimeType string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	mimeType = blob.TrimMimeParams(mimeType)
	switch {
	case pattern == "*" || pattern == "*/*":
		return true
	case strings.HasSuffix(pattern, "/*"):
		return strings.HasPrefix(mimeType, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == mimeType
	}
}

func validBucketName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return name != "." && name != ".."
}

func validObjectName(name string) bool {
	if name == "" || len(name) > 1024 || strings.HasPrefix(name, "/") {
		return false
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}

func joinMimeTypes(types []string) string {
	cleaned := make([]string, 0, len(types))
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return strings.Join(cleaned, ",")
}

func splitMimeTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
