// Package storage keeps character attachments (signature text and screenshot
// images) outside the database. Records reference attachments by handle, a
// slash separated key such as "uploads/screenshot-1700000000000-ab12cd34.png".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Kind string

const (
	KindSignature  Kind = "signatures"
	KindScreenshot Kind = "uploads"
)

var (
	ErrNotFound      = errors.New("attachment not found")
	ErrInvalidHandle = errors.New("invalid attachment handle")
)

var screenshotExtByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Object describes a stored attachment as reported by a Backend listing.
type Object struct {
	Key     string
	ModTime time.Time
}

// Backend is a flat key/value blob store.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get returns ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Remove succeeds when the key is already gone.
	Remove(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Content is an attachment body to be stored.
type Content struct {
	Reader      io.Reader
	Size        int64
	ContentType string
	// Filename is the client supplied name; only its extension is used.
	Filename string
}

type Store struct {
	backend Backend
	now     func() time.Time
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

// Store writes content for the character and returns its handle. Signatures
// overwrite a per-character key; screenshots always get a fresh name.
func (s *Store) Store(ctx context.Context, kind Kind, characterID uint, content Content) (string, error) {
	var key string
	switch kind {
	case KindSignature:
		key = SignatureHandle(characterID)
	case KindScreenshot:
		key = s.screenshotHandle(content)
	default:
		return "", fmt.Errorf("unknown attachment kind %q", kind)
	}

	if err := s.backend.Put(ctx, key, content.Reader, content.Size, content.ContentType); err != nil {
		return "", fmt.Errorf("store %s attachment failed: %w", kind, err)
	}
	return key, nil
}

func (s *Store) Read(ctx context.Context, handle string) ([]byte, error) {
	rc, err := s.Open(ctx, handle)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read attachment failed: %w", err)
	}
	return data, nil
}

func (s *Store) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	if _, _, err := ParseHandle(handle); err != nil {
		return nil, err
	}
	return s.backend.Get(ctx, handle)
}

// Delete removes the attachment. A missing attachment is not an error.
func (s *Store) Delete(ctx context.Context, handle string) error {
	if _, _, err := ParseHandle(handle); err != nil {
		return err
	}
	if err := s.backend.Remove(ctx, handle); err != nil {
		return fmt.Errorf("delete attachment failed: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, kind Kind) ([]Object, error) {
	return s.backend.List(ctx, string(kind))
}

func SignatureHandle(characterID uint) string {
	return path.Join(string(KindSignature), fmt.Sprintf("signature-%d.txt", characterID))
}

// URL is the public path the attachment is served under.
func URL(handle string) string {
	return "/" + handle
}

// ParseHandle splits a handle into kind and file name, rejecting anything that
// could escape the kind directory.
func ParseHandle(handle string) (Kind, string, error) {
	dir, name, ok := strings.Cut(handle, "/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", "", ErrInvalidHandle
	}
	kind := Kind(dir)
	if kind != KindSignature && kind != KindScreenshot {
		return "", "", ErrInvalidHandle
	}
	return kind, name, nil
}

func (s *Store) screenshotHandle(content Content) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	name := fmt.Sprintf("screenshot-%d-%s%s", s.now().UnixMilli(), suffix, screenshotExt(content))
	return path.Join(string(KindScreenshot), name)
}

func screenshotExt(content Content) string {
	ext := strings.ToLower(path.Ext(content.Filename))
	if lo.Contains(lo.Values(screenshotExtByType), ext) || ext == ".jpeg" {
		return ext
	}
	if byType, ok := screenshotExtByType[content.ContentType]; ok {
		return byType
	}
	return ".img"
}
