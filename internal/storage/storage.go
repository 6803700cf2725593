package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned by Open when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Object describes a stored blob.
type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// Store is the object storage collaborator. Keys are slash separated and
// namespaced by owner and listing; PublicURL turns a key into a resolvable URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// ObjectKey builds `<userID>/<listingID>/<content hash>.<ext>`. Content
// addressing makes a retried upload of the same bytes land on the same key.
func ObjectKey(userID, listingID, filename string, data []byte) string {
	sum := blake2b.Sum256(data)
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	name := hex.EncodeToString(sum[:16])
	if ext != "" {
		name += "." + ext
	}
	return path.Join(userID, listingID, name)
}

// KeyFromURL is the inverse of PublicURL for URLs produced by this store.
func KeyFromURL(baseURL, url string) (string, bool) {
	prefix := strings.TrimRight(baseURL, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

func joinURL(baseURL, key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(baseURL, "/"), strings.TrimLeft(key, "/"))
}
