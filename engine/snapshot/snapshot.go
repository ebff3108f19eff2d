// Package snapshot persists whole models between a scrape and a graph
// rebuild. A snapshot is addressed by agent type and label ("current", or a
// dated archive label) and stored as zstd-compressed JSON.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
)

// CurrentLabel addresses the snapshot a plain reload uses.
const CurrentLabel = "current"

// ErrNotFound is returned by Load when no snapshot exists.
var ErrNotFound = errors.New("snapshot not found")

// ErrInvalidKey is returned for an unusable agent type or label.
var ErrInvalidKey = errors.New("invalid snapshot key")

// Store saves and loads model snapshots.
type Store interface {
	Save(ctx context.Context, m *domain.Model, label string) error
	Load(ctx context.Context, agentType, label string) (*domain.Model, error)
}

// Info describes a stored snapshot.
type Info struct {
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// Lister is implemented by stores that can enumerate their snapshots.
type Lister interface {
	List(ctx context.Context, agentType string) ([]Info, error)
}

// ArchiveLabel is the dated label a rebuild archives its model under.
func ArchiveLabel(t time.Time) string {
	return "archive/" + t.UTC().Format("2006-01-02T150405")
}

var (
	agentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	labelPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+(/[A-Za-z0-9_.-]+)*$`)
)

// validateKey rejects keys that could escape a storage root.
func validateKey(agentType, label string) error {
	if !agentPattern.MatchString(agentType) {
		return fmt.Errorf("%w: agent type %q", ErrInvalidKey, agentType)
	}
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("%w: label %q", ErrInvalidKey, label)
	}
	for _, seg := range strings.Split(label, "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("%w: label %q", ErrInvalidKey, label)
		}
	}
	return nil
}

// Open returns the store for backend: "fs" keeps files under path, "sqlite"
// keeps rows in the database file at path. Close releases it.
func Open(ctx context.Context, backend, path string) (Store, io.Closer, error) {
	switch backend {
	case "", "fs":
		return NewFSStore(path), io.NopCloser(nil), nil
	case "sqlite":
		s, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown snapshot backend %q", backend)
}
