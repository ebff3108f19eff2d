package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
)

// FSStore keeps snapshots as files under a root directory:
// <root>/<label>/<agent_type>.data.
type FSStore struct {
	root string
}

// NewFSStore creates a store rooted at dir. The directory is created on
// first save.
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir}
}

func (s *FSStore) path(agentType, label string) string {
	return filepath.Join(s.root, filepath.FromSlash(label), agentType+".data")
}

// Save writes m under label. The file is replaced atomically.
func (s *FSStore) Save(_ context.Context, m *domain.Model, label string) error {
	if err := validateKey(m.AgentType, label); err != nil {
		return err
	}
	data, err := Encode(m)
	if err != nil {
		return err
	}
	target := s.path(m.AgentType, label)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot of agentType saved under label.
func (s *FSStore) Load(_ context.Context, agentType, label string) (*domain.Model, error) {
	if err := validateKey(agentType, label); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(agentType, label))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, label, agentType)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return Decode(data)
}

// List returns the snapshots of agentType, newest first. CreatedAt is the
// file's modification time.
func (s *FSStore) List(ctx context.Context, agentType string) ([]Info, error) {
	if !agentPattern.MatchString(agentType) {
		return nil, fmt.Errorf("%w: agent type %q", ErrInvalidKey, agentType)
	}
	name := agentType + ".data"
	var out []Info
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || d.Name() != name {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, filepath.Dir(path))
		if err != nil || rel == "." {
			return nil
		}
		out = append(out, Info{Label: filepath.ToSlash(rel), CreatedAt: fi.ModTime().UTC(), Size: fi.Size()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}
