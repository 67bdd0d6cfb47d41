// Package production provides production integrations: persistence, event publishing, visualization.
// Implements core interfaces using stdlib and the ecosystem libraries the
// rest of this module already depends on.
package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	statechartx "github.com/comalice/scxmlrt"
)

// Persister saves and loads a session's Snapshot, the serialization spec.md
// §6.6 scopes in (explicitly out of scope: restart-durable persistence as
// an engine concern — this is an embedder-side convenience built on top).
type Persister interface {
	Save(ctx context.Context, snapshot statechartx.Snapshot) error
	Load(ctx context.Context, sessionID string) (statechartx.Snapshot, error)
}

// JSONPersister is a file-based Persister using JSON serialization.
type JSONPersister struct {
	dir string
}

// NewJSONPersister creates a JSONPersister, ensuring the directory exists.
func NewJSONPersister(dir string) (*JSONPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &JSONPersister{dir: dir}, nil
}

func (p *JSONPersister) Save(ctx context.Context, snapshot statechartx.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	fn := filepath.Join(p.dir, snapshot.SessionID+".json")
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}

	return nil
}

func (p *JSONPersister) Load(ctx context.Context, sessionID string) (statechartx.Snapshot, error) {
	fn := filepath.Join(p.dir, sessionID+".json")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return statechartx.Snapshot{}, fmt.Errorf("session %q: %w", sessionID, os.ErrNotExist)
		}
		return statechartx.Snapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}

	var snapshot statechartx.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return statechartx.Snapshot{}, fmt.Errorf("json unmarshal: %w", err)
	}
	snapshot.SessionID = sessionID // ensure id matches the lookup key

	return snapshot, nil
}

// YAMLPersister is a file-based Persister using YAML serialization.
type YAMLPersister struct {
	dir string
}

// NewYAMLPersister creates a YAMLPersister, ensuring the directory exists.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &YAMLPersister{dir: dir}, nil
}

func (p *YAMLPersister) Save(ctx context.Context, snapshot statechartx.Snapshot) error {
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	fn := filepath.Join(p.dir, snapshot.SessionID+".yaml")
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}

	return nil
}

func (p *YAMLPersister) Load(ctx context.Context, sessionID string) (statechartx.Snapshot, error) {
	fn := filepath.Join(p.dir, sessionID+".yaml")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return statechartx.Snapshot{}, fmt.Errorf("session %q: %w", sessionID, os.ErrNotExist)
		}
		return statechartx.Snapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}

	var snapshot statechartx.Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return statechartx.Snapshot{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	snapshot.SessionID = sessionID

	return snapshot, nil
}
