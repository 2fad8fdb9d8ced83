package docindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// ManifestVersion is the current schema version
	ManifestVersion = 1

	// ManifestFilename is the default manifest filename
	ManifestFilename = "manifest.json"
)

// ManifestState is the persisted content of a manifest.
type ManifestState struct {
	Version       int       `json:"version"`
	SourceDir     string    `json:"source_dir"`
	LastLoad      time.Time `json:"last_load"`
	Shards        int       `json:"shards"`
	Entries       int       `json:"entries"`
	Fingerprint   string    `json:"fingerprint"`
	LastIndexed   string    `json:"last_indexed"` // fingerprint the full-text index was built from
	LastIndexedAt time.Time `json:"last_indexed_at"`
	Error         string    `json:"error,omitempty"`
}

// Manifest records what was loaded and indexed, so restarts can skip
// rebuilding the full-text index when the shards have not changed.
type Manifest struct {
	state ManifestState
	mu    sync.RWMutex
}

// NewManifest creates a new empty manifest.
func NewManifest() *Manifest {
	return &Manifest{state: ManifestState{Version: ManifestVersion}}
}

// LoadManifest reads a manifest from disk, or creates a new one if it doesn't exist.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var state ManifestState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if state.Version != ManifestVersion {
		// Unknown layout: start over, the index will be rebuilt
		return NewManifest(), nil
	}
	return &Manifest{state: state}, nil
}

// Save writes the manifest to disk atomically.
// Uses write-to-temp + rename so readers never see a partial file.
func (m *Manifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.state, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	// Instances sharing a base dir each write their own temp file
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create manifest temp file: %w", err)
	}
	tempPath := tmp.Name()
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to set manifest permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write manifest temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write manifest temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename manifest file: %w", err)
	}
	return nil
}

// RecordLoad stores the outcome of a successful load.
func (m *Manifest) RecordLoad(dir, fingerprint string, stats Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SourceDir = dir
	m.state.Fingerprint = fingerprint
	m.state.Shards = stats.Shards
	m.state.Entries = stats.Entries
	m.state.LastLoad = time.Now()
	m.state.Error = ""
}

// RecordIndexed marks the full-text index as built from fingerprint.
func (m *Manifest) RecordIndexed(fingerprint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LastIndexed = fingerprint
	m.state.LastIndexedAt = time.Now()
	m.state.Error = ""
}

// SetError records the last load or build failure.
func (m *Manifest) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Error = err
}

// NeedsIndex reports whether the full-text index is stale for fingerprint.
func (m *Manifest) NeedsIndex(fingerprint string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fingerprint == "" || m.state.LastIndexed != fingerprint
}

// State returns a copy of the manifest content.
func (m *Manifest) State() ManifestState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Fingerprint hashes shard names and contents in load order.
func Fingerprint(sources []ShardSource) (string, error) {
	h := sha256.New()
	for _, src := range sources {
		if err := hashFile(h, src); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, src ShardSource) error {
	f, err := os.Open(src.Path)
	if err != nil {
		return fmt.Errorf("failed to open shard: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, _ = io.WriteString(w, src.Name)
	_, _ = w.Write([]byte{0})
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to hash shard %s: %w", src.Name, err)
	}
	_, _ = w.Write([]byte{0})
	return nil
}
