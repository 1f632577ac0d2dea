package vocab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	lexerrors "github.com/standardbeagle/lexmark/internal/errors"
)

// Provider returns the latest vocabulary snapshot. Implementations may block
// (storage round trip); callers treat the returned snapshot as read-only.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context) (Snapshot, error)

// Snapshot implements Provider
func (f ProviderFunc) Snapshot(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// StaticProvider serves an in-memory snapshot that can be replaced
type StaticProvider struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStaticProvider creates a provider over snap
func NewStaticProvider(snap Snapshot) *StaticProvider {
	return &StaticProvider{snap: snap}
}

// Set replaces the served snapshot
func (p *StaticProvider) Set(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = snap
}

// Snapshot implements Provider
func (p *StaticProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap, nil
}

// FileProvider reads a vocabulary file on every Snapshot call.
// The format is chosen by extension: .toml, or .json.
type FileProvider struct {
	Path string
}

// NewFileProvider creates a provider for path
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

// Snapshot implements Provider
func (p *FileProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary %s: %w", p.Path, err)
	}
	return ParseSnapshot(filepath.Ext(p.Path), content)
}

// ParseSnapshot decodes vocabulary content by file extension.
// Top-level values that are not tables are rejected as DataErrors, but the
// rest of the snapshot is still returned.
func ParseSnapshot(ext string, content []byte) (Snapshot, error) {
	var raw map[string]any
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse TOML vocabulary: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON vocabulary: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported vocabulary format %q", ext)
	}

	snap := make(Snapshot, len(raw))
	var errs []error
	for key, value := range raw {
		body, ok := value.(map[string]any)
		if !ok {
			errs = append(errs, lexerrors.NewDataError(key, "", fmt.Errorf("expected table, got %T", value)))
			continue
		}
		snap[key] = body
	}
	return snap, lexerrors.NewMultiError(errs)
}

// Load fetches and coerces a snapshot in one step. Data errors are returned
// alongside the usable entries; only a failed fetch returns no entries.
func Load(ctx context.Context, p Provider) ([]Entry, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil && !lexerrors.IsDataError(err) {
		return nil, err
	}
	entries, coerceErr := FromSnapshot(snap)
	return entries, errors.Join(err, coerceErr)
}
