package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/notadamking/elemental/internal/metrics"
	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
)

// ExportOptions controls export's behavior.
type ExportOptions struct {
	// ExcludeEphemeral drops Workflow elements (and only Workflow elements;
	// it is the sole variant carrying an `ephemeral` flag) with Ephemeral
	// set.
	ExcludeEphemeral bool
	// SuppressDependencies, when true, omits dependency records entirely.
	SuppressDependencies bool
	// Metrics, if set, receives the exported record count. Nil (the zero
	// value) disables instrumentation.
	Metrics *metrics.Recorder
}

// Export serializes every live element (and, unless suppressed, every
// dependency between two exported elements) as line-delimited JSON:
// elements first, then dependencies, per §4.6.
func Export(ctx context.Context, backend storage.Backend, opts ExportOptions) (string, error) {
	var buf bytes.Buffer

	rows, _, err := backend.ListElements(ctx, storage.ElementQuery{})
	if err != nil {
		return "", fmt.Errorf("sync: export: listing elements: %w", err)
	}

	exported := map[string]bool{}
	for _, row := range rows {
		elem, err := storage.Decode(row)
		if err != nil {
			return "", fmt.Errorf("sync: export: decoding %s: %w", row.ID, err)
		}
		if opts.ExcludeEphemeral {
			if wf, ok := elem.(*types.Workflow); ok && wf.Ephemeral {
				continue
			}
		}
		raw, err := json.Marshal(elem)
		if err != nil {
			return "", fmt.Errorf("sync: export: encoding %s: %w", row.ID, err)
		}
		buf.Write(raw)
		buf.WriteByte('\n')
		exported[row.ID] = true
	}

	recordCount := len(exported)
	if !opts.SuppressDependencies {
		seen := map[string]bool{}
		for id := range exported {
			edges, err := backend.OutgoingDependencies(ctx, id, nil)
			if err != nil {
				return "", fmt.Errorf("sync: export: listing dependencies of %s: %w", id, err)
			}
			for _, dep := range edges {
				if !exported[dep.TargetID] {
					continue
				}
				key := dep.SourceID + "\x00" + dep.TargetID + "\x00" + string(dep.Type)
				if seen[key] {
					continue
				}
				seen[key] = true
				raw, err := json.Marshal(dep)
				if err != nil {
					return "", fmt.Errorf("sync: export: encoding dependency %s: %w", key, err)
				}
				buf.Write(raw)
				buf.WriteByte('\n')
				recordCount++
			}
		}
	}
	opts.Metrics.RecordSync(ctx, "export", recordCount)

	return buf.String(), nil
}

// ExportToFile writes Export's output to path and returns nothing on
// success, per §4.6 ("if a filesystem path is given, writes there and
// returns nothing"). The write is atomic: a sibling temp file is written
// and fsynced, then renamed into place, so a reader never observes a
// partially-written export.
func ExportToFile(ctx context.Context, backend storage.Backend, path string, opts ExportOptions) error {
	text, err := Export(ctx, backend, opts)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("sync: export: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.WriteString(text); err != nil {
		return fmt.Errorf("sync: export: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync: export: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sync: export: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("sync: export: replacing %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("sync: export: setting permissions on %s: %w", path, err)
	}
	return nil
}
