package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/notadamking/elemental/internal/metrics"
	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
)

// Strategy selects how Import reconciles an incoming element against an
// existing local one.
type Strategy string

const (
	// StrategyLWW (default): insert if absent, overwrite only if the
	// incoming updatedAt is strictly newer, else skip and record a
	// conflict.
	StrategyLWW Strategy = "lww"
	// StrategyOverwrite unconditionally replaces the local element.
	StrategyOverwrite Strategy = "overwrite"
)

// ImportOptions controls import's behavior.
type ImportOptions struct {
	Strategy Strategy
	DryRun   bool
	// SourceFile names the input for ImportError.File; purely cosmetic.
	SourceFile string
	// Metrics, if set, receives the imported record count. Nil (the zero
	// value) disables instrumentation.
	Metrics *metrics.Recorder
}

// Conflict records an LWW decision about an element that already existed
// locally: "replaced" when the incoming copy won, "kept-local" when not.
type Conflict struct {
	ID         string
	Resolution string // "kept-local" | "replaced"
	LocalHash  string
	RemoteHash string
}

// ImportError records one malformed or rejected line.
type ImportError struct {
	Line             int
	File             string
	Message          string
	TruncatedContent string
}

// Result is import's return shape. EventsImported is always 0: the
// interchange format carries no event log (§4.6).
type Result struct {
	Success              bool
	ElementsImported     int
	DependenciesImported int
	EventsImported       int
	Conflicts            []Conflict
	Errors               []ImportError
	DryRun               bool
}

// Import reads line-delimited JSON from r and reconciles each record
// against backend per opts. Blank lines are ignored. Import succeeds
// overall iff zero errors occurred (a non-empty Conflicts set is not a
// failure).
func Import(ctx context.Context, backend storage.Backend, r io.Reader, opts ImportOptions) (*Result, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyLWW
	}

	result := &Result{DryRun: opts.DryRun}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			result.Errors = append(result.Errors, ImportError{Line: lineNo, File: opts.SourceFile, Message: err.Error(), TruncatedContent: truncate(line)})
			continue
		}

		switch classify(raw) {
		case classElement:
			if err := importElement(ctx, backend, line, opts, result); err != nil {
				result.Errors = append(result.Errors, ImportError{Line: lineNo, File: opts.SourceFile, Message: err.Error(), TruncatedContent: truncate(line)})
			}
		case classDependency:
			if err := importDependency(ctx, backend, line, opts, result); err != nil {
				result.Errors = append(result.Errors, ImportError{Line: lineNo, File: opts.SourceFile, Message: err.Error(), TruncatedContent: truncate(line)})
			}
		default:
			result.Errors = append(result.Errors, ImportError{Line: lineNo, File: opts.SourceFile, Message: "record has neither id nor sourceId/targetId", TruncatedContent: truncate(line)})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sync: import: scanning input: %w", err)
	}

	result.Success = len(result.Errors) == 0
	opts.Metrics.RecordSync(ctx, "import", result.ElementsImported+result.DependenciesImported)
	return result, nil
}

func importElement(ctx context.Context, backend storage.Backend, line string, opts ImportOptions, result *Result) error {
	elem, err := decodeElement([]byte(line))
	if err != nil {
		return err
	}
	id := elem.ElementBase().ID

	existing, err := backend.GetElement(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case existing == nil:
		if !opts.DryRun {
			row, err := storage.Encode(elem)
			if err != nil {
				return err
			}
			if err := backend.PutElement(ctx, row); err != nil {
				return err
			}
			_ = backend.MarkDirty(ctx, id)
		}
		result.ElementsImported++

	case opts.Strategy == StrategyOverwrite:
		if !opts.DryRun {
			row, err := storage.Encode(elem)
			if err != nil {
				return err
			}
			if err := backend.PutElement(ctx, row); err != nil {
				return err
			}
			_ = backend.MarkDirty(ctx, id)
		}
		result.ElementsImported++

	case elem.ElementBase().UpdatedAt.After(existing.UpdatedAt):
		if !opts.DryRun {
			row, err := storage.Encode(elem)
			if err != nil {
				return err
			}
			if err := backend.PutElement(ctx, row); err != nil {
				return err
			}
			_ = backend.MarkDirty(ctx, id)
		}
		result.ElementsImported++
		result.Conflicts = append(result.Conflicts, Conflict{
			ID: id, Resolution: "replaced", LocalHash: existing.ContentHash, RemoteHash: elem.ElementBase().ContentHash,
		})

	default:
		result.Conflicts = append(result.Conflicts, Conflict{
			ID: id, Resolution: "kept-local", LocalHash: existing.ContentHash, RemoteHash: elem.ElementBase().ContentHash,
		})
	}
	return nil
}

func importDependency(ctx context.Context, backend storage.Backend, line string, opts ImportOptions, result *Result) error {
	var dep types.Dependency
	if err := json.Unmarshal([]byte(line), &dep); err != nil {
		return err
	}
	if dep.SourceID == "" || dep.TargetID == "" || dep.Type == "" {
		return fmt.Errorf("sync: dependency record missing sourceId/targetId/type")
	}

	if !opts.DryRun {
		existing, err := backend.GetDependency(ctx, dep.SourceID, dep.TargetID, dep.Type)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := backend.DeleteDependency(ctx, dep.SourceID, dep.TargetID, dep.Type); err != nil {
				return err
			}
		}
		if err := backend.PutDependency(ctx, dep); err != nil {
			return err
		}
	}
	result.DependenciesImported++
	return nil
}
