//go:build !cgo

package sqlbackend

import (
	"context"
	"errors"
)

var errNoCGO = errors.New("sqlbackend: embedded dolt requires CGO; build with CGO_ENABLED=1 or use server mode")

func openEmbedded(ctx context.Context, cfg *Config) (*Backend, error) {
	return nil, errNoCGO
}
