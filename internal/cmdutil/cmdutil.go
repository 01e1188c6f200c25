// Package cmdutil provides helpers shared by the dealvault commands.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/earnout-labs/dealvault/pkg/app"
	"github.com/earnout-labs/dealvault/pkg/config"
	"github.com/earnout-labs/dealvault/pkg/documents"
	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/seal"
)

// LoadApp loads the config and builds the application from it. The caller
// must Close the result.
func LoadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load[config.Config]()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return a, nil
}

// ParseSize parses a data size string with optional suffix (B, K, M, G).
// Accepts formats like: "1024", "512B", "100K", "50M", "2G". Digits with no
// suffix are interpreted as bytes. Returns the size in bytes.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("data size cannot be empty")
	}

	multiplier := uint64(1)
	numStr := s[:len(s)-1]
	switch strings.ToUpper(s[len(s)-1:]) {
	case "B":
	case "K":
		multiplier = 1 << 10
	case "M":
		multiplier = 1 << 20
	case "G":
		multiplier = 1 << 30
	default:
		numStr = s
	}

	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid data size %q: %w", s, err)
	}
	return num * multiplier, nil
}

func NewHandledCliError(err error) HandledCliError {
	return HandledCliError{err}
}

// HandledCliError is an error which has already been presented to the user. If
// a HandledCliError is returned from a command, the process should exit with
// a non-zero exit code, but no further error message should be printed.
type HandledCliError struct {
	error
}

func (e HandledCliError) Unwrap() error {
	return e.error
}

// TranslateError rewrites errors with a known cause into a message that tells
// the user what to fix.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var handled HandledCliError
	if errors.As(err, &handled) {
		return err
	}

	switch {
	case errors.Is(err, documents.ErrAccessDenied), errors.Is(err, seal.ErrAccessDenied):
		return fmt.Errorf("access denied: %w", err)
	case failure.IsKind(err, failure.KindConfiguration):
		return fmt.Errorf("%w\nrun `dealvault config` to inspect the resolved configuration", err)
	case failure.IsKind(err, failure.KindNetwork):
		return fmt.Errorf("%w\ncheck the network endpoints and that the services are reachable", err)
	}
	return err
}
