// Package identity answers two questions about a phone number: is it a
// registered line, and does it belong to a manager. Managers come from a
// local allow-list file; registration is decided by the carrier API.
package identity

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/pondmobile/supportbot/core/logger"
	"github.com/pondmobile/supportbot/internal/atom"
	"github.com/pondmobile/supportbot/internal/phone"
)

// ErrNotRegistered means the number is not a known line of the carrier.
var ErrNotRegistered = errors.New("identity: number is not a registered line")

// LineResolver is the subset of the carrier client identity needs.
type LineResolver interface {
	LookupLine(ctx context.Context, mdn string) (int64, error)
}

// Service resolves registration and manager status for phone numbers.
type Service struct {
	resolver LineResolver

	mu       sync.RWMutex
	managers map[string]struct{}
}

// NewService builds a Service over the given carrier resolver. The manager
// set starts empty; call LoadManagers to populate it.
func NewService(resolver LineResolver) *Service {
	return &Service{
		resolver: resolver,
		managers: make(map[string]struct{}),
	}
}

// LoadManagers reads the allow-list file, one phone number per line.
// Blank lines and lines starting with '#' are skipped; numbers are stored
// normalized. The previous set is replaced atomically.
func (s *Service) LoadManagers(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("identity: open managers file: %w", err)
	}
	defer f.Close()

	set := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		mdn := phone.Normalize(line)
		if mdn == "" {
			continue
		}
		set[mdn] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("identity: read managers file: %w", err)
	}

	s.mu.Lock()
	s.managers = set
	s.mu.Unlock()

	if logger.Auth != nil {
		logger.Auth.LogAttrs(context.Background(), slog.LevelInfo, "managers.loaded",
			slog.String("event", "managers.loaded"),
			slog.Int("count", len(set)))
	}
	return nil
}

// InAllowList reports whether the number appears in the manager file,
// without consulting the carrier.
func (s *Service) InAllowList(mdn string) bool {
	clean := phone.Normalize(mdn)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.managers[clean]
	return ok
}

// ResolveLine maps a number to its carrier line ID. ErrNotRegistered
// covers the "unknown number" case; other errors are transport or API
// failures and should be treated as temporary.
func (s *Service) ResolveLine(ctx context.Context, mdn string) (int64, error) {
	id, err := s.resolver.LookupLine(ctx, mdn)
	if errors.Is(err, atom.ErrLineNotFound) {
		return 0, ErrNotRegistered
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// IsManager reports whether the number is an allow-listed manager with an
// active registered line. Lookup failures demote to false so a carrier
// outage can never widen access.
func (s *Service) IsManager(ctx context.Context, mdn string) bool {
	if !s.InAllowList(mdn) {
		return false
	}
	if _, err := s.ResolveLine(ctx, mdn); err != nil {
		if !errors.Is(err, ErrNotRegistered) && logger.Auth != nil {
			logger.Auth.LogAttrs(ctx, slog.LevelWarn, "manager.check_failed",
				slog.String("event", "manager.check_failed"),
				slog.String("mdn", phone.Mask(mdn)),
				slog.String("err", err.Error()))
		}
		return false
	}
	return true
}
