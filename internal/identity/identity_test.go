package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pondmobile/supportbot/internal/atom"
)

type stubResolver struct {
	lines map[string]int64
	err   error
}

func (s *stubResolver) LookupLine(_ context.Context, mdn string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	id, ok := s.lines[mdn]
	if !ok {
		return 0, atom.ErrLineNotFound
	}
	return id, nil
}

func writeManagersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "managers.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManagersNormalizes(t *testing.T) {
	svc := NewService(&stubResolver{})
	path := writeManagersFile(t, "# team leads\n+1 (212) 555-0199\n\n9175550123\n")
	if err := svc.LoadManagers(path); err != nil {
		t.Fatal(err)
	}

	if !svc.InAllowList("12125550199") {
		t.Fatal("formatted entry should match its normalized form")
	}
	if !svc.InAllowList("917-555-0123") {
		t.Fatal("plain entry should match formatted input")
	}
	if svc.InAllowList("2125550000") {
		t.Fatal("unlisted number must not match")
	}
}

func TestResolveLine(t *testing.T) {
	svc := NewService(&stubResolver{lines: map[string]int64{"2125550199": 42}})

	id, err := svc.ResolveLine(context.Background(), "2125550199")
	if err != nil || id != 42 {
		t.Fatalf("ResolveLine = %d, %v", id, err)
	}

	_, err = svc.ResolveLine(context.Background(), "2125550000")
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("err = %v, want ErrNotRegistered", err)
	}
}

func TestIsManager(t *testing.T) {
	resolver := &stubResolver{lines: map[string]int64{"2125550199": 42}}
	svc := NewService(resolver)
	path := writeManagersFile(t, "2125550199\n9175550123\n")
	if err := svc.LoadManagers(path); err != nil {
		t.Fatal(err)
	}

	if !svc.IsManager(context.Background(), "2125550199") {
		t.Fatal("allow-listed registered number should be a manager")
	}
	if svc.IsManager(context.Background(), "9175550123") {
		t.Fatal("allow-listed but unregistered number is not a manager")
	}
	if svc.IsManager(context.Background(), "3475550111") {
		t.Fatal("unlisted number is not a manager")
	}

	resolver.err = errors.New("dial tcp: timeout")
	if svc.IsManager(context.Background(), "2125550199") {
		t.Fatal("lookup failure must demote to non-manager")
	}
}

func TestLoadManagersMissingFile(t *testing.T) {
	svc := NewService(&stubResolver{})
	if err := svc.LoadManagers(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
