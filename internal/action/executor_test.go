package action

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pondmobile/supportbot/internal/atom"
	"github.com/pondmobile/supportbot/internal/identity"
	"github.com/pondmobile/supportbot/internal/texts"
)

type fakeDirectory struct {
	lines map[string]int64
	err   error
}

func (f *fakeDirectory) ResolveLine(_ context.Context, mdn string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	id, ok := f.lines[mdn]
	if !ok {
		return 0, identity.ErrNotRegistered
	}
	return id, nil
}

type fakeCarrier struct {
	usage      atom.Usage
	usageErr   error
	resetErr   error
	resetCalls int
}

func (f *fakeCarrier) QueryUsage(context.Context, int64) (atom.Usage, error) {
	return f.usage, f.usageErr
}

func (f *fakeCarrier) NetworkReset(context.Context, int64) error {
	f.resetCalls++
	return f.resetErr
}

func newExecutor(dir *fakeDirectory, carrier *fakeCarrier) *Executor {
	return NewExecutor(dir, carrier, texts.NewCatalog(""))
}

func TestExecuteUsage(t *testing.T) {
	dir := &fakeDirectory{lines: map[string]int64{"2125550199": 42}}
	carrier := &fakeCarrier{usage: atom.Usage{
		UsedKiB:      2097152, // 2 GiB
		TotalKiB:     10485760,
		RemainingKiB: 524288, // 512 MiB
	}}

	msg := newExecutor(dir, carrier).Execute(context.Background(), Action{Kind: SelfUsage, Target: "2125550199"})
	if !strings.Contains(msg, "2.000 GB") {
		t.Fatalf("used not rendered in GB: %q", msg)
	}
	if !strings.Contains(msg, "512.00 MB") {
		t.Fatalf("remaining not rendered in MB: %q", msg)
	}
	if !strings.Contains(msg, "10.000 GB") {
		t.Fatalf("total missing: %q", msg)
	}
}

func TestExecuteUsageStatusError(t *testing.T) {
	dir := &fakeDirectory{lines: map[string]int64{"2125550199": 42}}
	carrier := &fakeCarrier{usageErr: &atom.StatusError{Code: 503, Op: "query_usage"}}

	msg := newExecutor(dir, carrier).Execute(context.Background(), Action{Kind: OtherUsage, Target: "2125550199"})
	if !strings.Contains(msg, "503") {
		t.Fatalf("status code missing from %q", msg)
	}
}

func TestExecuteUsageTransportError(t *testing.T) {
	dir := &fakeDirectory{lines: map[string]int64{"2125550199": 42}}
	carrier := &fakeCarrier{usageErr: errors.New("dial tcp: timeout")}

	msg := newExecutor(dir, carrier).Execute(context.Background(), Action{Kind: SelfUsage, Target: "2125550199"})
	if !strings.Contains(msg, "billing") {
		t.Fatalf("expected billing outage copy, got %q", msg)
	}
}

func TestExecuteRefresh(t *testing.T) {
	dir := &fakeDirectory{lines: map[string]int64{"2125550199": 42}}
	carrier := &fakeCarrier{}

	msg := newExecutor(dir, carrier).Execute(context.Background(), Action{Kind: SelfRefresh, Target: "2125550199"})
	if !strings.Contains(msg, "refreshed") {
		t.Fatalf("expected success copy, got %q", msg)
	}
	if carrier.resetCalls != 1 {
		t.Fatalf("reset called %d times", carrier.resetCalls)
	}
}

func TestExecuteRefreshFailedStatus(t *testing.T) {
	dir := &fakeDirectory{lines: map[string]int64{"2125550199": 42}}
	carrier := &fakeCarrier{resetErr: &atom.StatusError{Code: 409, Op: "network_reset"}}

	msg := newExecutor(dir, carrier).Execute(context.Background(), Action{Kind: ManagerMenuRefresh, Target: "2125550199"})
	if !strings.Contains(msg, "409") {
		t.Fatalf("status code missing from %q", msg)
	}
}

func TestExecuteUnregisteredTarget(t *testing.T) {
	dir := &fakeDirectory{lines: map[string]int64{}}
	carrier := &fakeCarrier{}

	msg := newExecutor(dir, carrier).Execute(context.Background(), Action{Kind: OtherRefresh, Target: "9175550123"})
	if !strings.Contains(msg, "not registered") {
		t.Fatalf("expected not-registered copy, got %q", msg)
	}
	if carrier.resetCalls != 0 {
		t.Fatal("reset must not run for an unregistered target")
	}
}

func TestExecuteLookupOutage(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("connection refused")}
	msg := newExecutor(dir, &fakeCarrier{}).Execute(context.Background(), Action{Kind: SelfUsage, Target: "2125550199"})
	if !strings.Contains(msg, "provisioning") {
		t.Fatalf("expected outage copy, got %q", msg)
	}
}

func TestKibToHumanBoundary(t *testing.T) {
	for _, tc := range []struct {
		kib  float64
		want string
	}{
		{0, "0.00 MB"},
		{1024, "1.00 MB"},
		{1048575, "1024.00 MB"}, // 1023.999 MiB stays below the GB cutover
		{1048576, "1.000 GB"},
		{1572864, "1.500 GB"},
	} {
		if got := kibToHuman(tc.kib); got != tc.want {
			t.Errorf("kibToHuman(%v) = %q, want %q", tc.kib, got, tc.want)
		}
	}
}
