package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pondmobile/supportbot/core/logger"
	"github.com/pondmobile/supportbot/internal/atom"
	"github.com/pondmobile/supportbot/internal/identity"
	"github.com/pondmobile/supportbot/internal/phone"
	"github.com/pondmobile/supportbot/internal/texts"
)

// LineDirectory resolves phone numbers to carrier line IDs.
type LineDirectory interface {
	ResolveLine(ctx context.Context, mdn string) (int64, error)
}

// Provisioner is the carrier surface the executor operates on.
type Provisioner interface {
	QueryUsage(ctx context.Context, lineID int64) (atom.Usage, error)
	NetworkReset(ctx context.Context, lineID int64) error
}

// Executor runs resolved protected actions and turns the outcome into a
// user-facing message. It never panics on an unknown kind; that is a
// programming error and reported as such.
type Executor struct {
	directory LineDirectory
	carrier   Provisioner
	catalog   *texts.Catalog
}

// NewExecutor wires an executor from its collaborators.
func NewExecutor(directory LineDirectory, carrier Provisioner, catalog *texts.Catalog) *Executor {
	return &Executor{directory: directory, carrier: carrier, catalog: catalog}
}

// Execute performs the action against its target line and returns the
// message to show the requester.
func (e *Executor) Execute(ctx context.Context, act Action) string {
	start := time.Now()

	lineID, err := e.directory.ResolveLine(ctx, act.Target)
	if err != nil {
		e.logResult(ctx, act, 0, start, err)
		if errors.Is(err, identity.ErrNotRegistered) {
			return e.catalog.Get("not_registered")
		}
		return e.catalog.Get("bequick_error")
	}

	var msg string
	switch act.Kind {
	case SelfUsage, OtherUsage, ManagerMenuUsage:
		msg, err = e.usage(ctx, lineID)
	case SelfRefresh, OtherRefresh, ManagerMenuRefresh:
		msg, err = e.refresh(ctx, lineID)
	default:
		err = fmt.Errorf("action: unknown kind %d", int(act.Kind))
		msg = e.catalog.Get("bequick_error")
	}

	e.logResult(ctx, act, lineID, start, err)
	return msg
}

func (e *Executor) usage(ctx context.Context, lineID int64) (string, error) {
	u, err := e.carrier.QueryUsage(ctx, lineID)
	if err != nil {
		if code, ok := atom.StatusCode(err); ok {
			return e.catalog.Render("usage_status", map[string]string{
				"status": strconv.Itoa(code),
			}), err
		}
		return e.catalog.Get("usage_error"), err
	}
	return e.catalog.Render("usage", map[string]string{
		"used":      kibToHuman(u.UsedKiB),
		"total":     kibToHuman(u.TotalKiB),
		"remaining": kibToHuman(u.RemainingKiB),
	}), nil
}

func (e *Executor) refresh(ctx context.Context, lineID int64) (string, error) {
	err := e.carrier.NetworkReset(ctx, lineID)
	if err == nil {
		return e.catalog.Get("refresh_success"), nil
	}
	if code, ok := atom.StatusCode(err); ok {
		return e.catalog.Render("refresh_failed", map[string]string{
			"status": strconv.Itoa(code),
		}), err
	}
	return e.catalog.Get("bequick_error"), err
}

// kibToHuman renders a kibibyte count the way subscribers expect: megabytes
// with two decimals below a gigabyte, gigabytes with three above.
func kibToHuman(kib float64) string {
	mib := kib / 1024
	if mib >= 1024 {
		return fmt.Sprintf("%.3f GB", mib/1024)
	}
	return fmt.Sprintf("%.2f MB", mib)
}

func (e *Executor) logResult(ctx context.Context, act Action, lineID int64, start time.Time, err error) {
	if logger.Dispatch == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", "action.executed"),
		slog.String("action", act.Kind.String()),
		slog.String("target_mdn", phone.Mask(act.Target)),
		slog.Duration("duration", logger.Took(start)),
	}
	if lineID != 0 {
		attrs = append(attrs, slog.Int64("line_id", lineID))
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	logger.Dispatch.LogAttrs(ctx, level, "action.executed", attrs...)
}
