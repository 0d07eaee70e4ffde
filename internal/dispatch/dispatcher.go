package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/pondmobile/supportbot/core/logger"
	"github.com/pondmobile/supportbot/internal/action"
	"github.com/pondmobile/supportbot/internal/grant"
	"github.com/pondmobile/supportbot/internal/identity"
	"github.com/pondmobile/supportbot/internal/otp"
	"github.com/pondmobile/supportbot/internal/phone"
	"github.com/pondmobile/supportbot/internal/session"
	"github.com/pondmobile/supportbot/internal/texts"
)

// Identity answers registration and manager questions for phone numbers.
type Identity interface {
	ResolveLine(ctx context.Context, mdn string) (int64, error)
	IsManager(ctx context.Context, mdn string) bool
}

// Executor runs a resolved protected action and returns the user-facing result.
type Executor interface {
	Execute(ctx context.Context, act action.Action) string
}

// CodeDeliverer pushes a passcode over a channel outside the chat itself.
type CodeDeliverer interface {
	SendSMS(ctx context.Context, mdn, text string) error
}

// Recorder counts analytics events. Implementations must never block the
// chat flow on failure.
type Recorder interface {
	Bump(ctx context.Context, counter string)
}

// Dispatcher owns the conversation state machine. Events for the same chat
// are serialized through a per-chat lock; distinct chats run in parallel.
type Dispatcher struct {
	sessions *session.Store
	codes    *otp.Engine
	grants   *grant.Cache
	identity Identity
	executor Executor
	deliver  CodeDeliverer
	catalog  *texts.Catalog
	stats    Recorder // optional

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New wires a dispatcher. stats may be nil.
func New(
	sessions *session.Store,
	codes *otp.Engine,
	grants *grant.Cache,
	idn Identity,
	executor Executor,
	deliver CodeDeliverer,
	catalog *texts.Catalog,
	stats Recorder,
) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		codes:    codes,
		grants:   grants,
		identity: idn,
		executor: executor,
		deliver:  deliver,
		catalog:  catalog,
		stats:    stats,
		locks:    make(map[int64]*sync.Mutex),
	}
}

// Handle processes one inbound event for a chat and returns the replies to
// send, in order.
func (d *Dispatcher) Handle(ctx context.Context, chatID int64, ev Event) []Reply {
	lock := d.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	switch e := ev.(type) {
	case Start:
		return d.handleStart(ctx, chatID)
	case MenuSelect:
		return d.handleMenu(ctx, chatID, e.Tag)
	case ContactShared:
		return d.handleContact(ctx, chatID, e)
	case FreeText:
		return d.handleText(ctx, chatID, e.Text)
	default:
		return nil
	}
}

func (d *Dispatcher) chatLock(chatID int64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[chatID] = lock
	}
	return lock
}

func (d *Dispatcher) handleStart(ctx context.Context, chatID int64) []Reply {
	d.sessions.ResetFlow(chatID)
	d.bump(ctx, "visitors")
	return []Reply{{Text: d.catalog.Welcome(), Menu: MenuMain}}
}

func (d *Dispatcher) handleMenu(ctx context.Context, chatID int64, tag string) []Reply {
	switch tag {
	case TagCheckUsage:
		d.bump(ctx, "button_usage")
		d.sessions.Update(chatID, func(s *session.Session) {
			s.State = session.StateAwaitingPhone
			s.Selection = session.SelectionUsage
			s.Target = session.TargetNone
			s.Queued = nil
		})
		return []Reply{{Text: d.catalog.Get("share_phone_usage"), Menu: MenuShareContact}}

	case TagRefreshLine:
		d.bump(ctx, "button_refresh")
		d.sessions.Update(chatID, func(s *session.Session) {
			s.State = session.StateAwaitingPhone
			s.Selection = session.SelectionRefresh
			s.Target = session.TargetNone
			s.Queued = nil
		})
		return []Reply{{Text: d.catalog.Get("share_phone_refresh"), Menu: MenuShareContact}}

	case TagSupport:
		d.bump(ctx, "button_support")
		return []Reply{{Text: d.catalog.Get("support"), Menu: MenuBack, NoPreview: true}}

	case TagSales:
		d.bump(ctx, "button_sales")
		return []Reply{{Text: d.catalog.Get("sales"), Menu: MenuBack, NoPreview: true}}

	case TagMainMenu:
		d.sessions.ResetFlow(chatID)
		return []Reply{{Text: d.catalog.Get("returning_main_menu"), Menu: MenuMain}}

	case TagUsageSelf, TagRefreshSelf:
		sess := d.sessions.Get(chatID)
		if !d.isManagerChat(ctx, sess) {
			return d.notAuthorized(chatID)
		}
		kind := action.ManagerMenuUsage
		if tag == TagRefreshSelf {
			kind = action.ManagerMenuRefresh
		}
		return d.protected(ctx, chatID, sess.MDN, action.Action{Kind: kind, Target: sess.MDN})

	case TagUsageOther, TagRefreshOther:
		sess := d.sessions.Get(chatID)
		if !d.isManagerChat(ctx, sess) {
			return d.notAuthorized(chatID)
		}
		target := session.TargetUsageOther
		if tag == TagRefreshOther {
			target = session.TargetRefreshOther
		}
		d.sessions.Update(chatID, func(s *session.Session) {
			s.State = session.StateAwaitingTargetMDN
			s.Target = target
		})
		return []Reply{{Text: d.catalog.Get("enter_target_mdn"), Menu: MenuRemoveKeyboard}}

	default:
		if logger.Dispatch != nil {
			logger.Dispatch.LogAttrs(ctx, slog.LevelWarn, "menu.unknown_tag",
				slog.String("event", "menu.unknown_tag"),
				slog.Int64("chat_id", chatID),
				slog.String("button", tag))
		}
		return []Reply{{Text: d.catalog.Get("block_text_warning"), Menu: MenuMain}}
	}
}

func (d *Dispatcher) handleContact(ctx context.Context, chatID int64, ev ContactShared) []Reply {
	// reject someone else's contact card before touching any state
	if ev.OwnerID == 0 || ev.OwnerID != ev.SenderID {
		return []Reply{{Text: d.catalog.Get("contact_mismatch"), Menu: MenuShareContact}}
	}
	mdn := phone.Normalize(ev.Phone)
	if mdn == "" {
		return []Reply{{Text: d.catalog.Get("contact_mismatch"), Menu: MenuShareContact}}
	}

	sel := d.sessions.Get(chatID).Selection
	d.sessions.Update(chatID, func(s *session.Session) { s.MDN = mdn })

	replies := []Reply{{Text: d.catalog.Get("verifying_account"), Menu: MenuRemoveKeyboard}}

	if _, err := d.identity.ResolveLine(ctx, mdn); err != nil {
		d.sessions.ResetFlow(chatID)
		if errors.Is(err, identity.ErrNotRegistered) {
			return append(replies, Reply{Text: d.catalog.Get("not_registered"), Menu: MenuMain})
		}
		return append(replies, Reply{Text: d.catalog.Get("bequick_error"), Menu: MenuMain})
	}

	if sel == session.SelectionNone {
		d.sessions.ResetFlow(chatID)
		return append(replies, Reply{Text: d.catalog.Get("returning_main_menu"), Menu: MenuMain})
	}

	if d.identity.IsManager(ctx, mdn) {
		d.sessions.Update(chatID, func(s *session.Session) {
			s.State = session.StateIdle
			s.Selection = session.SelectionNone
		})
		if sel == session.SelectionUsage {
			return append(replies, Reply{Text: d.catalog.Get("manager_menu_usage"), Menu: MenuManagerUsage})
		}
		return append(replies, Reply{Text: d.catalog.Get("manager_menu_refresh"), Menu: MenuManagerRefresh})
	}

	kind := action.SelfUsage
	if sel == session.SelectionRefresh {
		kind = action.SelfRefresh
	}
	return append(replies, d.protected(ctx, chatID, mdn, action.Action{Kind: kind, Target: mdn})...)
}

func (d *Dispatcher) handleText(ctx context.Context, chatID int64, text string) []Reply {
	sess := d.sessions.Get(chatID)

	// the state check must come before any Waiting probe: Waiting evicts
	// an expired challenge, which would turn EXPIRED into NO_SESSION
	if sess.State == session.StateAwaitingOTP || d.codes.Waiting(chatID) {
		return d.handleCode(ctx, chatID, text)
	}

	if sess.State == session.StateAwaitingTargetMDN {
		return d.handleTarget(ctx, chatID, sess, text)
	}

	return []Reply{{Text: d.catalog.Get("block_text_warning"), Menu: MenuMain}}
}

func (d *Dispatcher) handleCode(ctx context.Context, chatID int64, text string) []Reply {
	switch d.codes.Verify(chatID, text) {
	case otp.OutcomeOK:
		boundMDN, ok := d.codes.ConsumeBoundMDN(chatID)
		if !ok {
			// satisfied flag vanished between verify and consume; treat
			// as an expired challenge
			d.sessions.ResetFlow(chatID)
			return []Reply{{Text: d.catalog.Get("otp_expired"), Menu: MenuMain}}
		}
		d.grants.SetVerified(chatID)

		act, queued := d.sessions.TakeQueued(chatID)
		d.sessions.ResetFlow(chatID)
		if !queued || act.Target != boundMDN {
			// the bound number is the source of truth for what was proven
			return []Reply{{Text: d.catalog.Get("returning_main_menu"), Menu: MenuMain}}
		}
		return d.executeNow(ctx, act)

	case otp.OutcomeWrong:
		attempts := d.codes.AttemptsLeft(chatID)
		return []Reply{{Text: d.catalog.Render("otp_wrong", map[string]string{
			"attempts": strconv.Itoa(attempts),
		})}}

	case otp.OutcomeExpired:
		d.sessions.ResetFlow(chatID)
		return []Reply{{Text: d.catalog.Get("otp_expired"), Menu: MenuMain}}

	case otp.OutcomeLocked:
		d.sessions.ResetFlow(chatID)
		return []Reply{{Text: d.catalog.Get("otp_locked"), Menu: MenuMain}}

	default: // no session: challenge evaporated under us
		d.sessions.ResetFlow(chatID)
		return []Reply{{Text: d.catalog.Get("block_text_warning"), Menu: MenuMain}}
	}
}

func (d *Dispatcher) handleTarget(ctx context.Context, chatID int64, sess session.Session, text string) []Reply {
	target := phone.Normalize(text)
	if target == "" {
		return []Reply{{Text: d.catalog.Get("enter_target_mdn")}}
	}

	kind := action.OtherUsage
	if sess.Target == session.TargetRefreshOther {
		kind = action.OtherRefresh
	}
	return d.protected(ctx, chatID, sess.MDN, action.Action{Kind: kind, Target: target})
}

// protected is the shared gate in front of every sensitive operation: the
// target must be a registered line, and the chat must hold a live verified
// grant or pass a fresh passcode challenge. deliverTo is the requester's own
// number, where the code goes; the challenge itself stays bound to the
// action target.
func (d *Dispatcher) protected(ctx context.Context, chatID int64, deliverTo string, act action.Action) []Reply {
	if act.Target == "" {
		d.sessions.ResetFlow(chatID)
		return []Reply{{Text: d.catalog.Get("not_registered"), Menu: MenuMain}}
	}

	// resolve the target before challenging, so an unknown number is
	// answered without ever issuing a code
	if _, err := d.identity.ResolveLine(ctx, act.Target); err != nil {
		d.sessions.ResetFlow(chatID)
		if errors.Is(err, identity.ErrNotRegistered) {
			return []Reply{{Text: d.catalog.Get("not_registered"), Menu: MenuMain}}
		}
		return []Reply{{Text: d.catalog.Get("bequick_error"), Menu: MenuMain}}
	}

	if d.grants.IsVerified(chatID) {
		d.sessions.ResetFlow(chatID)
		return d.executeNow(ctx, act)
	}

	queued := act
	d.sessions.Update(chatID, func(s *session.Session) {
		s.State = session.StateAwaitingOTP
		s.Queued = &queued
	})

	code, err := d.codes.Issue(chatID, act.Target)
	if err != nil {
		d.sessions.ResetFlow(chatID)
		return []Reply{{Text: d.catalog.Get("bequick_error"), Menu: MenuMain}}
	}

	if deliverTo == "" {
		deliverTo = act.Target
	}
	smsBody := d.catalog.Render("otp_sms_body", map[string]string{"code": code})
	if err := d.deliver.SendSMS(ctx, deliverTo, smsBody); err != nil {
		// the challenge stays open: the carrier may still deliver late,
		// and the user is told where to look
		return []Reply{{Text: d.catalog.Get("otp_sms_failed"), Menu: MenuRemoveKeyboard}}
	}

	return []Reply{{
		Text: d.catalog.Render("otp_sent", map[string]string{
			"mdn": phone.Mask(deliverTo),
			"ttl": strconv.Itoa(int(d.codes.TTL().Seconds())),
		}),
		Menu: MenuRemoveKeyboard,
	}}
}

func (d *Dispatcher) executeNow(ctx context.Context, act action.Action) []Reply {
	var replies []Reply
	if act.Kind.IsUsage() {
		replies = append(replies, Reply{Text: d.catalog.Get("usage_checking_wait")})
	}
	result := d.executor.Execute(ctx, act)
	return append(replies, Reply{
		Text:     result,
		Menu:     MenuBack,
		Markdown: act.Kind.IsUsage(),
	})
}

func (d *Dispatcher) isManagerChat(ctx context.Context, sess session.Session) bool {
	return sess.MDN != "" && d.identity.IsManager(ctx, sess.MDN)
}

func (d *Dispatcher) notAuthorized(chatID int64) []Reply {
	d.sessions.ResetFlow(chatID)
	return []Reply{{Text: d.catalog.Get("not_authorized"), Menu: MenuMain}}
}

func (d *Dispatcher) bump(ctx context.Context, counter string) {
	if d.stats != nil {
		d.stats.Bump(ctx, counter)
	}
}
