package dispatch

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pondmobile/supportbot/internal/action"
	"github.com/pondmobile/supportbot/internal/grant"
	"github.com/pondmobile/supportbot/internal/identity"
	"github.com/pondmobile/supportbot/internal/otp"
	"github.com/pondmobile/supportbot/internal/session"
	"github.com/pondmobile/supportbot/internal/texts"
)

type fakeIdentity struct {
	lines    map[string]bool
	managers map[string]bool
	err      error
}

func (f *fakeIdentity) ResolveLine(_ context.Context, mdn string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if !f.lines[mdn] {
		return 0, identity.ErrNotRegistered
	}
	return 1, nil
}

func (f *fakeIdentity) IsManager(_ context.Context, mdn string) bool {
	return f.managers[mdn] && f.lines[mdn]
}

type fakeExecutor struct {
	executed []action.Action
}

func (f *fakeExecutor) Execute(_ context.Context, act action.Action) string {
	f.executed = append(f.executed, act)
	if act.Kind.IsUsage() {
		return "usage result"
	}
	return "refresh result"
}

type fakeDeliverer struct {
	sends  int
	lastTo string
	body   string
	err    error
}

func (f *fakeDeliverer) SendSMS(_ context.Context, mdn, text string) error {
	f.sends++
	f.lastTo = mdn
	f.body = text
	return f.err
}

type fixture struct {
	d        *Dispatcher
	sessions *session.Store
	engine   *otp.Engine
	grants   *grant.Cache
	idn      *fakeIdentity
	exec     *fakeExecutor
	sms      *fakeDeliverer
}

func newFixture(otpTTL time.Duration) *fixture {
	f := &fixture{
		sessions: session.NewStore(),
		engine:   otp.NewEngine(otpTTL, 3),
		grants:   grant.NewCache(120 * time.Second),
		idn: &fakeIdentity{
			lines:    map[string]bool{"2125550199": true, "9175550123": true},
			managers: map[string]bool{"9175550123": true},
		},
		exec: &fakeExecutor{},
		sms:  &fakeDeliverer{},
	}
	f.d = New(f.sessions, f.engine, f.grants, f.idn, f.exec, f.sms, texts.NewCatalog(""), nil)
	return f
}

var codeRe = regexp.MustCompile(`\d{6}`)

func (f *fixture) sentCode(t *testing.T) string {
	t.Helper()
	code := codeRe.FindString(f.sms.body)
	if code == "" {
		t.Fatalf("no code found in sms body %q", f.sms.body)
	}
	return code
}

func lastText(replies []Reply) string {
	if len(replies) == 0 {
		return ""
	}
	return replies[len(replies)-1].Text
}

func TestSubscriberRefreshHappyPath(t *testing.T) {
	f := newFixture(time.Minute)
	ctx := context.Background()
	const chat = int64(100)

	f.d.Handle(ctx, chat, Start{})
	replies := f.d.Handle(ctx, chat, MenuSelect{Tag: TagRefreshLine})
	if replies[0].Menu != MenuShareContact {
		t.Fatal("refresh selection should request a contact share")
	}

	replies = f.d.Handle(ctx, chat, ContactShared{Phone: "+1 212 555 0199", OwnerID: 7, SenderID: 7})
	if !strings.Contains(lastText(replies), "sent a 6-digit code") {
		t.Fatalf("expected otp prompt, got %q", lastText(replies))
	}
	if f.sms.lastTo != "2125550199" {
		t.Fatalf("code delivered to %q", f.sms.lastTo)
	}

	replies = f.d.Handle(ctx, chat, FreeText{Text: f.sentCode(t)})
	if lastText(replies) != "refresh result" {
		t.Fatalf("expected executed refresh, got %q", lastText(replies))
	}
	if len(f.exec.executed) != 1 || f.exec.executed[0].Kind != action.SelfRefresh || f.exec.executed[0].Target != "2125550199" {
		t.Fatalf("executed = %+v", f.exec.executed)
	}

	// a second protected action inside the grant window skips the challenge
	f.d.Handle(ctx, chat, MenuSelect{Tag: TagCheckUsage})
	replies = f.d.Handle(ctx, chat, ContactShared{Phone: "2125550199", OwnerID: 7, SenderID: 7})
	if lastText(replies) != "usage result" {
		t.Fatalf("grant should bypass otp, got %q", lastText(replies))
	}
	if f.sms.sends != 1 {
		t.Fatalf("sms sent %d times, want 1", f.sms.sends)
	}
}

func TestExpiredCodeRequiresRestart(t *testing.T) {
	f := newFixture(10 * time.Millisecond)
	ctx := context.Background()
	const chat = int64(101)

	f.d.Handle(ctx, chat, MenuSelect{Tag: TagRefreshLine})
	f.d.Handle(ctx, chat, ContactShared{Phone: "2125550199", OwnerID: 7, SenderID: 7})
	code := f.sentCode(t)

	time.Sleep(50 * time.Millisecond)

	replies := f.d.Handle(ctx, chat, FreeText{Text: code})
	if !strings.Contains(lastText(replies), "expired") {
		t.Fatalf("expected expiry message, got %q", lastText(replies))
	}
	if len(f.exec.executed) != 0 {
		t.Fatal("expired code must not execute the action")
	}
	if f.sessions.Get(chat).State != session.StateIdle {
		t.Fatal("chat should be back at the menu")
	}
}

func TestManagerUnregisteredTargetSkipsChallenge(t *testing.T) {
	f := newFixture(time.Minute)
	ctx := context.Background()
	const chat = int64(102)

	f.d.Handle(ctx, chat, MenuSelect{Tag: TagCheckUsage})
	replies := f.d.Handle(ctx, chat, ContactShared{Phone: "9175550123", OwnerID: 9, SenderID: 9})
	if replies[len(replies)-1].Menu != MenuManagerUsage {
		t.Fatalf("manager should see the usage sub-menu, got %+v", replies)
	}

	replies = f.d.Handle(ctx, chat, MenuSelect{Tag: TagUsageOther})
	if !strings.Contains(lastText(replies), "phone number") {
		t.Fatalf("expected target prompt, got %q", lastText(replies))
	}

	replies = f.d.Handle(ctx, chat, FreeText{Text: "347-555-0000"})
	if !strings.Contains(lastText(replies), "not registered") {
		t.Fatalf("expected not-registered message, got %q", lastText(replies))
	}
	if f.sms.sends != 0 {
		t.Fatal("no challenge may be issued for an unregistered target")
	}
}

func TestManagerOtherTargetFlow(t *testing.T) {
	f := newFixture(time.Minute)
	ctx := context.Background()
	const chat = int64(103)

	f.d.Handle(ctx, chat, MenuSelect{Tag: TagRefreshLine})
	f.d.Handle(ctx, chat, ContactShared{Phone: "9175550123", OwnerID: 9, SenderID: 9})
	f.d.Handle(ctx, chat, MenuSelect{Tag: TagRefreshOther})
	f.d.Handle(ctx, chat, FreeText{Text: "2125550199"})

	if f.sms.lastTo != "9175550123" {
		t.Fatalf("code must go to the manager's own number, got %q", f.sms.lastTo)
	}

	replies := f.d.Handle(ctx, chat, FreeText{Text: f.sentCode(t)})
	if lastText(replies) != "refresh result" {
		t.Fatalf("got %q", lastText(replies))
	}
	if f.exec.executed[0].Kind != action.OtherRefresh || f.exec.executed[0].Target != "2125550199" {
		t.Fatalf("executed = %+v", f.exec.executed)
	}
}

func TestSpoofedContactRejected(t *testing.T) {
	f := newFixture(time.Minute)
	ctx := context.Background()
	const chat = int64(104)

	f.d.Handle(ctx, chat, MenuSelect{Tag: TagCheckUsage})
	before := f.sessions.Get(chat)

	replies := f.d.Handle(ctx, chat, ContactShared{Phone: "2125550199", OwnerID: 5, SenderID: 6})
	if !strings.Contains(lastText(replies), "your own contact") {
		t.Fatalf("expected mismatch message, got %q", lastText(replies))
	}
	after := f.sessions.Get(chat)
	if after != before {
		t.Fatalf("session mutated by spoofed share: %+v -> %+v", before, after)
	}
}

func TestWrongCodeCountsDown(t *testing.T) {
	f := newFixture(time.Minute)
	ctx := context.Background()
	const chat = int64(105)

	f.d.Handle(ctx, chat, MenuSelect{Tag: TagCheckUsage})
	f.d.Handle(ctx, chat, ContactShared{Phone: "2125550199", OwnerID: 7, SenderID: 7})

	replies := f.d.Handle(ctx, chat, FreeText{Text: "000000"})
	if !strings.Contains(lastText(replies), "2 attempt") {
		t.Fatalf("expected countdown, got %q", lastText(replies))
	}

	f.d.Handle(ctx, chat, FreeText{Text: "000001"})
	replies = f.d.Handle(ctx, chat, FreeText{Text: "000002"})
	if !strings.Contains(lastText(replies), "Too many wrong codes") {
		t.Fatalf("expected lockout, got %q", lastText(replies))
	}
	if len(f.exec.executed) != 0 {
		t.Fatal("locked challenge must not execute")
	}
}

func TestDeliveryFailureKeepsChallengeOpen(t *testing.T) {
	f := newFixture(time.Minute)
	f.sms.err = errors.New("sms gateway down")
	ctx := context.Background()
	const chat = int64(106)

	f.d.Handle(ctx, chat, MenuSelect{Tag: TagRefreshLine})
	replies := f.d.Handle(ctx, chat, ContactShared{Phone: "2125550199", OwnerID: 7, SenderID: 7})
	if !strings.Contains(lastText(replies), "could not push the code") {
		t.Fatalf("expected fallback instruction, got %q", lastText(replies))
	}

	// the code was still generated; entering it completes the flow
	f.sms.err = nil
	replies = f.d.Handle(ctx, chat, FreeText{Text: f.sentCode(t)})
	if lastText(replies) != "refresh result" {
		t.Fatalf("challenge should stay alive after delivery failure, got %q", lastText(replies))
	}
}

func TestIdleFreeTextGetsMenuWarning(t *testing.T) {
	f := newFixture(time.Minute)
	replies := f.d.Handle(context.Background(), 107, FreeText{Text: "hello"})
	if !strings.Contains(lastText(replies), "menu buttons") {
		t.Fatalf("got %q", lastText(replies))
	}
}

func TestNonManagerCannotUseSubMenu(t *testing.T) {
	f := newFixture(time.Minute)
	ctx := context.Background()
	const chat = int64(108)

	f.d.Handle(ctx, chat, MenuSelect{Tag: TagCheckUsage})
	f.d.Handle(ctx, chat, ContactShared{Phone: "2125550199", OwnerID: 7, SenderID: 7})
	// subscriber is mid-otp; a forged sub-menu press must not be honored
	replies := f.d.Handle(ctx, chat, MenuSelect{Tag: TagUsageOther})
	if !strings.Contains(lastText(replies), "support team") {
		t.Fatalf("expected not-authorized, got %q", lastText(replies))
	}
}

func TestLookupOutageDuringContact(t *testing.T) {
	f := newFixture(time.Minute)
	f.idn.err = errors.New("connection refused")
	ctx := context.Background()

	f.d.Handle(ctx, 109, MenuSelect{Tag: TagCheckUsage})
	replies := f.d.Handle(ctx, 109, ContactShared{Phone: "2125550199", OwnerID: 7, SenderID: 7})
	if !strings.Contains(lastText(replies), "provisioning") {
		t.Fatalf("expected outage copy, got %q", lastText(replies))
	}
	if f.sessions.Get(109).State != session.StateIdle {
		t.Fatal("flow should reset after an outage")
	}
}
