// Package otp issues and verifies short-lived numeric passcodes per chat.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/pondmobile/supportbot/core/logger"
	"github.com/pondmobile/supportbot/internal/phone"
)

// CodeLength is the fixed number of digits in a generated passcode.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// Outcome is the result of a verification attempt.
type Outcome int

const (
	// OutcomeNoSession means no challenge is open for the chat.
	OutcomeNoSession Outcome = iota
	// OutcomeOK means the submitted code matched.
	OutcomeOK
	// OutcomeWrong means the code did not match; attempts remain.
	OutcomeWrong
	// OutcomeExpired means the challenge outlived its TTL and was removed.
	OutcomeExpired
	// OutcomeLocked means the attempt budget is exhausted; the challenge was removed.
	OutcomeLocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeWrong:
		return "wrong"
	case OutcomeExpired:
		return "expired"
	case OutcomeLocked:
		return "locked"
	default:
		return "no_session"
	}
}

// challenge is a single live passcode bound to a chat. The bound MDN is
// fixed at issuance: a second flow started while the code is outstanding
// cannot redirect a late success to a different target.
type challenge struct {
	code         string
	expiresAt    time.Time
	attemptsLeft int
	boundMDN     string
	satisfied    bool
}

// Engine stores at most one live challenge per chat and checks submissions
// against it. Expiry is evaluated lazily on every read.
type Engine struct {
	mu         sync.Mutex
	challenges map[int64]*challenge

	ttl         time.Duration
	maxAttempts int

	now func() time.Time
}

// NewEngine builds an engine with the given passcode TTL and attempt budget.
func NewEngine(ttl time.Duration, maxAttempts int) *Engine {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Engine{
		challenges:  make(map[int64]*challenge),
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// TTL returns the configured passcode lifetime.
func (e *Engine) TTL() time.Duration {
	return e.ttl
}

// Issue generates a fresh uniformly random zero-padded code, binds it to the
// target MDN, and replaces any previous challenge for the chat.
func (e *Engine) Issue(chatID int64, boundMDN string) (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	code := fmt.Sprintf("%0*d", CodeLength, n.Int64())

	e.mu.Lock()
	e.challenges[chatID] = &challenge{
		code:         code,
		expiresAt:    e.now().Add(e.ttl),
		attemptsLeft: e.maxAttempts,
		boundMDN:     boundMDN,
	}
	e.mu.Unlock()

	if logger.OTP != nil {
		logger.OTP.LogAttrs(context.Background(), slog.LevelInfo, "otp.issued",
			slog.String("event", "otp.issued"),
			slog.Int64("chat_id", chatID),
			slog.String("mdn", phone.Mask(boundMDN)),
		)
	}
	return code, nil
}

// Waiting reports whether a live challenge exists for the chat, evicting an
// expired one as a side effect.
func (e *Engine) Waiting(chatID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.challenges[chatID]
	if !ok {
		return false
	}
	if e.now().After(ch.expiresAt) {
		delete(e.challenges, chatID)
		return false
	}
	return true
}

// Verify checks a submitted code. Non-digit characters in the input are
// ignored so formatted entries like "123 456" still match. A matching code
// does not remove the challenge; ConsumeBoundMDN completes the handshake.
func (e *Engine) Verify(chatID int64, input string) Outcome {
	e.mu.Lock()
	outcome := e.verifyLocked(chatID, input)
	e.mu.Unlock()

	if logger.OTP != nil {
		logger.OTP.LogAttrs(context.Background(), slog.LevelInfo, "otp.verify",
			slog.String("event", "otp.verify"),
			slog.Int64("chat_id", chatID),
			slog.String("otp_outcome", outcome.String()),
		)
	}
	return outcome
}

func (e *Engine) verifyLocked(chatID int64, input string) Outcome {
	ch, ok := e.challenges[chatID]
	if !ok {
		return OutcomeNoSession
	}
	if e.now().After(ch.expiresAt) {
		delete(e.challenges, chatID)
		return OutcomeExpired
	}
	if ch.attemptsLeft <= 0 {
		delete(e.challenges, chatID)
		return OutcomeLocked
	}

	clean := stripNonDigits(input)
	if clean == ch.code {
		ch.satisfied = true
		return OutcomeOK
	}

	ch.attemptsLeft--
	if ch.attemptsLeft <= 0 {
		delete(e.challenges, chatID)
		return OutcomeLocked
	}
	return OutcomeWrong
}

// AttemptsLeft reports the remaining attempt budget for the chat's live
// challenge, or zero when none exists.
func (e *Engine) AttemptsLeft(chatID int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.challenges[chatID]
	if !ok {
		return 0
	}
	return ch.attemptsLeft
}

// ConsumeBoundMDN pops the MDN from a challenge that already verified OK.
// It returns false for a missing or unsatisfied challenge, so a caller can
// never extract the target of a code that was not actually proven.
func (e *Engine) ConsumeBoundMDN(chatID int64) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.challenges[chatID]
	if !ok || !ch.satisfied {
		return "", false
	}
	delete(e.challenges, chatID)
	return ch.boundMDN, true
}

// Sweep removes expired challenges and returns the number evicted. The
// engine works correctly without it; it only bounds memory growth.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	removed := 0
	for id, ch := range e.challenges {
		if now.After(ch.expiresAt) {
			delete(e.challenges, id)
			removed++
		}
	}
	return removed
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
