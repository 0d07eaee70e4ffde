// Package session tracks per-chat conversation state for the support flows.
// It is the explicit-FSM replacement for ad-hoc "which fields happen to be
// set" bookkeeping: each chat is always in exactly one named state.
package session

import (
	"sync"

	"github.com/pondmobile/supportbot/internal/action"
)

// State identifies the conversation step a chat is currently in.
type State string

const (
	// StateIdle indicates there is no active flow with the chat.
	StateIdle State = "idle"
	// StateAwaitingPhone means a protected operation was picked and the
	// chat must now share a phone number.
	StateAwaitingPhone State = "awaiting_phone"
	// StateAwaitingOTP means a passcode challenge is outstanding.
	StateAwaitingOTP State = "awaiting_otp"
	// StateAwaitingTargetMDN means a manager must enter another
	// subscriber's number as the next text message.
	StateAwaitingTargetMDN State = "awaiting_target_mdn"
)

// Selection is the protected operation picked from the main menu before a
// phone number is known.
type Selection string

const (
	SelectionNone    Selection = ""
	SelectionUsage   Selection = "usage"
	SelectionRefresh Selection = "refresh"
)

// TargetFlow marks which operation a manager-entered target number serves.
type TargetFlow string

const (
	TargetNone         TargetFlow = ""
	TargetUsageOther   TargetFlow = "usage_other"
	TargetRefreshOther TargetFlow = "refresh_other"
)

// Session is the mutable state of one chat. Entries are created lazily on
// first access and live for the process lifetime; sub-flow fields reset to
// their zero values as each flow completes.
type Session struct {
	State     State
	MDN       string // last captured phone number for this chat
	Selection Selection
	Target    TargetFlow
	Queued    *action.Action // at most one action waiting for verification
}

// Store keeps chat sessions in memory behind a single lock. Every exported
// operation is atomic with respect to the others.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewStore constructs an empty in-memory session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Get returns a copy of the session for a chat, or an idle zero session
// when none exists yet. Mutations must go through Update.
func (s *Store) Get(chatID int64) Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[chatID]; ok {
		return *sess
	}
	return Session{State: StateIdle}
}

// Update applies fn to the chat's session under the store lock, creating
// the session if necessary.
func (s *Store) Update(chatID int64, fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = &Session{State: StateIdle}
		s.sessions[chatID] = sess
	}
	fn(sess)
}

// ResetFlow clears all sub-flow state for a chat but keeps the captured
// MDN, returning the chat to the idle state.
func (s *Store) ResetFlow(chatID int64) {
	s.Update(chatID, func(sess *Session) {
		sess.State = StateIdle
		sess.Selection = SelectionNone
		sess.Target = TargetNone
		sess.Queued = nil
	})
}

// TakeQueued atomically removes and returns the queued action for a chat.
func (s *Store) TakeQueued(chatID int64) (action.Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok || sess.Queued == nil {
		return action.Action{}, false
	}
	act := *sess.Queued
	sess.Queued = nil
	return act, true
}

// Clear removes the entire session for a chat.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	delete(s.sessions, chatID)
	s.mu.Unlock()
}

// Len reports the number of tracked chats.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
