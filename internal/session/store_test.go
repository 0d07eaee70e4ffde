package session

import (
	"sync"
	"testing"

	"github.com/pondmobile/supportbot/internal/action"
)

func TestGetReturnsIdleZeroSession(t *testing.T) {
	s := NewStore()
	sess := s.Get(1)
	if sess.State != StateIdle {
		t.Fatalf("state = %q, want idle", sess.State)
	}
	if sess.MDN != "" || sess.Selection != SelectionNone || sess.Queued != nil {
		t.Fatalf("zero session not empty: %+v", sess)
	}
	if s.Len() != 0 {
		t.Fatal("Get must not create sessions")
	}
}

func TestUpdateAndResetFlow(t *testing.T) {
	s := NewStore()
	s.Update(5, func(sess *Session) {
		sess.State = StateAwaitingOTP
		sess.MDN = "2125550199"
		sess.Selection = SelectionRefresh
		sess.Queued = &action.Action{Kind: action.SelfRefresh, Target: "2125550199"}
	})

	got := s.Get(5)
	if got.State != StateAwaitingOTP || got.Queued == nil {
		t.Fatalf("unexpected session: %+v", got)
	}

	s.ResetFlow(5)
	got = s.Get(5)
	if got.State != StateIdle || got.Selection != SelectionNone || got.Queued != nil {
		t.Fatalf("flow not reset: %+v", got)
	}
	if got.MDN != "2125550199" {
		t.Fatal("ResetFlow must keep the captured MDN")
	}
}

func TestTakeQueued(t *testing.T) {
	s := NewStore()
	if _, ok := s.TakeQueued(1); ok {
		t.Fatal("empty store should have no queued action")
	}

	s.Update(1, func(sess *Session) {
		sess.Queued = &action.Action{Kind: action.OtherUsage, Target: "9175550123"}
	})

	act, ok := s.TakeQueued(1)
	if !ok || act.Kind != action.OtherUsage || act.Target != "9175550123" {
		t.Fatalf("TakeQueued = %+v, %v", act, ok)
	}
	if _, ok := s.TakeQueued(1); ok {
		t.Fatal("queued action must be consumed exactly once")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Update(2, func(sess *Session) { sess.MDN = "2125550199" })

	sess := s.Get(2)
	sess.MDN = "changed"
	if s.Get(2).MDN != "2125550199" {
		t.Fatal("Get must return a copy")
	}
}

func TestConcurrentChats(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Update(id, func(sess *Session) { sess.State = StateAwaitingPhone })
			_ = s.Get(id)
			s.ResetFlow(id)
		}(int64(i))
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Fatalf("len = %d, want 50", s.Len())
	}
}
