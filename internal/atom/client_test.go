package atom

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Token: "secret-token", Timeout: 5 * time.Second})
}

func TestLookupLine(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-AUTH-TOKEN"); got != "secret-token" {
			t.Errorf("auth header = %q", got)
		}
		if r.URL.Path != "/lines" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("by_quick_find[]"); got != "2125550199" {
			t.Errorf("quick_find = %q, want normalized MDN", got)
		}
		_, _ = w.Write([]byte(`{"lines":[{"id":4711},{"id":9}]}`))
	})

	id, err := c.LookupLine(context.Background(), "+1 (212) 555-0199")
	if err != nil {
		t.Fatalf("LookupLine: %v", err)
	}
	if id != 4711 {
		t.Fatalf("line id = %d, want 4711", id)
	}
}

func TestLookupLineNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"lines":[]}`))
	})

	_, err := c.LookupLine(context.Background(), "2125550199")
	if !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("err = %v, want ErrLineNotFound", err)
	}
	if IsTransport(err) {
		t.Fatal("not-found must not classify as transport failure")
	}
}

func TestLookupLineStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.LookupLine(context.Background(), "2125550199")
	code, ok := StatusCode(err)
	if !ok || code != http.StatusInternalServerError {
		t.Fatalf("err = %v, want StatusError 500", err)
	}
}

func TestQueryUsage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lines/4711/query_service_details" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"usage_summary":{"international_data":{
			"total":"10485760","remaining":"8388608","used_by_this_line":"2097152"}}}`))
	})

	u, err := c.QueryUsage(context.Background(), 4711)
	if err != nil {
		t.Fatalf("QueryUsage: %v", err)
	}
	if u.TotalKiB != 10485760 || u.RemainingKiB != 8388608 || u.UsedKiB != 2097152 {
		t.Fatalf("usage = %+v", u)
	}
}

func TestQueryUsageFallsBackToSharedUsed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"usage_summary":{"international_data":{
			"total":1024,"remaining":512,"used":512}}}`))
	})

	u, err := c.QueryUsage(context.Background(), 1)
	if err != nil {
		t.Fatalf("QueryUsage: %v", err)
	}
	if u.UsedKiB != 512 {
		t.Fatalf("used = %v, want fallback to shared counter", u.UsedKiB)
	}
}

func TestNetworkResetStatuses(t *testing.T) {
	for _, tc := range []struct {
		status int
		wantOK bool
	}{
		{200, true},
		{202, true},
		{204, true},
		{404, false},
		{500, false},
	} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %q", r.Method)
			}
			if r.URL.Path != "/lines/7/network_reset" {
				t.Errorf("path = %q", r.URL.Path)
			}
			w.WriteHeader(tc.status)
		})

		err := c.NetworkReset(context.Background(), 7)
		if tc.wantOK && err != nil {
			t.Errorf("status %d: unexpected error %v", tc.status, err)
		}
		if !tc.wantOK {
			if code, ok := StatusCode(err); !ok || code != tc.status {
				t.Errorf("status %d: err = %v", tc.status, err)
			}
		}
	}
}

func TestSendSMS(t *testing.T) {
	var gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.WriteHeader(http.StatusCreated)
	})

	if err := c.SendSMS(context.Background(), "1-917-555-0123", "code 123456"); err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if gotBody != `{"body":"code 123456","to":"9175550123"}` {
		t.Fatalf("body = %s", gotBody)
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// flakyTransport fails the first N attempts with a retryable timeout,
// then delegates to the real transport.
type flakyTransport struct {
	failures int
	calls    int
	base     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &net.OpError{Op: "read", Net: "tcp", Err: timeoutError{}}
	}
	return f.base.RoundTrip(req)
}

func TestGetRetriesOnTransientFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"lines":[{"id":1}]}`))
	}))
	t.Cleanup(srv.Close)

	flaky := &flakyTransport{failures: 1, base: http.DefaultTransport}
	c := New(Config{BaseURL: srv.URL, Token: "t", Timeout: 10 * time.Second})
	c.http.Transport = &retryTransport{base: flaky, maxRetries: 2, backoff: time.Millisecond}

	id, err := c.LookupLine(context.Background(), "2125550199")
	if err != nil {
		t.Fatalf("LookupLine after retry: %v", err)
	}
	if id != 1 || flaky.calls != 2 {
		t.Fatalf("id = %d, calls = %d", id, flaky.calls)
	}
}

func TestPostDoesNotRetry(t *testing.T) {
	flaky := &flakyTransport{failures: 10, base: http.DefaultTransport}
	c := New(Config{BaseURL: "http://example.invalid", Token: "t", Timeout: time.Second})
	c.http.Transport = &retryTransport{base: flaky, maxRetries: 2, backoff: time.Millisecond}

	if err := c.NetworkReset(context.Background(), 7); err == nil {
		t.Fatal("expected error from failing transport")
	}
	if flaky.calls != 1 {
		t.Fatalf("POST attempted %d times, want exactly 1", flaky.calls)
	}
}
