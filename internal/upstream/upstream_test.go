package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/xspider/internal/credential"
	"github.com/nao1215/xspider/internal/egress"
)

// followingBody renders a Following payload with the given user ids and
// bottom cursor.
func followingBody(ids []string, cursor string) []byte {
	entries := make([]map[string]any, 0, len(ids)+2)
	for _, id := range ids {
		entries = append(entries, map[string]any{
			"entryId": "user-" + id,
			"content": map[string]any{
				"itemContent": map[string]any{
					"user_results": map[string]any{
						"result": map[string]any{
							"__typename": "User",
							"rest_id":    id,
							"legacy": map[string]any{
								"screen_name":     "user" + id,
								"name":            "User " + id,
								"followers_count": 100,
								"friends_count":   10,
							},
						},
					},
				},
			},
		})
	}
	entries = append(entries,
		map[string]any{"entryId": "cursor-top-1", "content": map[string]any{"value": "-1|top"}},
		map[string]any{"entryId": "cursor-bottom-1", "content": map[string]any{"value": cursor}},
	)
	doc := map[string]any{
		"data": map[string]any{
			"user": map[string]any{
				"result": map[string]any{
					"timeline": map[string]any{
						"timeline": map[string]any{
							"instructions": []any{
								map[string]any{"type": "TimelineClearCache"},
								map[string]any{"type": "TimelineAddEntries", "entries": entries},
							},
						},
					},
				},
			},
		},
	}
	b, _ := json.Marshal(doc)
	return b
}

func testTokens(n int) []credential.Token {
	tokens := make([]credential.Token, n)
	for i := range tokens {
		tokens[i] = credential.Token{
			BearerToken: fmt.Sprintf("bearer-%d", i),
			CSRFToken:   fmt.Sprintf("ct0-%d", i),
			AuthToken:   fmt.Sprintf("auth-%d", i),
		}
	}
	return tokens
}

func newTestClient(t *testing.T, srv *httptest.Server, nCreds int, opts ...Option) (*Client, *credential.Pool) {
	t.Helper()
	creds, err := credential.NewPool(testTokens(nCreds))
	if err != nil {
		t.Fatal(err)
	}
	routes, err := egress.NewPool(nil)
	if err != nil {
		t.Fatal(err)
	}
	base := []Option{
		WithBaseURL(srv.URL),
		WithRequestInterval(0),
		WithMaxAttempts(3),
		WithAcquireTimeout(50 * time.Millisecond),
		WithBackoff(Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2}),
	}
	return NewClient(creds, routes, append(base, opts...)...), creds
}

func TestClassify(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	reset := now.Add(10 * time.Minute)

	header := func(kv ...string) http.Header {
		h := http.Header{}
		for i := 0; i+1 < len(kv); i += 2 {
			h.Set(kv[i], kv[i+1])
		}
		return h
	}

	tests := []struct {
		name      string
		status    int
		header    http.Header
		body      string
		wantKind  OutcomeKind
		wantReset time.Time
	}{
		{"ok", 200, header(), `{"data":{}}`, OutcomeSuccess, time.Time{}},
		{"rate limited with reset epoch", 429, header(headerReset, strconv.FormatInt(reset.Unix(), 10)), "", OutcomeRateLimited, reset},
		{"rate limited with retry-after", 429, header(headerRetryAfter, "60"), "", OutcomeRateLimited, now.Add(time.Minute)},
		{"rate limited without metadata", 429, header(), "", OutcomeRateLimited, time.Time{}},
		{"unauthorized", 401, header(), "", OutcomeAuthFailed, time.Time{}},
		{"forbidden", 403, header(), "", OutcomeAuthFailed, time.Time{}},
		{"server error", 503, header(), "", OutcomeTransient, time.Time{}},
		{"request timeout", 408, header(), "", OutcomeTransient, time.Time{}},
		{"not found", 404, header(), "", OutcomePermanent, time.Time{}},
		{"unknown status", 302, header(), "", OutcomePermanent, time.Time{}},
		{"graphql auth code", 200, header(), `{"errors":[{"code":32,"message":"Could not authenticate you"}]}`, OutcomeAuthFailed, time.Time{}},
		{"graphql rate limit code", 200, header(headerReset, strconv.FormatInt(reset.Unix(), 10)), `{"errors":[{"code":88}]}`, OutcomeRateLimited, reset},
		{"graphql suspended", 200, header(), `{"errors":[{"code":63,"message":"User has been suspended"}]}`, OutcomeUnavailable, time.Time{}},
		{"graphql unknown code", 200, header(), `{"errors":[{"code":999}],"data":{}}`, OutcomeSuccess, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := Classify(tt.status, tt.header, []byte(tt.body), now)
			if out.Kind != tt.wantKind {
				t.Errorf("expected %v, got %v", tt.wantKind, out.Kind)
			}
			if !out.ResetAt.Equal(tt.wantReset) {
				t.Errorf("expected reset %v, got %v", tt.wantReset, out.ResetAt)
			}
		})
	}
}

func TestClassifyQuota(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set(headerRemaining, "42")
	h.Set(headerReset, "1700000900")

	out := Classify(200, h, nil, time.Now())
	if !out.Quota.Known || out.Quota.Remaining != 42 {
		t.Errorf("unexpected quota: %+v", out.Quota)
	}
	if out.Quota.ResetAt.Unix() != 1700000900 {
		t.Errorf("unexpected reset: %v", out.Quota.ResetAt)
	}
	if got := out.Credential(); got.Kind != credential.OutcomeSuccess || got.Quota.Remaining != 42 {
		t.Errorf("unexpected credential outcome: %+v", got)
	}

	if out := Classify(200, http.Header{}, nil, time.Now()); out.Quota.Known {
		t.Error("quota without headers must be unknown")
	}
}

func TestExtractFollowingPage(t *testing.T) {
	t.Parallel()

	page, err := ExtractFollowingPage(followingBody([]string{"1", "2"}, "1234|5678"))
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(page.Nodes))
	}
	n := page.Nodes[1]
	if n.ID != "2" || n.Handle != "user2" || n.DisplayName != "User 2" || n.FollowersCount != 100 || n.FollowingCount != 10 {
		t.Errorf("unexpected node: %+v", n)
	}
	if page.NextCursor != "1234|5678" || !page.HasMore() {
		t.Errorf("expected more pages with cursor, got %q", page.NextCursor)
	}

	t.Run("end cursor", func(t *testing.T) {
		t.Parallel()
		page, err := ExtractFollowingPage(followingBody([]string{"1"}, "0|1234"))
		if err != nil {
			t.Fatal(err)
		}
		if page.HasMore() {
			t.Error("cursor starting with 0| should end the listing")
		}
	})

	t.Run("empty page", func(t *testing.T) {
		t.Parallel()
		page, err := ExtractFollowingPage(followingBody(nil, "999|1"))
		if err != nil {
			t.Fatal(err)
		}
		if page.HasMore() {
			t.Error("a page without users should end the listing")
		}
	})

	t.Run("unavailable users are skipped", func(t *testing.T) {
		t.Parallel()
		page, err := ExtractFollowingPage(unavailableBody("777|1"))
		if err != nil {
			t.Fatal(err)
		}
		if len(page.Nodes) != 0 {
			t.Errorf("expected no nodes, got %v", page.Nodes)
		}
		if page.Entries != 1 {
			t.Errorf("Entries = %d, want 1", page.Entries)
		}
		if !page.HasMore() {
			t.Error("a page of unavailable users with a live cursor should continue")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		if _, err := ExtractFollowingPage([]byte("<html>")); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})
}

// unavailableBody renders a Following payload whose only user entry is an
// unavailable account.
func unavailableBody(cursor string) []byte {
	return []byte(`{"data":{"user":{"result":{"timeline":{"timeline":{"instructions":[{"type":"TimelineAddEntries","entries":[
		{"entryId":"user-9","content":{"itemContent":{"user_results":{"result":{"__typename":"UserUnavailable"}}}}},
		{"entryId":"cursor-bottom-9","content":{"value":"` + cursor + `"}}
	]}]}}}}}}`)
}

func TestExtractUser(t *testing.T) {
	t.Parallel()

	node, err := ExtractUser([]byte(`{"data":{"user":{"result":{"__typename":"User","rest_id":"783214","legacy":{"screen_name":"X","followers_count":5}}}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if node.ID != "783214" || node.Handle != "X" || node.FollowersCount != 5 {
		t.Errorf("unexpected node: %+v", node)
	}

	if _, err := ExtractUser([]byte(`{"data":{"user":{}}}`)); !errors.Is(err, ErrNodeUnavailable) {
		t.Errorf("expected ErrNodeUnavailable for missing user, got %v", err)
	}
	if _, err := ExtractUser([]byte(`{"data":{"user":{"result":{"__typename":"UserUnavailable","reason":"Suspended"}}}}`)); !errors.Is(err, ErrNodeUnavailable) {
		t.Errorf("expected ErrNodeUnavailable for unavailable user, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	b := DefaultBackoff()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, time.Minute},
		{20, time.Minute},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}

	low := b.Jittered(3, func(int64) int64 { return 0 })
	high := b.Jittered(3, func(n int64) int64 { return n - 1 })
	if low != 2*time.Second || high != 4*time.Second {
		t.Errorf("expected jitter range [2s, 4s], got [%v, %v]", low, high)
	}
}

func TestFollowingParams(t *testing.T) {
	t.Parallel()

	params, err := followingParams("123", 20, "abc")
	if err != nil {
		t.Fatal(err)
	}
	var vars map[string]any
	if err := json.Unmarshal([]byte(params.Get("variables")), &vars); err != nil {
		t.Fatal(err)
	}
	if vars["userId"] != "123" || vars["cursor"] != "abc" || vars["includePromotedContent"] != false {
		t.Errorf("unexpected variables: %v", vars)
	}
	if !strings.Contains(params.Get("features"), "responsive_web_graphql_timeline_navigation_enabled") {
		t.Error("features missing")
	}

	params, _ = followingParams("123", 20, "")
	if strings.Contains(params.Get("variables"), "cursor") {
		t.Error("first page must not send a cursor")
	}
}

func TestClientFetchFollowingPage(t *testing.T) {
	t.Parallel()

	var gotAuth, gotCSRF, gotCookieCT0, gotCookieAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCSRF = r.Header.Get("X-Csrf-Token")
		if c, err := r.Cookie("ct0"); err == nil {
			gotCookieCT0 = c.Value
		}
		if c, err := r.Cookie("auth_token"); err == nil {
			gotCookieAuth = c.Value
		}
		gotPath = r.URL.Path
		w.Header().Set(headerRemaining, "10")
		w.Header().Set(headerReset, strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
		_, _ = w.Write(followingBody([]string{"10", "11"}, "5|next"))
	}))
	defer srv.Close()

	client, creds := newTestClient(t, srv, 1)
	page, err := client.FetchFollowingPage(context.Background(), "42", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Nodes) != 2 || page.NextCursor != "5|next" {
		t.Errorf("unexpected page: %+v", page)
	}
	if gotPath != "/"+Following.QueryID+"/Following" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer bearer-0" || gotCSRF != "ct0-0" || gotCookieCT0 != "ct0-0" || gotCookieAuth != "auth-0" {
		t.Errorf("credential not injected: auth=%q csrf=%q ct0=%q auth_token=%q", gotAuth, gotCSRF, gotCookieCT0, gotCookieAuth)
	}
	if stats := creds.Stats(); stats.Available != 1 || stats.Errors != 0 {
		t.Errorf("unexpected credential stats: %+v", stats)
	}
}

// A rate-limited response switches to the next credential.
func TestClientRateLimitSwitchesCredential(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var used []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := r.Cookie("auth_token")
		mu.Lock()
		used = append(used, c.Value)
		mu.Unlock()
		if c.Value == "auth-0" {
			w.Header().Set(headerReset, strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write(followingBody([]string{"1"}, "0|end"))
	}))
	defer srv.Close()

	client, creds := newTestClient(t, srv, 2)
	if _, err := client.FetchFollowingPage(context.Background(), "42", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(used) != 2 || used[0] != "auth-0" || used[1] != "auth-1" {
		t.Errorf("expected auth-0 then auth-1, got %v", used)
	}
	if stats := creds.Stats(); stats.RateLimited != 1 {
		t.Errorf("expected one rate-limited credential, got %+v", stats)
	}
}

func TestClientRetryExhaustion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		want     error
		attempts int32
	}{
		{"server errors", http.StatusBadGateway, "", ErrNetworkError, 3},
		{"not found is not retried", http.StatusNotFound, "", ErrUnexpectedStatus, 1},
		{"suspended account", http.StatusOK, `{"errors":[{"code":63}]}`, ErrNodeUnavailable, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, _ := newTestClient(t, srv, 2)
			_, err := client.FetchFollowingPage(context.Background(), "42", "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %T", err)
			}
			if fe.Subject != "42" || fe.Op != "Following" {
				t.Errorf("unexpected error fields: %+v", fe)
			}
			if got := calls.Load(); got != tt.attempts {
				t.Errorf("expected %d requests, got %d", tt.attempts, got)
			}
		})
	}
}

func TestClientRateLimitedExhaustion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Reset in the past so the credential is usable again immediately.
		w.Header().Set(headerReset, strconv.FormatInt(time.Now().Add(-time.Second).Unix(), 10))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv, 1)
	_, err := client.FetchFollowingPage(context.Background(), "42", "")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestClientAuthFailures(t *testing.T) {
	t.Parallel()

	unauthorized := func() *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
	}

	t.Run("single credential exhausts auth", func(t *testing.T) {
		t.Parallel()
		srv := unauthorized()
		defer srv.Close()

		client, creds := newTestClient(t, srv, 1)
		_, err := client.FetchFollowingPage(context.Background(), "42", "")
		if !errors.Is(err, ErrAuthExhausted) {
			t.Fatalf("expected ErrAuthExhausted, got %v", err)
		}
		if !IsFatal(err) {
			t.Error("auth exhaustion must be fatal")
		}
		if creds.Stats().Banned != 1 {
			t.Error("credential should be banned")
		}
	})

	t.Run("second auth failure banning the last credential is fatal", func(t *testing.T) {
		t.Parallel()
		srv := unauthorized()
		defer srv.Close()

		client, creds := newTestClient(t, srv, 2)
		_, err := client.FetchFollowingPage(context.Background(), "42", "")
		if !errors.Is(err, ErrAuthExhausted) {
			t.Fatalf("expected ErrAuthExhausted, got %v", err)
		}
		if errors.Is(err, ErrAuthFailed) {
			t.Error("exhaustion must not be reported as a node-level auth failure")
		}
		if !IsFatal(err) {
			t.Error("auth exhaustion must be fatal")
		}
		if stats := creds.Stats(); stats.Banned != 2 || stats.Available != 0 {
			t.Errorf("expected both credentials banned, got %+v", stats)
		}
	})

	t.Run("second auth failure ends the fetch", func(t *testing.T) {
		t.Parallel()
		srv := unauthorized()
		defer srv.Close()

		client, creds := newTestClient(t, srv, 3)
		_, err := client.FetchFollowingPage(context.Background(), "42", "")
		if !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if IsFatal(err) {
			t.Error("a node-level auth failure must not be fatal while credentials remain")
		}
		if stats := creds.Stats(); stats.Banned != 2 || stats.Available != 1 {
			t.Errorf("expected two banned credentials, got %+v", stats)
		}
	})
}

func TestClientContextCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.FetchFollowingPage(ctx, "42", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClientIterateFollowing(t *testing.T) {
	t.Parallel()

	pages := map[string][]byte{
		"":    followingBody([]string{"1", "2"}, "1|a"),
		"1|a": followingBody([]string{"3", "4"}, "1|b"),
		"1|b": unavailableBody("1|c"),
		"1|c": followingBody([]string{"5"}, "0|end"),
	}
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var vars map[string]any
		_ = json.Unmarshal([]byte(r.URL.Query().Get("variables")), &vars)
		cursor, _ := vars["cursor"].(string)
		body, ok := pages[cursor]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	t.Run("all pages", func(t *testing.T) {
		client, _ := newTestClient(t, srv, 1)
		it := client.IterateFollowing(context.Background(), "42", 0)
		var ids []string
		for it.Next() {
			ids = append(ids, it.Target().ID)
		}
		if err := it.Err(); err != nil {
			t.Fatal(err)
		}
		if strings.Join(ids, ",") != "1,2,3,4,5" {
			t.Errorf("unexpected ids: %v", ids)
		}
		if it.Pages() != 4 {
			t.Errorf("expected 4 pages, got %d", it.Pages())
		}
		if it.Next() {
			t.Error("iterator must not restart")
		}
	})

	t.Run("max results stops fetching", func(t *testing.T) {
		client, _ := newTestClient(t, srv, 1)
		it := client.IterateFollowing(context.Background(), "42", 3)
		var n int
		for it.Next() {
			n++
		}
		if n != 3 {
			t.Errorf("expected 3 results, got %d", n)
		}
		if it.Pages() != 2 {
			t.Errorf("expected 2 pages for 3 results, got %d", it.Pages())
		}
	})
}

func TestClientLookupUser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/UserByScreenName") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("fieldToggles") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"user":{"result":{"__typename":"User","rest_id":"99","legacy":{"screen_name":"gopher","followers_count":1200}}}}}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv, 1)
	node, err := client.LookupUser(context.Background(), "gopher")
	if err != nil {
		t.Fatal(err)
	}
	if node.ID != "99" || node.Handle != "gopher" || node.FollowersCount != 1200 {
		t.Errorf("unexpected node: %+v", node)
	}
}
