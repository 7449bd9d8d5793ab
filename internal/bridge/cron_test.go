package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"blitzbot/internal/period"
)

const testCronSecret = "cron-s3cret"

func newCronServer(t *testing.T, h *harness, channel string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewCron(CronConfig{
		Secret:     testCronSecret,
		Channel:    channel,
		Dispatcher: h.d,
	}).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func cronCall(t *testing.T, srv *httptest.Server, path, secret string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if secret != "" {
		req.Header.Set(CronSecretHeader, secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestCron_RejectsBadSecret(t *testing.T) {
	h := newHarness(t)
	srv := newCronServer(t, h, "C-REPORT")

	for _, path := range []string{"/cron/daily", "/cron/weekly", "/cron/archive"} {
		if code, _ := cronCall(t, srv, path, ""); code != http.StatusUnauthorized {
			t.Errorf("%s without secret: status %d, want 401", path, code)
		}
		if code, _ := cronCall(t, srv, path, "wrong"); code != http.StatusUnauthorized {
			t.Errorf("%s with wrong secret: status %d, want 401", path, code)
		}
	}
	if len(h.messenger.getPosts()) != 0 {
		t.Error("unauthorized calls must not post")
	}
	if parts, _ := h.store.Partitions(context.Background()); len(parts) != 0 {
		t.Error("unauthorized archive must not rotate")
	}
}

func TestCron_SecretInQuery(t *testing.T) {
	h := newHarness(t)
	srv := newCronServer(t, h, "C-REPORT")

	resp, err := http.Post(srv.URL+"/cron/weekly?secret="+testCronSecret, "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCron_Daily(t *testing.T) {
	h := newHarness(t)
	h.send("C1", "U1", "2g", clockAt(9, 0))
	h.send("C3", "U2", "1g", clockAt(9, 30))
	srv := newCronServer(t, h, "C-REPORT")

	code, body := cronCall(t, srv, "/cron/daily", testCronSecret)
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, body)
	}
	if body["status"] != "ok" || body["period"] != "Today" {
		t.Errorf("body = %v", body)
	}

	posts := h.messenger.getPosts()
	if len(posts) != 2 {
		t.Fatalf("expected master and teams posts, got %d", len(posts))
	}
	if posts[0].channel != "C-REPORT" || !strings.HasPrefix(posts[0].text, "*Master Leaderboard — Today*") {
		t.Errorf("first post = %+v", posts[0])
	}
	if !strings.HasPrefix(posts[1].text, "*Teams Leaderboard — Today*") {
		t.Errorf("second post = %+v", posts[1])
	}
}

func TestCron_WeeklyWithoutReportChannel(t *testing.T) {
	h := newHarness(t)
	srv := newCronServer(t, h, "")

	code, _ := cronCall(t, srv, "/cron/weekly", testCronSecret)
	if code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", code)
	}
}

func TestCron_ArchiveOncePerMonth(t *testing.T) {
	h := newHarness(t)
	h.now = time.Date(2026, time.September, 30, 18, 0, 0, 0, pacific)
	h.send("C1", "U1", "2g", time.Date(2026, time.September, 30, 17, 0, 0, 0, pacific))
	h.now = time.Date(2026, time.October, 1, 0, 5, 0, 0, pacific)
	srv := newCronServer(t, h, "C-REPORT")

	code, body := cronCall(t, srv, "/cron/archive", testCronSecret)
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, body)
	}
	if body["label"] != "2026-09" || body["rows"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	if got := h.messenger.lastPost(t).text; !strings.Contains(got, "Archived 1 deal rows for 2026-09") {
		t.Errorf("archive notice = %q", got)
	}
	if len(h.publisher.archived) != 1 {
		t.Errorf("expected ledger.archived to be published once, got %d", len(h.publisher.archived))
	}

	// Archived deals stay queryable.
	res := period.NewResolver(pacific, func() time.Time { return h.now })
	iv, err := res.Period(period.LastMonth)
	if err != nil {
		t.Fatal(err)
	}
	recs, err := h.store.Query(context.Background(), iv)
	if err != nil || len(recs) != 1 {
		t.Errorf("archived query = %d records, err %v", len(recs), err)
	}

	code, body = cronCall(t, srv, "/cron/archive", testCronSecret)
	if code != http.StatusConflict || body["status"] != "already_archived" {
		t.Errorf("second archive: status %d body %v, want 409 already_archived", code, body)
	}
}
