package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/aamritt0/calendar-backend/internal/feed"
)

type stubService struct {
	result *feed.Result
	err    error
	status feed.Status

	gotKeyword string
	gotLimit   int
}

func (s *stubService) Query(ctx context.Context, keyword string, limit int) (*feed.Result, error) {
	s.gotKeyword = keyword
	s.gotLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubService) Status() feed.Status {
	return s.status
}

func serve(t *testing.T, svc EventService, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	NewHandler(svc).Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestGetEvents_Success(t *testing.T) {
	svc := &stubService{result: &feed.Result{
		Count:   1,
		Keyword: "math",
		Events:  []feed.FormattedEvent{{Summary: "Math Exam", Start: "2099-06-15T09:00:00Z", IsAllDay: true}},
	}}

	rec := serve(t, svc, http.MethodGet, "/api/events?keyword=math&limit=5")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotKeyword != "math" || svc.gotLimit != 5 {
		t.Errorf("params not forwarded: keyword=%q limit=%d", svc.gotKeyword, svc.gotLimit)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("missing CORS header, got %q", got)
	}

	var body feed.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Count != 1 || body.Events[0].Summary != "Math Exam" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestGetEvents_EndSerializesAsNull(t *testing.T) {
	svc := &stubService{result: &feed.Result{
		Count:  1,
		Events: []feed.FormattedEvent{{Summary: "Open ended", Start: "2099-06-15T09:00:00Z"}},
	}}

	rec := serve(t, svc, http.MethodGet, "/api/events")

	var body struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	end, present := body.Events[0]["end"]
	if !present || end != nil {
		t.Errorf("end must be an explicit null, got %v (present=%v)", end, present)
	}
}

func TestGetEvents_InvalidLimit(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		rec := serve(t, &stubService{}, http.MethodGet, "/api/events?limit="+raw)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%q: expected 400, got %d", raw, rec.Code)
		}
	}
}

func TestGetEvents_SourceUnavailable(t *testing.T) {
	svc := &stubService{err: feed.ErrSourceUnavailable}

	rec := serve(t, svc, http.MethodGet, "/api/events")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Code != "source_unavailable" {
		t.Errorf("caller must be able to distinguish the failure, got code %q", body.Code)
	}
}

func TestGetEvents_InternalError(t *testing.T) {
	svc := &stubService{err: errors.New("boom")}

	rec := serve(t, svc, http.MethodGet, "/api/events")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Code != "internal" {
		t.Errorf("unexpected error code %q", body.Code)
	}
}

func TestGetEvents_Preflight(t *testing.T) {
	rec := serve(t, &stubService{}, http.MethodOptions, "/api/events")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight response must carry CORS method header")
	}
}

func TestGetHealth(t *testing.T) {
	healthy := &stubService{status: feed.Status{HasData: true, EventCount: 3, Tier: "fresh"}}
	if rec := serve(t, healthy, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for healthy cache, got %d", rec.Code)
	}

	failing := &stubService{status: feed.Status{Tier: "empty", LastError: "upstream down"}}
	if rec := serve(t, failing, http.MethodGet, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for empty cache with errors, got %d", rec.Code)
	}
}
