package devstore

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/stats"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return New("Shakthi", "Shynu", nil)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestMatchesApplyAndReverse(t *testing.T) {
	s := newTestServer(t)
	e := match.Entry{MatchDate: "2025-03-01T20:00", Result: match.Win, P1: match.Goals{Normal: 3}, P2: match.Goals{Normal: 1}}

	rec := do(t, s, http.MethodPost, "/api/matches", e)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /matches = %d %s", rec.Code, rec.Body.String())
	}
	var pair stats.Pair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pair.P1.Name != "Shakthi" || pair.P1.Stats.Wins != 1 || pair.P1.Stats.TotalGoals != 3 || pair.P1.ConcededMatches != 1 {
		t.Fatalf("unexpected P1 %+v", pair.P1)
	}
	if pair.P2.Stats.Losses != 1 || pair.P2.Stats.TotalGoals != 1 || pair.P2.ConcededMatches != 1 {
		t.Fatalf("unexpected P2 %+v", pair.P2)
	}

	rec = do(t, s, http.MethodPost, "/api/matches/reverse", e)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /matches/reverse = %d", rec.Code)
	}
	if !s.Snapshot().Equal(stats.Baseline("Shakthi", "Shynu")) {
		t.Fatalf("reverse must restore the zero pair, got %+v", s.Snapshot())
	}
}

func TestRejectsInvalidResult(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/matches", map[string]any{"result": "forfeit"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPutPlayerValidatesInvariant(t *testing.T) {
	s := newTestServer(t)
	bad := stats.Aggregate{Stats: stats.Stats{TotalMatches: 2, Wins: 1}}
	if rec := do(t, s, http.MethodPut, "/api/players/Shynu", bad); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	good := stats.Aggregate{Stats: stats.Stats{TotalMatches: 2, Wins: 1, Draws: 1, TotalGoals: 4}}
	rec := do(t, s, http.MethodPut, "/api/players/Shynu", good)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := s.Snapshot().P2; got.Stats != good.Stats || got.Name != "Shynu" {
		t.Fatalf("stored %+v", got)
	}
}

func TestUnknownPlayerIs404(t *testing.T) {
	s := newTestServer(t)
	if rec := do(t, s, http.MethodGet, "/api/players/Nobody", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/matches", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("missing allow-origin header")
	}
}
