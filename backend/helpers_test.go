// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/google/uuid"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

const (
	ownerEmail  = "owner@example.com"
	scorerEmail = "scorer@example.com"
	otherEmail  = "other@example.com"
)

func newTestStores(t *testing.T) (string, *storage.Storage, *MatchStore, *TeamStore) {
	t.Helper()
	dir := t.TempDir()
	s := storage.New(dir, nil)
	return dir, s, NewMatchStore(dir, s), NewTeamStore(dir, s)
}

// testRoster returns a team of three players with ids like "a1".
func testRoster(id, prefix string) scoring.Team {
	team := scoring.Team{ID: id, Name: "Team " + prefix}
	for i := 1; i <= 3; i++ {
		team.Players = append(team.Players, scoring.Player{
			ID:        scoring.PlayerID(fmt.Sprintf("%s%d", prefix, i)),
			Name:      fmt.Sprintf("Player %s%d", prefix, i),
			IsCaptain: i == 1,
		})
	}
	return team
}

// newTestMatch returns a one-over T20 match between "A" and "B" in SETUP.
func newTestMatch(t *testing.T, owner string) *StoredMatch {
	t.Helper()
	overs := 1
	m, err := scoring.NewMatch(uuid.NewString(), scoring.FormatT20, &overs, false, testRoster("A", "a"), testRoster("B", "b"))
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	m.OwnerID = owner
	m.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sm := &StoredMatch{Match: *m, SchemaVersion: CurrentSchemaVersion}
	sm.normalize()
	return sm
}

var actionClock int64 = 1_700_000_000_000

func newAction(t *testing.T, typ string, payload any) Action {
	t.Helper()
	a := Action{ID: uuid.NewString(), Type: typ}
	actionClock++
	a.Timestamp = actionClock
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("json.Marshal: %v", err)
		}
		a.Payload = b
	}
	return a
}

// mustApply applies an action that is expected to succeed.
func mustApply(t *testing.T, sm *StoredMatch, a Action) []scoring.Event {
	t.Helper()
	if err := ValidateAction(a); err != nil {
		t.Fatalf("ValidateAction(%s): %v", a.Type, err)
	}
	changed, events, err := ApplyAction(sm, a)
	if err != nil {
		t.Fatalf("ApplyAction(%s): %v", a.Type, err)
	}
	if !changed {
		t.Fatalf("ApplyAction(%s) reported no change", a.Type)
	}
	return events
}

// startMatch records the toss for team A and puts a1, a2 and b1 on the field.
func startMatch(t *testing.T, sm *StoredMatch) {
	t.Helper()
	mustApply(t, sm, newAction(t, ActionToss, TossPayload{Winner: "A", Decision: scoring.DecisionBat}))
	mustApply(t, sm, newAction(t, ActionSelectPlayers, scoring.Selection{Striker: "a1", NonStriker: "a2", Bowler: "b1"}))
}

type testServer struct {
	*httptest.Server
	dir string
	s   *storage.Storage
	ms  *MatchStore
	ts  *TeamStore
	m   *Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir, s, ms, ts := newTestStores(t)
	metrics := NewMetrics()
	_, handler, err := NewServerHandler(Options{
		DataDir:     dir,
		Storage:     s,
		MatchStore:  ms,
		TeamStore:   ts,
		Metrics:     metrics,
		UseMockAuth: true,
	})
	if err != nil {
		t.Fatalf("NewServerHandler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, dir: dir, s: s, ms: ms, ts: ts, m: metrics}
}

// do sends a request as user (anonymous when empty) and returns the status
// and body. Extra headers are given as name, value pairs.
func (s *testServer) do(t *testing.T, method, path, user string, body any, headers ...string) (int, []byte, http.Header) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.AddCookie(&http.Cookie{Name: mockAuthCookie, Value: user})
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return resp.StatusCode, data, resp.Header
}

func decodeJSON[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", data, err)
	}
	return v
}

// createMatch creates a one-over T20 match owned by user and returns its view.
func (s *testServer) createMatch(t *testing.T, user string, scorers ...string) scoring.MatchView {
	t.Helper()
	a, b := testRoster("A", "a"), testRoster("B", "b")
	overs := 1
	status, data, _ := s.do(t, "POST", "/api/matches", user, CreateMatchRequest{
		Format:      scoring.FormatT20,
		CustomOvers: &overs,
		TeamA:       &a,
		TeamB:       &b,
		Scorers:     scorers,
	})
	if status != http.StatusCreated {
		t.Fatalf("create match: status %d: %s", status, data)
	}
	return decodeJSON[scoring.MatchView](t, data)
}

// act posts one scoring action and decodes the response when it succeeds.
func (s *testServer) act(t *testing.T, matchId, endpoint, user string, payload any, headers ...string) (int, actionResponse) {
	t.Helper()
	status, data, _ := s.do(t, "POST", "/api/matches/"+matchId+"/"+endpoint, user, payload, headers...)
	if status != http.StatusOK {
		return status, actionResponse{}
	}
	return status, decodeJSON[actionResponse](t, data)
}

func hasEventType(events []scoring.Event, typ scoring.EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}
