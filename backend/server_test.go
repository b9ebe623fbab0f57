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
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

func TestMatchLifecycle(t *testing.T) {
	s := newTestServer(t)
	view := s.createMatch(t, ownerEmail, scorerEmail)
	if view.Status != scoring.StatusSetup || view.OversCap != 1 {
		t.Fatalf("created view = %+v", view)
	}
	base := "/api/matches/" + view.ID

	status, data, hdr := s.do(t, "GET", base, "", nil)
	if status != http.StatusOK {
		t.Fatalf("public GET status = %d", status)
	}
	etag := hdr.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	if got := decodeJSON[scoring.MatchView](t, data); got.ID != view.ID {
		t.Errorf("GET returned match %s", got.ID)
	}
	if status, _, _ = s.do(t, "GET", base, "", nil, "If-None-Match", etag); status != http.StatusNotModified {
		t.Errorf("conditional GET status = %d", status)
	}

	// Only the owner and listed scorers may score.
	toss := TossPayload{Winner: "A", Decision: scoring.DecisionBat}
	if status, _ = s.act(t, view.ID, "toss", "", toss); status != http.StatusForbidden {
		t.Errorf("anonymous toss status = %d", status)
	}
	if status, _ = s.act(t, view.ID, "toss", otherEmail, toss); status != http.StatusForbidden {
		t.Errorf("stranger toss status = %d", status)
	}
	status, resp := s.act(t, view.ID, "toss", scorerEmail, toss)
	if status != http.StatusOK || !resp.Applied {
		t.Fatalf("scorer toss = %d %+v", status, resp)
	}

	status, resp = s.act(t, view.ID, "players", scorerEmail, scoring.Selection{Striker: "a1", NonStriker: "a2", Bowler: "b1"})
	if status != http.StatusOK || resp.View.Innings[0].Crease.Bowler != "b1" {
		t.Fatalf("players = %d %+v", status, resp)
	}
	status, resp = s.act(t, view.ID, "deliveries", scorerEmail, scoring.DeliveryInput{RunsBatter: 1})
	if status != http.StatusOK {
		t.Fatalf("delivery status = %d", status)
	}
	if c := resp.View.Innings[0].Crease; c.Striker != "a2" || c.NonStriker != "a1" {
		t.Errorf("single did not rotate strike: %+v", c)
	}
	status, resp = s.act(t, view.ID, "deliveries", ownerEmail, scoring.DeliveryInput{
		IsWicket: true, WicketType: scoring.WicketCaught, PlayerOut: "a2", Catcher: "b2",
	})
	if status != http.StatusOK || !hasEventType(resp.Events, scoring.EventWicket) {
		t.Fatalf("wicket = %d %+v", status, resp)
	}
	inn := resp.View.Innings[0]
	if inn.Totals.Runs != 1 || inn.Totals.Wickets != 1 || inn.Totals.Overs != "0.2" {
		t.Errorf("totals = %+v", inn.Totals)
	}
	if len(inn.FallOfWickets) != 1 || inn.FallOfWickets[0].Over != "0.2" {
		t.Errorf("fall of wickets = %+v", inn.FallOfWickets)
	}

	status, resp = s.act(t, view.ID, "undo", ownerEmail, nil)
	if status != http.StatusOK || resp.View.Innings[0].Totals.Wickets != 0 {
		t.Errorf("undo = %d %+v", status, resp.View.Innings[0].Totals)
	}

	status, data, _ = s.do(t, "GET", base, "", nil, "If-None-Match", etag)
	if status != http.StatusOK {
		t.Errorf("stale ETag status = %d", status)
	}
	if got := decodeJSON[scoring.MatchView](t, data); len(got.Innings[0].RecentBalls) != 1 {
		t.Errorf("recent balls = %v", got.Innings[0].RecentBalls)
	}
}

func TestActionErrors(t *testing.T) {
	s := newTestServer(t)
	view := s.createMatch(t, ownerEmail)
	base := "/api/matches/" + view.ID

	tests := []struct {
		name     string
		endpoint string
		body     any
		want     int
		code     string
	}{
		{"malformed json", "toss", "{", http.StatusBadRequest, ""},
		{"delivery before toss", "deliveries", scoring.DeliveryInput{}, http.StatusConflict, scoring.CodeMatchNotLive},
		{"unknown toss winner", "toss", TossPayload{Winner: "Z", Decision: scoring.DecisionBat}, http.StatusUnprocessableEntity, scoring.CodeUnknownTeam},
		{"toss without winner", "toss", TossPayload{Decision: scoring.DecisionBat}, http.StatusBadRequest, ""},
		{"undo empty log", "undo", nil, http.StatusConflict, scoring.CodeEmptyLog},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, data, _ := s.do(t, "POST", base+"/"+tc.endpoint, ownerEmail, tc.body)
			if status != tc.want {
				t.Fatalf("status = %d, want %d: %s", status, tc.want, data)
			}
			if tc.code != "" {
				if got := decodeJSON[errorResponse](t, data); got.Code != tc.code {
					t.Errorf("code = %q, want %q", got.Code, tc.code)
				}
			}
		})
	}

	s.act(t, view.ID, "toss", ownerEmail, TossPayload{Winner: "A", Decision: scoring.DecisionBat})
	s.act(t, view.ID, "players", ownerEmail, scoring.Selection{Striker: "a1", NonStriker: "a2", Bowler: "b1"})

	status, data, _ := s.do(t, "POST", base+"/deliveries", ownerEmail, scoring.DeliveryInput{ExtraType: "DEAD_BALL"})
	if status != http.StatusBadRequest {
		t.Errorf("bad extra type status = %d: %s", status, data)
	}
	if got := decodeJSON[errorResponse](t, data); got.Kind != "validation" {
		t.Errorf("kind = %q", got.Kind)
	}
	if status, _, _ = s.do(t, "POST", base+"/declare", ownerEmail, nil); status != http.StatusConflict {
		t.Errorf("T20 declare status = %d", status)
	}
	if status, _, _ = s.do(t, "POST", base+"/players", ownerEmail, scoring.Selection{Bowler: "a3"}); status != http.StatusUnprocessableEntity {
		t.Errorf("batting side bowler status = %d", status)
	}

	missing := "/api/matches/" + uuid.NewString()
	if status, _, _ = s.do(t, "GET", missing, "", nil); status != http.StatusNotFound {
		t.Errorf("unknown match GET status = %d", status)
	}
	if status, _, _ = s.do(t, "POST", missing+"/undo", ownerEmail, nil); status != http.StatusNotFound {
		t.Errorf("unknown match action status = %d", status)
	}
	if status, _, _ = s.do(t, "GET", "/api/matches/not-a-uuid", "", nil); status != http.StatusBadRequest {
		t.Errorf("invalid id status = %d", status)
	}
}

func TestIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	view := s.createMatch(t, ownerEmail)
	s.act(t, view.ID, "toss", ownerEmail, TossPayload{Winner: "B", Decision: scoring.DecisionBat})
	s.act(t, view.ID, "players", ownerEmail, scoring.Selection{Striker: "b1", NonStriker: "b2", Bowler: "a1"})

	key := uuid.NewString()
	for i, wantApplied := range []bool{true, false} {
		status, resp := s.act(t, view.ID, "deliveries", ownerEmail, scoring.DeliveryInput{RunsBatter: 4}, "Idempotency-Key", key)
		if status != http.StatusOK {
			t.Fatalf("attempt %d status = %d", i, status)
		}
		if resp.Applied != wantApplied {
			t.Errorf("attempt %d applied = %v", i, resp.Applied)
		}
		if got := resp.View.Innings[0].Totals.Runs; got != 4 {
			t.Errorf("attempt %d runs = %d", i, got)
		}
	}

	status, _, _ := s.do(t, "POST", "/api/matches/"+view.ID+"/deliveries", ownerEmail, scoring.DeliveryInput{}, "Idempotency-Key", "retry-1")
	if status != http.StatusBadRequest {
		t.Errorf("non-uuid key status = %d", status)
	}
}

func TestListMatches(t *testing.T) {
	s := newTestServer(t)
	first := s.createMatch(t, ownerEmail)
	second := s.createMatch(t, otherEmail)
	s.act(t, second.ID, "toss", otherEmail, TossPayload{Winner: "A", Decision: scoring.DecisionBat})

	list := func(query string) matchListResponse {
		t.Helper()
		status, data, _ := s.do(t, "GET", "/api/matches"+query, "", nil)
		if status != http.StatusOK {
			t.Fatalf("list%s status = %d", query, status)
		}
		return decodeJSON[matchListResponse](t, data)
	}

	all := list("")
	if all.Meta.Total != 2 || len(all.Data) != 2 {
		t.Fatalf("list = %+v", all.Meta)
	}
	live := list("?status=LIVE")
	if len(live.Data) != 1 || live.Data[0].ID != second.ID {
		t.Errorf("status=LIVE = %+v", live.Data)
	}
	setup := list("?q=status:setup")
	if len(setup.Data) != 1 || setup.Data[0].ID != first.ID {
		t.Errorf("q=status:setup = %+v", setup.Data)
	}
	owned := list("?q=owner:" + otherEmail)
	if len(owned.Data) != 1 || owned.Data[0].ID != second.ID {
		t.Errorf("q=owner = %+v", owned.Data)
	}
	if got := list("?q=%22team+b%22"); got.Meta.Total != 2 {
		t.Errorf("free text = %+v", got.Meta)
	}
	if got := list("?q=nobody"); got.Meta.Total != 0 || got.Data == nil {
		t.Errorf("no match = %+v", got)
	}
	page := list("?limit=1&offset=1")
	if len(page.Data) != 1 || page.Meta.Limit != 1 || page.Meta.Offset != 1 {
		t.Errorf("page = %+v", page)
	}

	if status, _, _ := s.do(t, "DELETE", "/api/matches/"+first.ID, otherEmail, nil); status != http.StatusForbidden {
		t.Errorf("stranger delete status = %d", status)
	}
	if status, _, _ := s.do(t, "DELETE", "/api/matches/"+first.ID, ownerEmail, nil); status != http.StatusNoContent {
		t.Errorf("owner delete status = %d", status)
	}
	if got := list(""); got.Meta.Total != 1 {
		t.Errorf("after delete = %+v", got.Meta)
	}
	if status, _, _ := s.do(t, "GET", "/api/matches/"+first.ID, "", nil); status != http.StatusNotFound {
		t.Errorf("deleted match GET status = %d", status)
	}
}

func TestSavedTeams(t *testing.T) {
	s := newTestServer(t)

	saveTeam := func(user, prefix string) StoredTeam {
		t.Helper()
		req := TeamRequest{Team: testRoster("", prefix), ShortName: strings.ToUpper(prefix)}
		req.Roles.Scorekeepers = []string{scorerEmail}
		status, data, _ := s.do(t, "POST", "/api/teams", user, req)
		if status != http.StatusCreated {
			t.Fatalf("save team status = %d: %s", status, data)
		}
		return decodeJSON[StoredTeam](t, data)
	}
	home := saveTeam(ownerEmail, "h")
	away := saveTeam(ownerEmail, "v")

	status, data, _ := s.do(t, "GET", "/api/teams/"+home.ID, ownerEmail, nil)
	if status != http.StatusOK || decodeJSON[StoredTeam](t, data).Name != "Team h" {
		t.Errorf("GET team = %d %s", status, data)
	}
	if status, _, _ = s.do(t, "GET", "/api/teams/"+home.ID, otherEmail, nil); status != http.StatusForbidden {
		t.Errorf("stranger GET team status = %d", status)
	}

	// Updating needs admin rights on the team.
	update := TeamRequest{Team: home.Team, Roles: home.Roles}
	update.Name = "Renamed"
	if status, _, _ = s.do(t, "POST", "/api/teams", scorerEmail, update); status != http.StatusForbidden {
		t.Errorf("scorekeeper update status = %d", status)
	}
	if status, _, _ = s.do(t, "POST", "/api/teams", ownerEmail, update); status != http.StatusOK {
		t.Errorf("owner update status = %d", status)
	}

	status, data, _ = s.do(t, "POST", "/api/matches", ownerEmail, CreateMatchRequest{
		Format:  scoring.FormatTest,
		TeamAID: home.ID,
		TeamBID: away.ID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create from saved teams status = %d: %s", status, data)
	}
	view := decodeJSON[scoring.MatchView](t, data)
	if view.TeamA.Name != "Renamed" || view.OversCap != 0 {
		t.Errorf("match from saved teams = %+v", view)
	}

	// The team's scorekeepers can score its matches.
	status, _ = s.act(t, view.ID, "toss", scorerEmail, TossPayload{Winner: home.ID, Decision: scoring.DecisionBat})
	if status != http.StatusOK {
		t.Errorf("team scorekeeper toss status = %d", status)
	}

	if status, _, _ = s.do(t, "POST", "/api/matches", otherEmail, CreateMatchRequest{
		Format: scoring.FormatT20, TeamAID: home.ID, TeamBID: away.ID,
	}); status != http.StatusForbidden {
		t.Errorf("stranger using saved teams status = %d", status)
	}

	if status, _, _ = s.do(t, "DELETE", "/api/teams/"+away.ID, ownerEmail, nil); status != http.StatusNoContent {
		t.Errorf("delete team status = %d", status)
	}
	if status, _, _ = s.do(t, "GET", "/api/teams/"+away.ID, ownerEmail, nil); status != http.StatusNotFound {
		t.Errorf("deleted team GET status = %d", status)
	}
	// The match keeps its own copy of the roster.
	if status, _, _ = s.do(t, "GET", "/api/matches/"+view.ID, "", nil); status != http.StatusOK {
		t.Errorf("match after team delete status = %d", status)
	}
}

func TestCreateMatchErrors(t *testing.T) {
	s := newTestServer(t)
	a, b := testRoster("A", "a"), testRoster("B", "b")

	if status, _, _ := s.do(t, "POST", "/api/matches", "", CreateMatchRequest{Format: scoring.FormatT20, TeamA: &a, TeamB: &b}); status != http.StatusForbidden {
		t.Errorf("anonymous create status = %d", status)
	}
	if status, _, _ := s.do(t, "POST", "/api/matches", ownerEmail, "not json"); status != http.StatusBadRequest {
		t.Errorf("malformed create status = %d", status)
	}
	same := testRoster("A", "x")
	if status, _, _ := s.do(t, "POST", "/api/matches", ownerEmail, CreateMatchRequest{Format: scoring.FormatT20, TeamA: &a, TeamB: &same}); status != http.StatusBadRequest {
		t.Errorf("same team ids status = %d", status)
	}
	short := scoring.Team{ID: "C", Name: "Short", Players: []scoring.Player{{ID: "c1", Name: "Solo"}}}
	if status, _, _ := s.do(t, "POST", "/api/matches", ownerEmail, CreateMatchRequest{Format: scoring.FormatT20, TeamA: &a, TeamB: &short}); status != http.StatusBadRequest {
		t.Errorf("one-player team status = %d", status)
	}

	id := uuid.NewString()
	req := CreateMatchRequest{ID: id, Format: scoring.FormatT20, TeamA: &a, TeamB: &b}
	if status, _, _ := s.do(t, "POST", "/api/matches", ownerEmail, req); status != http.StatusCreated {
		t.Fatalf("create status = %d", status)
	}
	if status, _, _ := s.do(t, "POST", "/api/matches", ownerEmail, req); status != http.StatusConflict {
		t.Errorf("duplicate create status = %d", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	view := s.createMatch(t, ownerEmail)
	s.act(t, view.ID, "toss", ownerEmail, TossPayload{Winner: "A", Decision: scoring.DecisionBat})
	s.act(t, view.ID, "undo", ownerEmail, nil)

	status, data, _ := s.do(t, "GET", "/metrics", "", nil)
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	body := string(data)
	for _, want := range []string{
		`wicketkeeper_actions_total{result="accepted",type="TOSS"} 1`,
		`wicketkeeper_rejections_total{code="empty-log",kind="state"} 1`,
		`wicketkeeper_events_total{type="TOSS_RECORDED"} 1`,
		"wicketkeeper_active_hubs 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
