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
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

func dialFeed(t *testing.T, s *testServer, matchId string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/ws?matchId=" + matchId
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	if err == nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestLiveFeed(t *testing.T) {
	s := newTestServer(t)
	view := s.createMatch(t, ownerEmail)

	conn, _, err := dialFeed(t, s, view.ID, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.Type != MsgTypeView || msg.View == nil || msg.View.Status != scoring.StatusSetup {
		t.Fatalf("first message = %+v", msg)
	}

	status, _ := s.act(t, view.ID, "toss", ownerEmail, TossPayload{Winner: "A", Decision: scoring.DecisionBowl})
	if status != http.StatusOK {
		t.Fatalf("toss status = %d", status)
	}
	msg = readMessage(t, conn)
	if msg.Type != MsgTypeView || msg.View.Status != scoring.StatusLive {
		t.Fatalf("after toss = %+v", msg)
	}
	if got := msg.View.Innings[0].BattingTeam; got != "B" {
		t.Errorf("batting first = %s, want B", got)
	}
	var events []scoring.EventType
	for range 2 {
		msg = readMessage(t, conn)
		if msg.Type != MsgTypeEvent || msg.Event == nil {
			t.Fatalf("expected an event, got %+v", msg)
		}
		events = append(events, msg.Event.Type)
	}
	if events[0] != scoring.EventTossRecorded || events[1] != scoring.EventInningsStarted {
		t.Errorf("events = %v", events)
	}

	if err := conn.WriteJSON(Message{Type: MsgTypePing}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg = readMessage(t, conn); msg.Type != MsgTypePong {
		t.Errorf("reply to ping = %+v", msg)
	}

	status, _, _ = s.do(t, "DELETE", "/api/matches/"+view.ID, ownerEmail, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete status = %d", status)
	}
	if msg = readMessage(t, conn); msg.Type != MsgTypeDeleted {
		t.Errorf("after delete = %+v", msg)
	}
}

func TestLiveFeedUnknownMatch(t *testing.T) {
	s := newTestServer(t)
	conn, _, err := dialFeed(t, s, uuid.NewString(), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != MsgTypeError {
		t.Errorf("join of unknown match = %+v", msg)
	}
}

func TestLiveFeedRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	status, _, _ := s.do(t, "GET", "/api/ws?matchId=nope", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("invalid matchId status = %d", status)
	}

	view := s.createMatch(t, ownerEmail)
	_, resp, err := dialFeed(t, s, view.ID, http.Header{"Origin": {"https://elsewhere.example"}})
	if err == nil {
		t.Fatal("cross-origin upgrade succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-origin response = %+v", resp)
	}
}
