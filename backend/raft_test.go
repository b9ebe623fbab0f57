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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/hashicorp/raft"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// memSink is an in-memory raft.SnapshotSink.
type memSink struct {
	bytes.Buffer
	cancelled bool
}

func (s *memSink) ID() string    { return "mem" }
func (s *memSink) Cancel() error { s.cancelled = true; return nil }
func (s *memSink) Close() error  { return nil }

func newTestFSM(t *testing.T) (*FSM, *MatchStore, *TeamStore) {
	t.Helper()
	dir, _, ms, ts := newTestStores(t)
	raftDir := filepath.Join(dir, "raft")
	if err := os.MkdirAll(raftDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	return NewFSM(ms, ts, nil, storage.New(raftDir, nil), nil), ms, ts
}

func applyCommand(t *testing.T, f *FSM, index uint64, cmd RaftCommand) any {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return f.Apply(&raft.Log{Index: index, Data: data})
}

func TestFSMApply(t *testing.T) {
	f, ms, _ := newTestFSM(t)
	sm := newTestMatch(t, ownerEmail)

	if res := applyCommand(t, f, 1, RaftCommand{Type: CmdSaveMatch, ID: sm.ID, Match: sm}); res != nil {
		t.Fatalf("save match = %v", res)
	}
	toss := newAction(t, ActionToss, TossPayload{Winner: "A", Decision: scoring.DecisionBat})
	res := applyCommand(t, f, 2, RaftCommand{Type: CmdApplyAction, ID: sm.ID, Action: &toss, UserID: ownerEmail})
	ar, ok := res.(*ApplyResult)
	if !ok || !ar.Changed || !hasEventType(ar.Events, scoring.EventTossRecorded) {
		t.Fatalf("toss = %#v", res)
	}

	// Entries at or below the match's index are not applied again.
	undo := newAction(t, ActionUndo, nil)
	res = applyCommand(t, f, 2, RaftCommand{Type: CmdApplyAction, ID: sm.ID, Action: &undo})
	if ar, ok := res.(*ApplyResult); !ok || ar.Changed {
		t.Errorf("replayed entry = %#v", res)
	}

	// Rejections come back as errors and leave the match alone.
	res = applyCommand(t, f, 3, RaftCommand{Type: CmdApplyAction, ID: sm.ID, Action: &undo})
	if err, ok := res.(error); !ok || scoring.CodeOf(err) != scoring.CodeEmptyLog {
		t.Errorf("undo on empty log = %#v", res)
	}
	if res := applyCommand(t, f, 4, RaftCommand{Type: CmdSaveMatch, ID: sm.ID, Match: sm}); !errors.Is(res.(error), ErrExists) {
		t.Errorf("second save = %v", res)
	}

	stored, err := ms.LoadMatch(sm.ID)
	if err != nil {
		t.Fatalf("LoadMatch: %v", err)
	}
	if stored.LastRaftIndex != 2 || stored.Status != scoring.StatusLive {
		t.Errorf("stored match at index %d, status %s", stored.LastRaftIndex, stored.Status)
	}
	if f.LastAppliedIndex() != 4 {
		t.Errorf("LastAppliedIndex = %d", f.LastAppliedIndex())
	}

	if res := applyCommand(t, f, 5, RaftCommand{Type: CmdDeleteMatch, ID: sm.ID}); res != nil {
		t.Fatalf("delete = %v", res)
	}
	missing := newAction(t, ActionUndo, nil)
	res = applyCommand(t, f, 6, RaftCommand{Type: CmdApplyAction, ID: sm.ID, Action: &missing})
	if err, ok := res.(error); !ok || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("action on deleted match = %#v", res)
	}

	if res := f.Apply(&raft.Log{Index: 7, Data: []byte("{")}); res == nil {
		t.Error("undecodable entry was accepted")
	}
}

func TestFSMSnapshotRestore(t *testing.T) {
	f, _, _ := newTestFSM(t)
	sm := newTestMatch(t, ownerEmail)
	applyCommand(t, f, 1, RaftCommand{Type: CmdSaveMatch, ID: sm.ID, Match: sm})
	toss := newAction(t, ActionToss, TossPayload{Winner: "B", Decision: scoring.DecisionBowl})
	applyCommand(t, f, 2, RaftCommand{Type: CmdApplyAction, ID: sm.ID, Action: &toss})
	team := &StoredTeam{Team: testRoster("11111111-2222-3333-4444-555555555555", "t"), OwnerID: ownerEmail}
	applyCommand(t, f, 3, RaftCommand{Type: CmdSaveTeam, ID: team.ID, Team: team})
	applyCommand(t, f, 4, RaftCommand{Type: CmdNodeMeta, NodeMeta: &NodeMeta{NodeID: "n1", HttpAddr: "10.0.0.1:8080"}})

	snap, err := f.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	sink := &memSink{}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	// The target holds a match the snapshot does not know about.
	g, ms2, ts2 := newTestFSM(t)
	stray := newTestMatch(t, otherEmail)
	applyCommand(t, g, 1, RaftCommand{Type: CmdSaveMatch, ID: stray.ID, Match: stray})

	if err := g.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored, err := ms2.LoadMatch(sm.ID)
	if err != nil {
		t.Fatalf("LoadMatch: %v", err)
	}
	if restored.Status != scoring.StatusLive || restored.CurrentInnings().BattingTeam != "A" {
		t.Errorf("restored match = %s, batting %s", restored.Status, restored.CurrentInnings().BattingTeam)
	}
	if _, err := ms2.LoadMatch(stray.ID); !os.IsNotExist(err) {
		t.Errorf("stray match survived restore: %v", err)
	}
	if _, err := ts2.LoadTeam(team.ID); err != nil {
		t.Errorf("LoadTeam: %v", err)
	}
	if got := g.GetNodeAddr("n1"); got != "10.0.0.1:8080" {
		t.Errorf("GetNodeAddr = %q", got)
	}
	if g.LastAppliedIndex() != 4 {
		t.Errorf("LastAppliedIndex = %d", g.LastAppliedIndex())
	}
}

func TestSingleNodeRaft(t *testing.T) {
	dir := t.TempDir()
	s := storage.New(dir, nil)
	rmCh := make(chan *RaftManager, 1)
	rm, handler, err := NewServerHandler(Options{
		DataDir:         dir,
		Storage:         s,
		UseMockAuth:     true,
		RaftEnabled:     true,
		RaftBind:        "127.0.0.1:0",
		RaftBootstrap:   true,
		RaftSecret:      "test-secret",
		RaftManagerChan: rmCh,
	})
	if err != nil {
		t.Fatalf("NewServerHandler: %v", err)
	}
	if got := <-rmCh; got != rm {
		t.Fatal("RaftManagerChan delivered a different manager")
	}
	t.Cleanup(func() { rm.Shutdown() })
	if err := rm.waitForLeader(10 * time.Second); err != nil {
		t.Fatalf("waitForLeader: %v", err)
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ts := &testServer{Server: srv, dir: dir, s: s}

	view := ts.createMatch(t, ownerEmail)
	status, resp := ts.act(t, view.ID, "toss", ownerEmail, TossPayload{Winner: "A", Decision: scoring.DecisionBat})
	if status != http.StatusOK || !resp.Applied || resp.View.Status != scoring.StatusLive {
		t.Fatalf("toss = %d %+v", status, resp)
	}
	ts.act(t, view.ID, "players", ownerEmail, scoring.Selection{Striker: "a1", NonStriker: "a2", Bowler: "b1"})
	status, resp = ts.act(t, view.ID, "deliveries", ownerEmail, scoring.DeliveryInput{RunsBatter: 6})
	if status != http.StatusOK || resp.View.Innings[0].Totals.Runs != 6 {
		t.Fatalf("delivery = %d %+v", status, resp.View.Innings)
	}
	if status, _ := ts.act(t, view.ID, "declare", ownerEmail, nil); status != http.StatusConflict {
		t.Errorf("T20 declare status = %d", status)
	}

	stored, err := rm.FSM.ms.LoadMatch(view.ID)
	if err != nil {
		t.Fatalf("LoadMatch: %v", err)
	}
	if stored.LastRaftIndex == 0 {
		t.Error("match was not written through the raft log")
	}

	status, data, _ := ts.do(t, "GET", "/api/cluster/status", "", nil)
	if status != http.StatusForbidden {
		t.Errorf("status without secret = %d", status)
	}
	status, data, _ = ts.do(t, "GET", "/api/cluster/status", "", nil, "X-Raft-Secret", "test-secret")
	if status != http.StatusOK {
		t.Fatalf("cluster status = %d: %s", status, data)
	}
	st := decodeJSON[map[string]any](t, data)
	if st["state"] != "Leader" || st["nodeId"] != rm.NodeID {
		t.Errorf("cluster status = %v", st)
	}
}
