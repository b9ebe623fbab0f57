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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/c2FmZQ/storage"
	"github.com/hashicorp/raft"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// ApplyResult is what the FSM returns to the proposer of an action.
type ApplyResult struct {
	Changed bool
	Events  []scoring.Event
}

// FSM implements the raft.FSM interface over the match and team stores.
type FSM struct {
	ms      *MatchStore
	ts      *TeamStore
	hm      *HubManager
	storage *storage.Storage
	metrics *Metrics

	nodeMap          sync.Map // map[string]*NodeMeta
	lastAppliedIndex atomic.Uint64
}

// NewFSM creates a new FSM. hm, s and metrics may be nil.
func NewFSM(ms *MatchStore, ts *TeamStore, hm *HubManager, s *storage.Storage, metrics *Metrics) *FSM {
	f := &FSM{
		ms:      ms,
		ts:      ts,
		hm:      hm,
		storage: s,
		metrics: metrics,
	}
	f.loadNodes()
	return f
}

// LastAppliedIndex returns the index of the last applied log entry.
func (f *FSM) LastAppliedIndex() uint64 {
	return f.lastAppliedIndex.Load()
}

func (f *FSM) loadNodes() {
	if f.storage == nil {
		return
	}
	var nodes map[string]*NodeMeta
	if err := f.storage.ReadDataFile("nodes.json", &nodes); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("FSM Error: failed to read nodes.json: %v", err)
		}
		return
	}
	for k, v := range nodes {
		f.nodeMap.Store(k, v)
	}
}

func (f *FSM) saveNodes() {
	if f.storage == nil {
		return
	}
	if err := f.storage.SaveDataFile("nodes.json", f.nodes()); err != nil {
		log.Printf("FSM Error: failed to save nodes.json: %v", err)
	}
}

func (f *FSM) nodes() map[string]*NodeMeta {
	nodes := make(map[string]*NodeMeta)
	f.nodeMap.Range(func(k, v any) bool {
		nodes[k.(string)] = v.(*NodeMeta)
		return true
	})
	return nodes
}

// GetNodeMeta returns what a node announced about itself, or nil.
func (f *FSM) GetNodeMeta(nodeID string) *NodeMeta {
	if val, ok := f.nodeMap.Load(nodeID); ok {
		return val.(*NodeMeta)
	}
	return nil
}

// GetNodeAddr returns the HTTP address of a node, or "".
func (f *FSM) GetNodeAddr(nodeID string) string {
	if meta := f.GetNodeMeta(nodeID); meta != nil {
		return meta.HttpAddr
	}
	return ""
}

// Apply applies a Raft log entry.
func (f *FSM) Apply(l *raft.Log) any {
	if len(l.Data) == 0 {
		return nil
	}
	var cmd RaftCommand
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		log.Printf("FSM Apply Error: failed to decode command: %v", err)
		return err
	}
	res := f.applyCommand(cmd, l.Index)
	f.lastAppliedIndex.Store(l.Index)
	return res
}

func (f *FSM) applyCommand(cmd RaftCommand, index uint64) any {
	switch cmd.Type {
	case CmdSaveMatch:
		if cmd.Match == nil {
			return fmt.Errorf("%s without match", cmd.Type)
		}
		return f.applySaveMatch(cmd.Match, index)
	case CmdDeleteMatch:
		return f.applyDeleteMatch(cmd.ID, index)
	case CmdApplyAction:
		if cmd.Action == nil {
			return fmt.Errorf("%s without action", cmd.Type)
		}
		res, err := f.applyAction(cmd.ID, *cmd.Action, index)
		if err != nil {
			return err
		}
		return res
	case CmdSaveTeam:
		if cmd.Team == nil {
			return fmt.Errorf("%s without team", cmd.Type)
		}
		return f.applySaveTeam(cmd.Team, index)
	case CmdDeleteTeam:
		return f.applyDeleteTeam(cmd.ID, index)
	case CmdNodeMeta:
		if cmd.NodeMeta == nil {
			return fmt.Errorf("%s without metadata", cmd.Type)
		}
		f.nodeMap.Store(cmd.NodeMeta.NodeID, cmd.NodeMeta)
		f.saveNodes()
		return nil
	case CmdNodeLeft:
		f.nodeMap.Delete(cmd.ID)
		f.saveNodes()
		return nil
	}
	log.Printf("FSM Apply Error: unknown command type %q", cmd.Type)
	return fmt.Errorf("unknown command type %q", cmd.Type)
}

// applyAction runs an action against the stored match. Rejections are
// deterministic, so every node rejects the same entries.
func (f *FSM) applyAction(matchId string, a Action, index uint64) (*ApplyResult, error) {
	sm, err := f.ms.LoadMatch(matchId)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to load match %s: %w", matchId, err)
	}
	if sm.Deleted {
		return nil, os.ErrNotExist
	}
	if index > 0 && index <= sm.LastRaftIndex {
		return &ApplyResult{}, nil // Already applied
	}

	next := sm.Clone()
	changed, events, err := ApplyAction(next, a)
	if err != nil {
		return nil, err
	}
	if !changed {
		return &ApplyResult{}, nil
	}
	next.LastRaftIndex = index
	if err := f.ms.SaveMatchInMemory(next, false); err != nil {
		return nil, err
	}
	f.metrics.ObserveEvents(events)
	if f.hm != nil {
		f.hm.BroadcastToMatch(matchId, next.Clone(), events)
	}
	return &ApplyResult{Changed: true, Events: events}, nil
}

func (f *FSM) applySaveMatch(sm *StoredMatch, index uint64) error {
	if existing, err := f.ms.LoadMatch(sm.ID); err == nil {
		if index > 0 && index <= existing.LastRaftIndex {
			return nil
		}
		return fmt.Errorf("match %s: %w", sm.ID, ErrExists)
	}
	sm.normalize()
	sm.LastRaftIndex = index
	if err := f.ms.SaveMatchInMemory(sm, false); err != nil {
		return err
	}
	if f.hm != nil {
		f.hm.BroadcastToMatch(sm.ID, sm.Clone(), nil)
	}
	return nil
}

func (f *FSM) applyDeleteMatch(id string, index uint64) error {
	existing, err := f.ms.LoadMatch(id)
	if err != nil || existing.Deleted {
		return nil
	}
	if index > 0 && index <= existing.LastRaftIndex {
		return nil
	}
	if err := f.ms.DeleteMatch(id); err != nil {
		return err
	}
	if f.hm != nil {
		if tomb, err := f.ms.LoadMatch(id); err == nil {
			f.hm.BroadcastToMatch(id, tomb, nil)
		}
	}
	return nil
}

func (f *FSM) applySaveTeam(t *StoredTeam, index uint64) error {
	if existing, err := f.ts.LoadTeam(t.ID); err == nil {
		if index > 0 && index <= existing.LastRaftIndex {
			return nil
		}
	}
	t.normalize()
	t.LastRaftIndex = index
	return f.ts.SaveTeam(t)
}

func (f *FSM) applyDeleteTeam(id string, index uint64) error {
	existing, err := f.ts.LoadTeam(id)
	if err != nil || existing.Deleted {
		return nil
	}
	if index > 0 && index <= existing.LastRaftIndex {
		return nil
	}
	return f.ts.DeleteTeam(id)
}

// FlushAll writes every dirty match to disk.
func (f *FSM) FlushAll() error {
	return f.ms.FlushAll()
}

// snapshotState is the serialized form of the whole FSM.
type snapshotState struct {
	SchemaVersion    int                  `json:"schemaVersion"`
	LastAppliedIndex uint64               `json:"lastAppliedIndex"`
	Matches          []*StoredMatch       `json:"matches"`
	Teams            []*StoredTeam        `json:"teams"`
	Nodes            map[string]*NodeMeta `json:"nodes"`
}

// FSMSnapshot represents a snapshot of the FSM state.
type FSMSnapshot struct {
	state snapshotState
}

// Persist saves the snapshot to the given sink.
func (s *FSMSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(&s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return sink.Close()
}

// Release releases the snapshot.
func (s *FSMSnapshot) Release() {}

// Snapshot captures every match and team. Raft never calls it concurrently
// with Apply, so the state read here is consistent.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	if err := f.ms.FlushAll(); err != nil {
		log.Printf("FSM Snapshot Error: flushing matches failed: %v", err)
		return nil, err
	}
	state := snapshotState{
		SchemaVersion:    CurrentSchemaVersion,
		LastAppliedIndex: f.LastAppliedIndex(),
		Matches:          make([]*StoredMatch, 0),
		Teams:            make([]*StoredTeam, 0),
		Nodes:            f.nodes(),
	}
	for sm, err := range f.ms.ListAllMatches() {
		if err != nil {
			return nil, err
		}
		state.Matches = append(state.Matches, sm)
	}
	for t, err := range f.ts.ListAllTeams() {
		if err != nil {
			return nil, err
		}
		state.Teams = append(state.Teams, t)
	}
	return &FSMSnapshot{state: state}, nil
}

// Restore replaces the local state with a snapshot. Matches and teams that
// are not in the snapshot are purged.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var state snapshotState
	if err := json.NewDecoder(rc).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if state.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("snapshot has unsupported schema version %d", state.SchemaVersion)
	}

	keepMatches := make(map[string]bool)
	for _, sm := range state.Matches {
		keepMatches[sm.ID] = true
		if err := f.ms.SaveMatch(sm); err != nil {
			return fmt.Errorf("restore match %s: %w", sm.ID, err)
		}
		if f.hm != nil {
			f.hm.BroadcastToMatch(sm.ID, sm.Clone(), nil)
		}
	}
	var stale []string
	for md, err := range f.ms.ListAllMatchMetadata() {
		if err != nil {
			return err
		}
		if !keepMatches[md.ID] {
			stale = append(stale, md.ID)
		}
	}
	for _, id := range stale {
		if err := f.ms.PurgeMatch(id); err != nil {
			return err
		}
	}

	keepTeams := make(map[string]bool)
	for _, t := range state.Teams {
		keepTeams[t.ID] = true
		if err := f.ts.SaveTeam(t); err != nil {
			return fmt.Errorf("restore team %s: %w", t.ID, err)
		}
	}
	stale = stale[:0]
	for t, err := range f.ts.ListAllTeams() {
		if err != nil {
			return err
		}
		if !keepTeams[t.ID] {
			stale = append(stale, t.ID)
		}
	}
	for _, id := range stale {
		if err := f.ts.PurgeTeam(id); err != nil {
			return err
		}
	}

	f.nodeMap.Clear()
	for k, v := range state.Nodes {
		f.nodeMap.Store(k, v)
	}
	f.saveNodes()
	f.lastAppliedIndex.Store(state.LastAppliedIndex)
	return nil
}
