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
	"os"
	"path/filepath"
	"testing"

	"github.com/c2FmZQ/storage"
	"github.com/google/uuid"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

func TestMatchStoreSaveLoad(t *testing.T) {
	dir, s, ms, _ := newTestStores(t)
	sm := newTestMatch(t, ownerEmail)
	startMatch(t, sm)

	if err := ms.SaveMatch(sm); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}

	// A fresh store reads the file back from disk.
	fresh := NewMatchStore(dir, s)
	loaded, err := fresh.LoadMatch(sm.ID)
	if err != nil {
		t.Fatalf("LoadMatch: %v", err)
	}
	if loaded.Status != scoring.StatusLive {
		t.Errorf("Status = %s, want LIVE", loaded.Status)
	}
	if got := loaded.CurrentInnings().Crease; got != (scoring.Crease{Striker: "a1", NonStriker: "a2", Bowler: "b1"}) {
		t.Errorf("Crease = %+v", got)
	}
	if len(loaded.RecentActions) != 2 {
		t.Errorf("RecentActions = %v, want 2 ids", loaded.RecentActions)
	}

	if _, err := ms.LoadMatch(uuid.NewString()); !os.IsNotExist(err) {
		t.Errorf("LoadMatch(unknown) = %v, want os.ErrNotExist", err)
	}
}

func TestMatchStoreInMemoryAndFlush(t *testing.T) {
	dir, s, ms, _ := newTestStores(t)
	sm := newTestMatch(t, ownerEmail)

	if err := ms.SaveMatchInMemory(sm, false); err != nil {
		t.Fatalf("SaveMatchInMemory: %v", err)
	}
	if _, err := ms.LoadMatch(sm.ID); err != nil {
		t.Fatalf("LoadMatch from cache: %v", err)
	}
	if _, err := NewMatchStore(dir, s).LoadMatch(sm.ID); !os.IsNotExist(err) {
		t.Fatalf("match reached disk before flush: %v", err)
	}

	// Unflushed matches are listed from memory.
	count := 0
	for md, err := range ms.ListAllMatchMetadata() {
		if err != nil {
			t.Fatalf("ListAllMatchMetadata: %v", err)
		}
		if md.ID != sm.ID {
			t.Errorf("unexpected match %s", md.ID)
		}
		count++
	}
	if count != 1 {
		t.Errorf("listed %d matches, want 1", count)
	}

	if err := ms.FlushAll(); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if _, err := NewMatchStore(dir, s).LoadMatch(sm.ID); err != nil {
		t.Errorf("LoadMatch after flush: %v", err)
	}
}

func TestMatchStoreDeleteAndPurge(t *testing.T) {
	_, _, ms, _ := newTestStores(t)
	sm := newTestMatch(t, ownerEmail)
	if err := ms.SaveMatch(sm); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}

	if err := ms.DeleteMatch(sm.ID); err != nil {
		t.Fatalf("DeleteMatch: %v", err)
	}
	tomb, err := ms.LoadMatch(sm.ID)
	if err != nil {
		t.Fatalf("LoadMatch tombstone: %v", err)
	}
	if !tomb.Deleted || tomb.OwnerID != ownerEmail {
		t.Errorf("tombstone = deleted:%v owner:%q", tomb.Deleted, tomb.OwnerID)
	}
	for md, err := range ms.ListAllMatchMetadata() {
		if err != nil {
			t.Fatalf("ListAllMatchMetadata: %v", err)
		}
		if !md.Deleted {
			t.Errorf("metadata of %s not marked deleted", md.ID)
		}
	}

	if err := ms.PurgeMatch(sm.ID); err != nil {
		t.Fatalf("PurgeMatch: %v", err)
	}
	if _, err := ms.LoadMatch(sm.ID); !os.IsNotExist(err) {
		t.Errorf("LoadMatch after purge = %v, want os.ErrNotExist", err)
	}
	if err := ms.DeleteMatch(sm.ID); err != nil {
		t.Errorf("DeleteMatch of missing match: %v", err)
	}
}

func TestMatchMetadataFallback(t *testing.T) {
	dir := t.TempDir()
	s := storage.New(dir, nil)
	ms := NewMatchStore(dir, s)
	sm := newTestMatch(t, ownerEmail)
	if err := ms.SaveMatch(sm); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}
	_, metaFile := matchFiles(sm.ID)
	if err := os.Remove(filepath.Join(dir, metaFile)); err != nil {
		t.Fatalf("remove sidecar: %v", err)
	}

	var got []MatchMetadata
	for md, err := range NewMatchStore(dir, s).ListAllMatchMetadata() {
		if err != nil {
			t.Fatalf("ListAllMatchMetadata: %v", err)
		}
		got = append(got, md)
	}
	if len(got) != 1 || got[0].TeamA != "Team a" || got[0].Format != scoring.FormatT20 {
		t.Errorf("metadata = %+v", got)
	}
}

func TestStoredMatchRecentActionsCap(t *testing.T) {
	sm := newTestMatch(t, ownerEmail)
	var first string
	for i := range maxRecentActions + 5 {
		id := uuid.NewString()
		if i == 0 {
			first = id
		}
		sm.rememberAction(id)
	}
	if len(sm.RecentActions) != maxRecentActions {
		t.Errorf("len(RecentActions) = %d, want %d", len(sm.RecentActions), maxRecentActions)
	}
	if sm.hasAction(first) {
		t.Error("oldest action id was not evicted")
	}
}
