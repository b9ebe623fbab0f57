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
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// StoredMatch is a match as stored on disk: the scoring aggregate plus the
// bookkeeping the server needs around it.
type StoredMatch struct {
	scoring.Match
	SchemaVersion int   `json:"schemaVersion"`
	UpdatedAt     int64 `json:"updatedAt,omitempty"`

	// RecentActions holds the ids of the most recently applied actions so
	// that retried submissions are not applied twice.
	RecentActions []string `json:"recentActions,omitempty"`

	Deleted   bool  `json:"deleted,omitempty"`
	DeletedAt int64 `json:"deletedAt,omitempty"`

	// LastRaftIndex is the index of the last log entry applied to this match.
	LastRaftIndex uint64 `json:"lastRaftIndex,omitempty"`
}

// Clone returns a deep copy.
func (sm *StoredMatch) Clone() *StoredMatch {
	c := *sm
	c.Match = *sm.Match.Clone()
	c.RecentActions = slices.Clone(sm.RecentActions)
	return &c
}

func (sm *StoredMatch) normalize() {
	if sm.SchemaVersion == 0 {
		sm.SchemaVersion = CurrentSchemaVersion
	}
	if sm.Innings == nil {
		sm.Innings = make([]*scoring.Innings, 0)
	}
}

// hasAction reports whether an action id was already applied.
func (sm *StoredMatch) hasAction(id string) bool {
	return slices.Contains(sm.RecentActions, id)
}

func (sm *StoredMatch) rememberAction(id string) {
	sm.RecentActions = append(sm.RecentActions, id)
	if n := len(sm.RecentActions); n > maxRecentActions {
		sm.RecentActions = slices.Clone(sm.RecentActions[n-maxRecentActions:])
	}
}

// Metadata returns the index fields of the match.
func (sm *StoredMatch) Metadata() MatchMetadata {
	md := MatchMetadata{
		ID:        sm.ID,
		OwnerID:   sm.OwnerID,
		Scorers:   sm.Scorers,
		Format:    sm.Format,
		Status:    sm.Status,
		TeamA:     sm.TeamA.Name,
		TeamB:     sm.TeamB.Name,
		CreatedAt: sm.CreatedAt,
		UpdatedAt: sm.UpdatedAt,
		Deleted:   sm.Deleted,
		DeletedAt: sm.DeletedAt,
	}
	if sm.Result != nil {
		md.Summary = sm.Result.Summary
	}
	return md
}

// MatchMetadata contains only the fields needed for listing and access checks.
type MatchMetadata struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"ownerId"`
	Scorers   []string       `json:"scorers,omitempty"`
	Format    scoring.Format `json:"format,omitempty"`
	Status    scoring.Status `json:"status,omitempty"`
	TeamA     string         `json:"teamA,omitempty"`
	TeamB     string         `json:"teamB,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt int64          `json:"updatedAt,omitempty"`
	Deleted   bool           `json:"deleted,omitempty"`
	DeletedAt int64          `json:"deletedAt,omitempty"`
}

// MatchStore manages match persistence. Writes are serialized per match and
// the latest JSON of every match touched is kept in memory.
type MatchStore struct {
	DataDir string
	Debug   bool
	storage *storage.Storage
	mu      sync.Map // matchId -> *sync.RWMutex
	cache   sync.Map // matchId -> []byte

	dirtyMu sync.Mutex
	dirty   map[string]bool
}

// NewMatchStore creates a new MatchStore.
func NewMatchStore(dataDir string, s *storage.Storage) *MatchStore {
	return &MatchStore{
		DataDir: dataDir,
		storage: s,
		dirty:   make(map[string]bool),
	}
}

func (ms *MatchStore) lock(matchId string) *sync.RWMutex {
	m, _ := ms.mu.LoadOrStore(matchId, &sync.RWMutex{})
	return m.(*sync.RWMutex)
}

func matchFiles(matchId string) (string, string) {
	encoded := url.PathEscape(matchId)
	return filepath.Join("matches", encoded+".json"), filepath.Join("matches", encoded+".meta.json")
}

// SaveMatch writes the match and its metadata sidecar to disk.
func (ms *MatchStore) SaveMatch(sm *StoredMatch) error {
	mutex := ms.lock(sm.ID)
	mutex.Lock()
	defer mutex.Unlock()

	filename, metaFilename := matchFiles(sm.ID)
	if err := ms.storage.SaveDataFile(filename, sm); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	meta := sm.Metadata()
	if err := ms.storage.SaveDataFile(metaFilename, &meta); err != nil {
		log.Printf("Warning: Failed to save metadata sidecar for match %s: %v", sm.ID, err)
	}

	if jsonBytes, err := json.Marshal(sm); err == nil {
		ms.cache.Store(sm.ID, jsonBytes)
	}

	ms.dirtyMu.Lock()
	delete(ms.dirty, sm.ID)
	ms.dirtyMu.Unlock()
	return nil
}

// SaveMatchInMemory updates the cache and marks the match dirty. With
// forceSync it writes through to disk.
func (ms *MatchStore) SaveMatchInMemory(sm *StoredMatch, forceSync bool) error {
	jsonBytes, err := json.Marshal(sm)
	if err != nil {
		return err
	}
	ms.cache.Store(sm.ID, jsonBytes)
	if forceSync {
		return ms.SaveMatch(sm)
	}
	ms.dirtyMu.Lock()
	ms.dirty[sm.ID] = true
	ms.dirtyMu.Unlock()
	return nil
}

// Flush persists one dirty match.
func (ms *MatchStore) Flush(matchId string) error {
	ms.dirtyMu.Lock()
	isDirty := ms.dirty[matchId]
	ms.dirtyMu.Unlock()
	if !isDirty {
		return nil
	}

	val, ok := ms.cache.Load(matchId)
	if !ok {
		ms.dirtyMu.Lock()
		delete(ms.dirty, matchId)
		ms.dirtyMu.Unlock()
		return fmt.Errorf("match %s marked dirty but not found in cache", matchId)
	}
	var sm StoredMatch
	if err := json.Unmarshal(val.([]byte), &sm); err != nil {
		return fmt.Errorf("failed to unmarshal match from cache for flush: %w", err)
	}
	return ms.SaveMatch(&sm)
}

// FlushAll persists every dirty match.
func (ms *MatchStore) FlushAll() error {
	for _, id := range ms.dirtyIDs() {
		if err := ms.Flush(id); err != nil {
			return fmt.Errorf("failed to flush match %s: %w", id, err)
		}
	}
	return nil
}

func (ms *MatchStore) dirtyIDs() []string {
	ms.dirtyMu.Lock()
	defer ms.dirtyMu.Unlock()
	ids := make([]string, 0, len(ms.dirty))
	for id := range ms.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadMatch returns the match with the given id, or os.ErrNotExist.
func (ms *MatchStore) LoadMatch(matchId string) (*StoredMatch, error) {
	if val, ok := ms.cache.Load(matchId); ok {
		var sm StoredMatch
		if err := json.Unmarshal(val.([]byte), &sm); err == nil {
			if ms.Debug {
				log.Printf("[CACHE] Hit for match %s", matchId)
			}
			sm.normalize()
			return &sm, nil
		}
		ms.cache.Delete(matchId)
	}
	if ms.Debug {
		log.Printf("[CACHE] Miss for match %s", matchId)
	}

	mutex := ms.lock(matchId)
	mutex.RLock()
	defer mutex.RUnlock()

	filename, _ := matchFiles(matchId)
	var sm StoredMatch
	if err := ms.storage.ReadDataFile(filename, &sm); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	if sm.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("match %s has unsupported schema version %d", matchId, sm.SchemaVersion)
	}
	sm.normalize()

	if jsonBytes, err := json.Marshal(&sm); err == nil {
		ms.cache.Store(matchId, jsonBytes)
	}
	return &sm, nil
}

// DeleteMatch replaces the match with a tombstone that keeps its owner.
func (ms *MatchStore) DeleteMatch(matchId string) error {
	sm, err := ms.LoadMatch(matchId)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	mutex := ms.lock(matchId)
	mutex.Lock()
	defer mutex.Unlock()

	tombstone := &StoredMatch{
		Match:         scoring.Match{ID: matchId, OwnerID: sm.OwnerID},
		SchemaVersion: CurrentSchemaVersion,
		Deleted:       true,
		DeletedAt:     time.Now().UnixNano(),
	}
	filename, metaFilename := matchFiles(matchId)
	if err := ms.storage.SaveDataFile(filename, tombstone); err != nil {
		return fmt.Errorf("storage.SaveDataFile (tombstone): %w", err)
	}
	meta := tombstone.Metadata()
	if err := ms.storage.SaveDataFile(metaFilename, &meta); err != nil {
		log.Printf("Warning: Failed to save metadata tombstone for match %s: %v", matchId, err)
	}
	if jsonBytes, err := json.Marshal(tombstone); err == nil {
		ms.cache.Store(matchId, jsonBytes)
	}
	ms.dirtyMu.Lock()
	delete(ms.dirty, matchId)
	ms.dirtyMu.Unlock()
	return nil
}

// PurgeMatch removes the match files permanently.
func (ms *MatchStore) PurgeMatch(matchId string) error {
	mutex := ms.lock(matchId)
	mutex.Lock()
	defer mutex.Unlock()

	ms.cache.Delete(matchId)
	ms.dirtyMu.Lock()
	delete(ms.dirty, matchId)
	ms.dirtyMu.Unlock()

	filename, metaFilename := matchFiles(matchId)
	if err := os.Remove(filepath.Join(ms.DataDir, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not purge match file: %w", err)
	}
	if err := os.Remove(filepath.Join(ms.DataDir, metaFilename)); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not purge meta file for match %s: %v", matchId, err)
	}
	return nil
}

// scanIDs returns the ids of matches on disk and whether each has a sidecar.
func (ms *MatchStore) scanIDs() (map[string]bool, error) {
	files, err := os.ReadDir(filepath.Join(ms.DataDir, "matches"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("could not read matches directory: %w", err)
	}
	ids := make(map[string]bool)
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		isMeta := strings.HasSuffix(name, ".meta.json")
		encoded := strings.TrimSuffix(strings.TrimSuffix(name, ".json"), ".meta")
		id, err := url.PathUnescape(encoded)
		if err != nil {
			continue
		}
		ids[id] = ids[id] || isMeta
	}
	return ids, nil
}

// ListAllMatchMetadata yields the metadata of every match, including
// tombstones. Matches not yet flushed are reported from memory.
func (ms *MatchStore) ListAllMatchMetadata() iter.Seq2[MatchMetadata, error] {
	return func(yield func(MatchMetadata, error) bool) {
		ids, err := ms.scanIDs()
		if err != nil {
			yield(MatchMetadata{}, err)
			return
		}
		seen := make(map[string]bool)

		// Dirty entries are newer than anything on disk.
		for _, id := range ms.dirtyIDs() {
			seen[id] = true
			sm, err := ms.LoadMatch(id)
			if err != nil {
				log.Printf("Error: Failed to load dirty match %s: %v", id, err)
				continue
			}
			if !yield(sm.Metadata(), nil) {
				return
			}
		}

		sorted := make([]string, 0, len(ids))
		for id := range ids {
			sorted = append(sorted, id)
		}
		sort.Strings(sorted)

		for _, id := range sorted {
			if seen[id] {
				continue
			}
			seen[id] = true
			if ids[id] {
				_, metaFilename := matchFiles(id)
				var meta MatchMetadata
				err := ms.storage.ReadDataFile(metaFilename, &meta)
				if err == nil {
					if !yield(meta, nil) {
						return
					}
					continue
				}
				log.Printf("Warning: failed to load metadata for match %s: %v. Falling back to main file.", id, err)
			}
			sm, err := ms.LoadMatch(id)
			if err != nil {
				log.Printf("Warning: failed to load match %s from disk: %v", id, err)
				continue
			}
			if !yield(sm.Metadata(), nil) {
				return
			}
		}
	}
}

// ListAllMatches yields every stored match, tombstones included.
func (ms *MatchStore) ListAllMatches() iter.Seq2[*StoredMatch, error] {
	return func(yield func(*StoredMatch, error) bool) {
		for md, err := range ms.ListAllMatchMetadata() {
			if err != nil {
				yield(nil, err)
				return
			}
			sm, err := ms.LoadMatch(md.ID)
			if err != nil {
				log.Printf("Warning: could not load match '%s': %v", md.ID, err)
				continue
			}
			if !yield(sm, nil) {
				return
			}
		}
	}
}
