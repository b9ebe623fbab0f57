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

// TeamRoles lists users by the role they hold on a team. Admins and
// scorekeepers of a team inherit access to every match it plays.
type TeamRoles struct {
	Admins       []string `json:"admins"`
	Scorekeepers []string `json:"scorekeepers"`
	Spectators   []string `json:"spectators"`
}

func (r *TeamRoles) normalize() {
	if r.Admins == nil {
		r.Admins = make([]string, 0)
	}
	if r.Scorekeepers == nil {
		r.Scorekeepers = make([]string, 0)
	}
	if r.Spectators == nil {
		r.Spectators = make([]string, 0)
	}
}

// StoredTeam is a saved roster that matches can be created from.
type StoredTeam struct {
	scoring.Team
	SchemaVersion int       `json:"schemaVersion"`
	ShortName     string    `json:"shortName,omitempty"`
	OwnerID       string    `json:"ownerId"`
	Roles         TeamRoles `json:"roles"`
	UpdatedAt     int64     `json:"updatedAt,omitempty"`

	Deleted   bool  `json:"deleted,omitempty"`
	DeletedAt int64 `json:"deletedAt,omitempty"`

	LastRaftIndex uint64 `json:"lastRaftIndex,omitempty"`
}

func (t *StoredTeam) normalize() {
	if t.SchemaVersion == 0 {
		t.SchemaVersion = CurrentSchemaVersion
	}
	if t.Players == nil {
		t.Players = make([]scoring.Player, 0)
	}
	t.Roles.normalize()
}

// Roster returns a copy of the scoring team, safe to embed in a match.
func (t *StoredTeam) Roster() scoring.Team {
	r := t.Team
	r.Players = slices.Clone(t.Players)
	return r
}

// TeamStore manages team persistence to disk.
type TeamStore struct {
	DataDir string
	storage *storage.Storage
	mu      sync.Map // teamId -> *sync.Mutex
}

// NewTeamStore creates a new TeamStore.
func NewTeamStore(dataDir string, s *storage.Storage) *TeamStore {
	return &TeamStore{
		DataDir: dataDir,
		storage: s,
	}
}

func (ts *TeamStore) lock(teamId string) *sync.Mutex {
	m, _ := ts.mu.LoadOrStore(teamId, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func teamFile(teamId string) string {
	return filepath.Join("teams", url.PathEscape(teamId)+".json")
}

// SaveTeam saves the team atomically.
func (ts *TeamStore) SaveTeam(team *StoredTeam) error {
	mutex := ts.lock(team.ID)
	mutex.Lock()
	defer mutex.Unlock()

	if err := ts.storage.SaveDataFile(teamFile(team.ID), team); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

// LoadTeam loads a team by id, or returns os.ErrNotExist.
func (ts *TeamStore) LoadTeam(teamId string) (*StoredTeam, error) {
	var t StoredTeam
	if err := ts.storage.ReadDataFile(teamFile(teamId), &t); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	t.normalize()
	return &t, nil
}

// ListAllTeams yields every team in the teams directory, tombstones included.
func (ts *TeamStore) ListAllTeams() iter.Seq2[*StoredTeam, error] {
	return func(yield func(*StoredTeam, error) bool) {
		files, err := os.ReadDir(filepath.Join(ts.DataDir, "teams"))
		if err != nil {
			if !os.IsNotExist(err) {
				yield(nil, fmt.Errorf("could not read teams directory: %w", err))
			}
			return
		}
		names := make([]string, 0, len(files))
		for _, file := range files {
			if !file.IsDir() && strings.HasSuffix(file.Name(), ".json") {
				names = append(names, file.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			teamId, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
			if err != nil {
				continue
			}
			t, err := ts.LoadTeam(teamId)
			if err != nil {
				log.Printf("Warning: could not load team '%s': %v", teamId, err)
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// DeleteTeam overwrites the team with a tombstone. Matches already created
// from it keep their own copy of the roster.
func (ts *TeamStore) DeleteTeam(teamId string) error {
	t, err := ts.LoadTeam(teamId)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	mutex := ts.lock(teamId)
	mutex.Lock()
	defer mutex.Unlock()

	tombstone := &StoredTeam{
		Team:          scoring.Team{ID: teamId},
		SchemaVersion: CurrentSchemaVersion,
		OwnerID:       t.OwnerID,
		Deleted:       true,
		DeletedAt:     time.Now().UnixNano(),
	}
	if err := ts.storage.SaveDataFile(teamFile(teamId), tombstone); err != nil {
		return fmt.Errorf("storage.SaveDataFile (tombstone): %w", err)
	}
	return nil
}

// PurgeTeam permanently deletes the team file.
func (ts *TeamStore) PurgeTeam(teamId string) error {
	mutex := ts.lock(teamId)
	mutex.Lock()
	defer mutex.Unlock()

	if err := os.Remove(filepath.Join(ts.DataDir, teamFile(teamId))); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not purge team file: %w", err)
	}
	return nil
}
