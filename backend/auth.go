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
	"log"
	"net/http"
	"slices"
	"strings"
)

type contextKey struct{}

// userIDKey is the context key for the authenticated user's ID (email).
// The associated value is always a string.
var userIDKey contextKey

// getUserID returns the UserID from the request context, if present.
func getUserID(r *http.Request) string {
	if s, ok := r.Context().Value(userIDKey).(string); ok {
		return s
	}
	return ""
}

// normalizeEmail ensures consistent casing and whitespace for User IDs.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// maskEmail obscures an email address for safe logging.
// e.g. "user@example.com" -> "u***@example.com"
func maskEmail(email string) string {
	if email == "" {
		return "<empty>"
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || len(parts[0]) < 1 {
		return "****"
	}
	return string(parts[0][0]) + "***@" + parts[1]
}

type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessRead
	AccessWrite
	AccessAdmin
)

func containsUser(list []string, userId string) bool {
	return slices.ContainsFunc(list, func(u string) bool { return normalizeEmail(u) == userId })
}

// GetMatchAccess calculates the effective access level for a user on a
// match. Scoreboards are public: anyone may read a live match. Scoring
// needs the owner, a listed scorer, or a role on one of the saved teams.
func GetMatchAccess(userId string, sm *StoredMatch, ts *TeamStore) AccessLevel {
	if sm.Deleted {
		return AccessNone
	}
	userId = normalizeEmail(userId)
	if userId == "" {
		return AccessRead
	}
	if normalizeEmail(sm.OwnerID) == userId {
		return AccessAdmin
	}
	level := AccessRead
	if containsUser(sm.Scorers, userId) {
		level = AccessWrite
	}
	if ts != nil {
		for _, teamId := range []string{sm.TeamA.ID, sm.TeamB.ID} {
			t, err := ts.LoadTeam(teamId)
			if err != nil || t.Deleted {
				continue
			}
			level = max(level, GetTeamAccess(userId, t))
		}
	}
	if level > AccessRead {
		log.Printf("[AUTH] user=%s level=%d on match %s", maskEmail(userId), level, sm.ID)
	}
	return level
}

// GetTeamAccess calculates the effective access level for a user on a team.
func GetTeamAccess(userId string, team *StoredTeam) AccessLevel {
	userId = normalizeEmail(userId)
	if userId == "" || team.Deleted {
		return AccessNone
	}
	switch {
	case normalizeEmail(team.OwnerID) == userId, containsUser(team.Roles.Admins, userId):
		return AccessAdmin
	case containsUser(team.Roles.Scorekeepers, userId):
		return AccessWrite
	case containsUser(team.Roles.Spectators, userId):
		return AccessRead
	}
	return AccessNone
}
