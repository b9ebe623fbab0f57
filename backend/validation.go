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
	"net/mail"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// ErrBadRequest marks request payloads that fail validation before they
// reach a match.
var ErrBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// uuidRegex is a regex for standard UUIDs (8-4-4-4-12 hex digits)
var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// isValidUUID checks if the string is a valid UUID.
func isValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// isValidEmail checks if the string is a valid email address.
func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// validateStringLen checks if the string length is within the limit.
func validateStringLen(s string, max int, name string) error {
	if len(s) > max {
		return badRequest("%s too long (max %d chars)", name, max)
	}
	return nil
}

// Action is one scorer command against a match. Actions carry their own id
// and timestamp so that applying the same action twice, or replaying it from
// the raft log, has the same effect as applying it once.
type Action struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // Unix millis
}

// TossPayload is the payload of a TOSS action.
type TossPayload struct {
	Winner   string               `json:"winner"`
	Decision scoring.TossDecision `json:"decision"`
}

func decodePayload(a Action, v any) error {
	if len(a.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return badRequest("malformed %s payload: %v", a.Type, err)
	}
	return nil
}

// ValidateAction checks the envelope and payload shape of an action. Cricket
// rules are enforced when the action is applied.
func ValidateAction(a Action) error {
	if !isValidUUID(a.ID) {
		return badRequest("invalid action ID: %q", a.ID)
	}
	if a.Timestamp <= 0 {
		return badRequest("missing action timestamp")
	}
	switch a.Type {
	case ActionToss:
		var p TossPayload
		if err := decodePayload(a, &p); err != nil {
			return err
		}
		if p.Winner == "" {
			return badRequest("toss winner is required")
		}
		return validateStringLen(p.Winner, maxNameLen, "toss winner")
	case ActionSelectPlayers:
		var p scoring.Selection
		return decodePayload(a, &p)
	case ActionDelivery:
		var p scoring.DeliveryInput
		return decodePayload(a, &p)
	case ActionUndo, ActionDeclare:
		return nil
	case "":
		return badRequest("missing action type")
	}
	return badRequest("unknown action type: %s", a.Type)
}

// ApplyAction applies one validated action to the match. It returns false
// when the action was applied before. A rejected action leaves the match
// unchanged and returns a *scoring.RejectError.
func ApplyAction(sm *StoredMatch, a Action) (bool, []scoring.Event, error) {
	if sm.hasAction(a.ID) {
		return false, nil, nil
	}

	var (
		events []scoring.Event
		err    error
	)
	switch a.Type {
	case ActionToss:
		var p TossPayload
		if err := decodePayload(a, &p); err != nil {
			return false, nil, err
		}
		events, err = sm.RecordToss(p.Winner, p.Decision)
	case ActionSelectPlayers:
		var sel scoring.Selection
		if err := decodePayload(a, &sel); err != nil {
			return false, nil, err
		}
		events, err = sm.SelectPlayers(sel)
	case ActionDelivery:
		var in scoring.DeliveryInput
		if err := decodePayload(a, &in); err != nil {
			return false, nil, err
		}
		var out scoring.Outcome
		out, err = sm.SubmitDelivery(in, a.ID, time.UnixMilli(a.Timestamp).UTC())
		events = out.Events
	case ActionUndo:
		_, events, err = sm.UndoLastDelivery()
	case ActionDeclare:
		events, err = sm.Declare()
	default:
		return false, nil, badRequest("unknown action type: %s", a.Type)
	}
	if err != nil {
		return false, nil, err
	}

	sm.rememberAction(a.ID)
	sm.UpdatedAt = a.Timestamp
	return true, events, nil
}

// CreateMatchRequest is the body of POST /api/matches. Each side is either
// given inline or referenced by the id of a saved team.
type CreateMatchRequest struct {
	ID              string         `json:"id,omitempty"`
	Format          scoring.Format `json:"format"`
	CustomOvers     *int           `json:"customOvers,omitempty"`
	LastManStanding bool           `json:"lastManStanding"`
	TeamA           *scoring.Team  `json:"teamA,omitempty"`
	TeamB           *scoring.Team  `json:"teamB,omitempty"`
	TeamAID         string         `json:"teamAId,omitempty"`
	TeamBID         string         `json:"teamBId,omitempty"`
	Scorers         []string       `json:"scorers,omitempty"`
}

func validateCreateMatch(req *CreateMatchRequest) error {
	if req.ID != "" && !isValidUUID(req.ID) {
		return badRequest("invalid match ID: %q", req.ID)
	}
	if req.Format != scoring.FormatT20 && req.Format != scoring.FormatTest {
		return badRequest("unknown format %q", req.Format)
	}
	if req.CustomOvers != nil && (*req.CustomOvers < 1 || *req.CustomOvers > maxCustomOvers) {
		return badRequest("custom overs must be between 1 and %d", maxCustomOvers)
	}
	sides := []struct {
		name string
		team *scoring.Team
		id   string
	}{{"teamA", req.TeamA, req.TeamAID}, {"teamB", req.TeamB, req.TeamBID}}
	for _, side := range sides {
		switch {
		case side.team != nil && side.id != "":
			return badRequest("%s is given both inline and by id", side.name)
		case side.team != nil:
			if err := validateTeam(side.team); err != nil {
				return fmt.Errorf("%s: %w", side.name, err)
			}
		case !isValidUUID(side.id):
			return badRequest("%s is missing or has an invalid id", side.name)
		}
	}
	if len(req.Scorers) > maxPlayers {
		return badRequest("too many scorers")
	}
	for _, s := range req.Scorers {
		if !isValidEmail(s) {
			return badRequest("invalid scorer %q", s)
		}
	}
	return nil
}

// validateTeam checks lengths and fills in missing team and player ids.
func validateTeam(t *scoring.Team) error {
	if t.Name == "" {
		return badRequest("team name is required")
	}
	if err := validateStringLen(t.Name, maxNameLen, "team name"); err != nil {
		return err
	}
	if err := validateStringLen(t.ID, maxNameLen, "team id"); err != nil {
		return err
	}
	if len(t.Players) > maxPlayers {
		return badRequest("too many players (max %d)", maxPlayers)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	for i := range t.Players {
		p := &t.Players[i]
		if p.Name == "" {
			return badRequest("player %d has no name", i+1)
		}
		if err := validateStringLen(p.Name, maxNameLen, "player name"); err != nil {
			return err
		}
		if err := validateStringLen(string(p.ID), maxNameLen, "player id"); err != nil {
			return err
		}
		if p.ID == "" {
			p.ID = scoring.PlayerID(uuid.NewString())
		}
	}
	return nil
}

// TeamRequest is the body of POST /api/teams.
type TeamRequest struct {
	scoring.Team
	ShortName string    `json:"shortName,omitempty"`
	Roles     TeamRoles `json:"roles"`
}

func validateTeamRequest(req *TeamRequest) error {
	if req.ID != "" && !isValidUUID(req.ID) {
		return badRequest("invalid team ID: %q", req.ID)
	}
	if err := validateTeam(&req.Team); err != nil {
		return err
	}
	if err := validateStringLen(req.ShortName, 10, "short name"); err != nil {
		return err
	}
	for _, list := range [][]string{req.Roles.Admins, req.Roles.Scorekeepers, req.Roles.Spectators} {
		for _, u := range list {
			if !isValidEmail(u) {
				return badRequest("invalid role member %q", u)
			}
		}
	}
	return nil
}
