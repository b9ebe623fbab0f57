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

package scoring

import (
	"time"
)

// MinTeamSize is the smallest roster a match accepts.
const MinTeamSize = 2

// NewMatch validates the configuration and returns a match in SETUP.
// customOvers may be nil: T20 then defaults to 20 overs and TEST is
// unlimited.
func NewMatch(id string, format Format, customOvers *int, lastManStanding bool, teamA, teamB Team) (*Match, error) {
	if id == "" {
		return nil, invalid(CodeBadMatch, "missing match id")
	}
	if format != FormatTest && format != FormatT20 {
		return nil, invalid(CodeBadMatch, "unknown format %q", format)
	}
	if customOvers != nil && *customOvers <= 0 {
		return nil, invalid(CodeBadMatch, "custom overs must be positive")
	}
	if teamA.ID == "" || teamB.ID == "" || teamA.ID == teamB.ID {
		return nil, invalid(CodeBadMatch, "two distinct team ids are required")
	}
	seen := make(map[PlayerID]bool)
	for _, t := range []Team{teamA, teamB} {
		if t.Size() < MinTeamSize {
			return nil, invalid(CodeBadMatch, "team %q needs at least %d players", t.Name, MinTeamSize)
		}
		for _, p := range t.Players {
			if p.ID == "" || seen[p.ID] {
				return nil, invalid(CodeBadMatch, "player ids must be unique and non-empty (%q)", p.ID)
			}
			seen[p.ID] = true
		}
	}
	m := &Match{
		ID:              id,
		Format:          format,
		LastManStanding: lastManStanding,
		TeamA:           teamA,
		TeamB:           teamB,
		Status:          StatusSetup,
		Innings:         []*Innings{},
	}
	if customOvers != nil {
		v := *customOvers
		m.CustomOvers = &v
	}
	return m, nil
}

// RecordToss moves the match from SETUP to LIVE and opens the first innings.
func (m *Match) RecordToss(winner string, decision TossDecision) ([]Event, error) {
	if m.Status != StatusSetup {
		return nil, badState(CodeMatchNotSetup, "toss already recorded")
	}
	if _, ok := m.Team(winner); !ok {
		return nil, inconsistent(CodeUnknownTeam, "%s is not playing this match", winner)
	}
	batting := winner
	switch decision {
	case DecisionBat:
	case DecisionBowl:
		batting = m.opponent(winner)
	default:
		return nil, invalid(CodeBadToss, "unknown decision %q", decision)
	}
	m.TossWinner = winner
	m.TossDecision = decision
	m.Status = StatusLive
	inn := m.startInnings(batting)
	return []Event{
		{Type: EventTossRecorded, Detail: string(decision)},
		{Type: EventInningsStarted, Innings: inn.Number},
	}, nil
}

func (m *Match) requireLive() (*Innings, error) {
	switch m.Status {
	case StatusSetup:
		return nil, badState(CodeMatchNotLive, "toss not recorded")
	case StatusCompleted:
		return nil, badState(CodeMatchCompleted, "match is over")
	}
	return m.CurrentInnings(), nil
}

// Selection fills crease slots. Empty fields leave the slot unchanged.
type Selection struct {
	Striker    PlayerID `json:"striker,omitempty"`
	NonStriker PlayerID `json:"nonStriker,omitempty"`
	Bowler     PlayerID `json:"bowler,omitempty"`
}

// SelectPlayers puts openers, an incoming batter, or the next bowler on the
// crease of the current innings.
func (m *Match) SelectPlayers(sel Selection) ([]Event, error) {
	inn, err := m.requireLive()
	if err != nil {
		return nil, err
	}
	c := inn.Crease
	for _, id := range []PlayerID{sel.Striker, sel.NonStriker} {
		if id == "" {
			continue
		}
		if err := m.checkBatter(inn, id); err != nil {
			return nil, err
		}
	}
	if sel.Striker != "" {
		c.Striker = sel.Striker
	}
	if sel.NonStriker != "" {
		if m.soloAllowed(inn) {
			return nil, invalid(CodeBatterDismissed, "no partner is left to bat")
		}
		c.NonStriker = sel.NonStriker
	}
	if c.Striker != "" && c.Striker == c.NonStriker {
		return nil, invalid(CodeSameBatter, "%s cannot bat at both ends", c.Striker)
	}
	if sel.Bowler != "" {
		bowling, _ := m.Team(inn.BowlingTeam)
		if !bowling.Has(sel.Bowler) {
			return nil, inconsistent(CodeUnknownPlayer, "%s is not in the bowling team", sel.Bowler)
		}
		if err := checkBowler(inn, sel.Bowler); err != nil {
			return nil, err
		}
		c.Bowler = sel.Bowler
	}
	inn.Crease = c
	return []Event{{Type: EventPlayersSelected, Innings: inn.Number}}, nil
}

// Outcome is the result of an accepted delivery.
type Outcome struct {
	Delivery Delivery `json:"delivery"`
	Events   []Event  `json:"events"`
}

// SubmitDelivery validates and appends one ball, then applies its rotation
// and progression effects. On error the match is unchanged.
func (m *Match) SubmitDelivery(in DeliveryInput, id string, now time.Time) (Outcome, error) {
	inn, err := m.requireLive()
	if err != nil {
		return Outcome{}, err
	}
	if in.ExtraType == "" {
		in.ExtraType = ExtraNone
	}
	c, err := m.checkDelivery(inn, in)
	if err != nil {
		return Outcome{}, err
	}

	legalBefore := inn.LegalBalls()
	d := Delivery{
		ID:         id,
		OverNumber: legalBefore / 6,
		BallNumber: legalBefore%6 + 1,
		Batsman:    c.Striker,
		NonStriker: c.NonStriker,
		Bowler:     c.Bowler,
		RunsBatter: in.RunsBatter,
		Extras:     in.Extras,
		ExtraType:  in.ExtraType,
		IsWicket:   in.IsWicket,
		Timestamp:  now,
	}
	if in.IsWicket {
		d.WicketType = in.WicketType
		d.PlayerOut = in.PlayerOut
		d.Catcher = in.Catcher
		d.IncomingEnd = in.IncomingEnd
		if d.IncomingEnd == "" {
			d.IncomingEnd = EndStriker
			if d.PlayerOut == c.NonStriker {
				d.IncomingEnd = EndNonStriker
			}
		}
	}
	overDone := d.IsLegal() && (legalBefore+1)%6 == 0
	solo := m.LastManStanding && c.NonStriker == ""

	inn.PriorCreases = append(inn.PriorCreases, inn.Crease)
	inn.Deliveries = append(inn.Deliveries, d)
	inn.Crease = Rotate(c, d, overDone, solo)

	var events []Event
	if d.IsWicket {
		events = append(events, Event{Type: EventWicket, Innings: inn.Number, Player: d.PlayerOut, Detail: string(d.WicketType)})
	}
	if overDone {
		events = append(events, Event{Type: EventOverComplete, Innings: inn.Number, Player: d.Bowler, Detail: Overs(legalBefore + 1)})
	}
	events = append(events, DetectMilestones(inn.Deliveries)...)

	if reason, done := m.inningsOver(inn); done {
		events = append(events, m.closeInnings(inn, reason)...)
	} else if m.soloAllowed(inn) {
		// The survivor bats alone and always faces.
		if inn.Crease.Striker == "" {
			inn.Crease.Striker = inn.Crease.NonStriker
		}
		inn.Crease.NonStriker = ""
	}
	return Outcome{Delivery: d, Events: events}, nil
}

// UndoLastDelivery removes the most recent delivery of the match and
// restores the crease exactly as it was before that ball. An innings or
// match the ball completed is reopened, and an innings opened by that
// completion is discarded.
func (m *Match) UndoLastDelivery() (Delivery, []Event, error) {
	inn := m.CurrentInnings()
	if inn == nil {
		return Delivery{}, nil, badState(CodeEmptyLog, "nothing to undo")
	}
	if len(inn.Deliveries) == 0 {
		if len(m.Innings) < 2 {
			return Delivery{}, nil, badState(CodeEmptyLog, "nothing to undo")
		}
		m.Innings = m.Innings[:len(m.Innings)-1]
		inn = m.CurrentInnings()
	}

	n := len(inn.Deliveries)
	d := inn.Deliveries[n-1]
	inn.Deliveries = inn.Deliveries[:n-1]
	if k := len(inn.PriorCreases); k > 0 {
		inn.Crease = inn.PriorCreases[k-1]
		inn.PriorCreases = inn.PriorCreases[:k-1]
	}
	inn.Completed = false
	inn.CompletionReason = ""
	inn.Declared = false
	if m.Status == StatusCompleted {
		m.reopen()
	}
	return d, []Event{{Type: EventDeliveryUndone, Innings: inn.Number, Detail: d.ID}}, nil
}

// Declare closes the current innings of a TEST match at the batting
// captain's request.
func (m *Match) Declare() ([]Event, error) {
	inn, err := m.requireLive()
	if err != nil {
		return nil, err
	}
	if m.Format != FormatTest {
		return nil, badState(CodeNotTestFormat, "only TEST innings can be declared")
	}
	if inn.Number == m.MaxInnings() {
		return nil, badState(CodeFinalInnings, "the final innings cannot be declared")
	}
	if len(inn.Deliveries) == 0 {
		return nil, badState(CodeNothingToDeclare, "no ball has been bowled")
	}
	inn.Declared = true
	events := []Event{{Type: EventInningsDeclared, Innings: inn.Number}}
	return append(events, m.closeInnings(inn, ReasonDeclared)...), nil
}
