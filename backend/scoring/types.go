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

// Package scoring implements the ball-by-ball cricket scoring core: the
// delivery state machine and the statistics derived from the delivery log.
// Nothing in this package performs I/O.
package scoring

import (
	"slices"
	"time"
)

// PlayerID is the canonical player identifier. Ids are compared with exact
// string equality everywhere.
type PlayerID string

// Format is the match format.
type Format string

const (
	FormatTest Format = "TEST"
	FormatT20  Format = "T20"
)

// Status is the lifecycle state of a match.
type Status string

const (
	StatusSetup     Status = "SETUP"
	StatusLive      Status = "LIVE"
	StatusCompleted Status = "COMPLETED"
)

// TossDecision is what the toss winner elected to do.
type TossDecision string

const (
	DecisionBat  TossDecision = "BAT"
	DecisionBowl TossDecision = "BOWL"
)

// ExtraType classifies the extras of a delivery.
type ExtraType string

const (
	ExtraNone   ExtraType = "NONE"
	ExtraWide   ExtraType = "WD"
	ExtraNoBall ExtraType = "NB"
	ExtraBye    ExtraType = "B"
	ExtraLegBye ExtraType = "LB"
)

// IsLegal reports whether a delivery with this extra type counts toward the
// six balls of an over.
func (e ExtraType) IsLegal() bool {
	return e != ExtraWide && e != ExtraNoBall
}

func (e ExtraType) valid() bool {
	switch e {
	case ExtraNone, ExtraWide, ExtraNoBall, ExtraBye, ExtraLegBye:
		return true
	}
	return false
}

// WicketType is the mode of dismissal.
type WicketType string

const (
	WicketBowled    WicketType = "BOWLED"
	WicketCaught    WicketType = "CAUGHT"
	WicketLBW       WicketType = "LBW"
	WicketStumped   WicketType = "STUMPED"
	WicketRunOut    WicketType = "RUN_OUT"
	WicketHitWicket WicketType = "HIT_WICKET"
)

func (w WicketType) valid() bool {
	switch w {
	case WicketBowled, WicketCaught, WicketLBW, WicketStumped, WicketRunOut, WicketHitWicket:
		return true
	}
	return false
}

// CreditedToBowler reports whether the bowler is credited with the wicket.
func (w WicketType) CreditedToBowler() bool {
	return w != WicketRunOut
}

// End names one of the two batting slots.
type End string

const (
	EndStriker    End = "STRIKER"
	EndNonStriker End = "NON_STRIKER"
)

// CompletionReason records why an innings ended.
type CompletionReason string

const (
	ReasonAllOut   CompletionReason = "ALL_OUT"
	ReasonOvers    CompletionReason = "OVERS"
	ReasonTarget   CompletionReason = "TARGET"
	ReasonDeclared CompletionReason = "DECLARED"
)

// MarginKind is the unit of a victory margin.
type MarginKind string

const (
	MarginRuns        MarginKind = "RUNS"
	MarginWickets     MarginKind = "WICKETS"
	MarginInningsRuns MarginKind = "INNINGS_RUNS"
)

// Player is a member of a team roster.
type Player struct {
	ID        PlayerID `json:"id"`
	Name      string   `json:"name"`
	IsCaptain bool     `json:"isCaptain,omitempty"`
}

// Team is an ordered roster. The roster is fixed for the lifetime of a match.
type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Players []Player `json:"players"`
}

// Size returns the number of players on the roster.
func (t Team) Size() int {
	return len(t.Players)
}

// Player looks up a roster member by id.
func (t Team) Player(id PlayerID) (Player, bool) {
	for _, p := range t.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Has reports whether id is on the roster.
func (t Team) Has(id PlayerID) bool {
	_, ok := t.Player(id)
	return ok
}

// NameOf returns the player's name, or fallback when the id is not on the
// roster.
func (t Team) NameOf(id PlayerID, fallback string) string {
	if p, ok := t.Player(id); ok {
		return p.Name
	}
	return fallback
}

// Delivery is one ball bowled. Deliveries are never modified after they are
// appended to an innings.
type Delivery struct {
	ID          string     `json:"id"`
	OverNumber  int        `json:"overNumber"`
	BallNumber  int        `json:"ballNumber"`
	Batsman     PlayerID   `json:"batsman"`
	NonStriker  PlayerID   `json:"nonStriker,omitempty"`
	Bowler      PlayerID   `json:"bowler"`
	RunsBatter  int        `json:"runsBatter"`
	Extras      int        `json:"extras"`
	ExtraType   ExtraType  `json:"extraType"`
	IsWicket    bool       `json:"isWicket"`
	WicketType  WicketType `json:"wicketType,omitempty"`
	PlayerOut   PlayerID   `json:"playerOut,omitempty"`
	Catcher     PlayerID   `json:"catcher,omitempty"`
	IncomingEnd End        `json:"incomingEnd,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// IsLegal reports whether the delivery counts toward the over.
func (d Delivery) IsLegal() bool {
	return d.ExtraType.IsLegal()
}

// TotalRuns is the team total contributed by the delivery.
func (d Delivery) TotalRuns() int {
	return d.RunsBatter + d.Extras
}

// Crease holds who is currently batting and bowling in an innings. It is
// stored with the innings and updated together with every append.
type Crease struct {
	Striker    PlayerID `json:"striker,omitempty"`
	NonStriker PlayerID `json:"nonStriker,omitempty"`
	Bowler     PlayerID `json:"bowler,omitempty"`
}

// Innings is one team's turn at batting.
type Innings struct {
	Number           int              `json:"number"`
	BattingTeam      string           `json:"battingTeam"`
	BowlingTeam      string           `json:"bowlingTeam"`
	Deliveries       []Delivery       `json:"deliveries"`
	Crease           Crease           `json:"crease"`
	PriorCreases     []Crease         `json:"priorCreases"`
	Completed        bool             `json:"completed"`
	CompletionReason CompletionReason `json:"completionReason,omitempty"`
	Declared         bool             `json:"declared,omitempty"`
}

// LegalBalls counts the legal deliveries of the innings.
func (inn *Innings) LegalBalls() int {
	n := 0
	for _, d := range inn.Deliveries {
		if d.IsLegal() {
			n++
		}
	}
	return n
}

// Runs is the innings total, recomputed from the log.
func (inn *Innings) Runs() int {
	n := 0
	for _, d := range inn.Deliveries {
		n += d.TotalRuns()
	}
	return n
}

// Wickets counts every dismissal, run outs included.
func (inn *Innings) Wickets() int {
	n := 0
	for _, d := range inn.Deliveries {
		if d.IsWicket {
			n++
		}
	}
	return n
}

// Dismissed reports whether id has been dismissed in this innings.
func (inn *Innings) Dismissed(id PlayerID) bool {
	for _, d := range inn.Deliveries {
		if d.IsWicket && d.PlayerOut == id {
			return true
		}
	}
	return false
}

func (inn *Innings) lastLegal() (Delivery, bool) {
	for i := len(inn.Deliveries) - 1; i >= 0; i-- {
		if inn.Deliveries[i].IsLegal() {
			return inn.Deliveries[i], true
		}
	}
	return Delivery{}, false
}

func (inn *Innings) clone() *Innings {
	c := *inn
	c.Deliveries = slices.Clone(inn.Deliveries)
	c.PriorCreases = slices.Clone(inn.PriorCreases)
	return &c
}

// Result is the outcome of a completed match.
type Result struct {
	Winner     string     `json:"winner,omitempty"`
	Tie        bool       `json:"tie,omitempty"`
	Margin     int        `json:"margin,omitempty"`
	MarginKind MarginKind `json:"marginKind,omitempty"`
	Summary    string     `json:"summary"`
}

// Match is the aggregate root. All mutations go through its methods, which
// either apply completely or return a *RejectError and leave the match
// untouched.
type Match struct {
	ID              string       `json:"id"`
	Format          Format       `json:"format"`
	CustomOvers     *int         `json:"customOvers,omitempty"`
	LastManStanding bool         `json:"lastManStanding"`
	TeamA           Team         `json:"teamA"`
	TeamB           Team         `json:"teamB"`
	Status          Status       `json:"status"`
	TossWinner      string       `json:"tossWinner,omitempty"`
	TossDecision    TossDecision `json:"tossDecision,omitempty"`
	Innings         []*Innings   `json:"innings"`
	Result          *Result      `json:"result,omitempty"`
	ManOfMatch      PlayerID     `json:"manOfMatch,omitempty"`
	BestBatsman     PlayerID     `json:"bestBatsman,omitempty"`
	BestBowler      PlayerID     `json:"bestBowler,omitempty"`
	OwnerID         string       `json:"ownerId,omitempty"`
	Scorers         []string     `json:"scorers,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// Clone returns a deep copy of the match.
func (m *Match) Clone() *Match {
	c := *m
	if m.CustomOvers != nil {
		v := *m.CustomOvers
		c.CustomOvers = &v
	}
	c.TeamA.Players = slices.Clone(m.TeamA.Players)
	c.TeamB.Players = slices.Clone(m.TeamB.Players)
	c.Innings = make([]*Innings, len(m.Innings))
	for i, inn := range m.Innings {
		c.Innings[i] = inn.clone()
	}
	if m.Result != nil {
		r := *m.Result
		c.Result = &r
	}
	c.Scorers = slices.Clone(m.Scorers)
	return &c
}

// Team returns the team with the given id.
func (m *Match) Team(id string) (Team, bool) {
	switch id {
	case m.TeamA.ID:
		return m.TeamA, true
	case m.TeamB.ID:
		return m.TeamB, true
	}
	return Team{}, false
}

func (m *Match) opponent(id string) string {
	if id == m.TeamA.ID {
		return m.TeamB.ID
	}
	return m.TeamA.ID
}

// CurrentInnings returns the latest innings, or nil before the toss.
func (m *Match) CurrentInnings() *Innings {
	if len(m.Innings) == 0 {
		return nil
	}
	return m.Innings[len(m.Innings)-1]
}
