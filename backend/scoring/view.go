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

// Chase describes the state of a run chase.
type Chase struct {
	Target          int    `json:"target"`
	RunsNeeded      int    `json:"runsNeeded"`
	BallsLeft       int    `json:"ballsLeft"` // -1 when overs are unlimited
	RequiredRunRate string `json:"requiredRunRate"`
}

// InningsView is the derived scoreboard of one innings.
type InningsView struct {
	Number           int              `json:"number"`
	BattingTeam      string           `json:"battingTeam"`
	BattingTeamName  string           `json:"battingTeamName"`
	BowlingTeam      string           `json:"bowlingTeam"`
	BowlingTeamName  string           `json:"bowlingTeamName"`
	Totals           Totals           `json:"totals"`
	Batting          []BattingLine    `json:"batting"`
	Bowling          []BowlingLine    `json:"bowling"`
	FallOfWickets    []FallOfWicket   `json:"fallOfWickets"`
	RecentBalls      []string         `json:"recentBalls"`
	Crease           Crease           `json:"crease"`
	Chase            *Chase           `json:"chase,omitempty"`
	Completed        bool             `json:"completed"`
	CompletionReason CompletionReason `json:"completionReason,omitempty"`
	Declared         bool             `json:"declared,omitempty"`
}

// Award names a player honoured at the end of the match.
type Award struct {
	Player PlayerID `json:"player"`
	Name   string   `json:"name"`
}

// MatchView is everything a scoreboard displays, derived from the match.
type MatchView struct {
	ID              string        `json:"id"`
	Format          Format        `json:"format"`
	CustomOvers     *int          `json:"customOvers,omitempty"`
	OversCap        int           `json:"oversCap"`
	LastManStanding bool          `json:"lastManStanding"`
	TeamA           Team          `json:"teamA"`
	TeamB           Team          `json:"teamB"`
	Status          Status        `json:"status"`
	TossWinner      string        `json:"tossWinner,omitempty"`
	TossDecision    TossDecision  `json:"tossDecision,omitempty"`
	Innings         []InningsView `json:"innings"`
	Result          *Result       `json:"result,omitempty"`
	ManOfMatch      *Award        `json:"manOfMatch,omitempty"`
	BestBatsman     *Award        `json:"bestBatsman,omitempty"`
	BestBowler      *Award        `json:"bestBowler,omitempty"`
}

// PlayerName resolves a player of either team.
func (m *Match) PlayerName(id PlayerID) string {
	if p, ok := m.TeamA.Player(id); ok {
		return p.Name
	}
	return m.TeamB.NameOf(id, string(id))
}

func (m *Match) award(id PlayerID) *Award {
	if id == "" {
		return nil
	}
	return &Award{Player: id, Name: m.PlayerName(id)}
}

// ChaseFor returns the chase of inn, or nil when inn has no target.
func (m *Match) ChaseFor(inn *Innings) *Chase {
	target, ok := m.TargetFor(inn)
	if !ok {
		return nil
	}
	runs := inn.Runs()
	c := &Chase{
		Target:     target,
		RunsNeeded: max(target-runs, 0),
		BallsLeft:  -1,
	}
	if limit := m.OversCap(); limit > 0 {
		c.BallsLeft = max(limit*6-inn.LegalBalls(), 0)
	}
	c.RequiredRunRate = RequiredRunRate(c.RunsNeeded, c.BallsLeft)
	return c
}

// ViewInnings derives the scoreboard of one innings.
func (m *Match) ViewInnings(inn *Innings) InningsView {
	batting, _ := m.Team(inn.BattingTeam)
	bowling, _ := m.Team(inn.BowlingTeam)
	return InningsView{
		Number:           inn.Number,
		BattingTeam:      inn.BattingTeam,
		BattingTeamName:  batting.Name,
		BowlingTeam:      inn.BowlingTeam,
		BowlingTeamName:  bowling.Name,
		Totals:           InningsTotals(inn.Deliveries),
		Batting:          BattingCard(inn, batting, bowling),
		Bowling:          BowlingCard(inn, bowling),
		FallOfWickets:    FallOfWickets(inn.Deliveries, batting),
		RecentBalls:      RecentBalls(inn.Deliveries, RecentBallsLimit),
		Crease:           inn.Crease,
		Chase:            m.ChaseFor(inn),
		Completed:        inn.Completed,
		CompletionReason: inn.CompletionReason,
		Declared:         inn.Declared,
	}
}

// View derives the full scoreboard. It does not modify the match.
func (m *Match) View() MatchView {
	v := MatchView{
		ID:              m.ID,
		Format:          m.Format,
		CustomOvers:     m.CustomOvers,
		OversCap:        m.OversCap(),
		LastManStanding: m.LastManStanding,
		TeamA:           m.TeamA,
		TeamB:           m.TeamB,
		Status:          m.Status,
		TossWinner:      m.TossWinner,
		TossDecision:    m.TossDecision,
		Innings:         make([]InningsView, 0, len(m.Innings)),
		Result:          m.Result,
		ManOfMatch:      m.award(m.ManOfMatch),
		BestBatsman:     m.award(m.BestBatsman),
		BestBowler:      m.award(m.BestBowler),
	}
	for _, inn := range m.Innings {
		v.Innings = append(v.Innings, m.ViewInnings(inn))
	}
	return v
}
