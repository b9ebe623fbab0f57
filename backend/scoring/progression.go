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

import "fmt"

// DefaultT20Overs is the overs cap of a T20 match without custom overs.
const DefaultT20Overs = 20

// MoMWicketPoints is the man of the match weight of one wicket, in runs.
const MoMWicketPoints = 20

// OversCap returns the overs limit per innings, or 0 when unlimited.
func (m *Match) OversCap() int {
	if m.CustomOvers != nil && *m.CustomOvers > 0 {
		return *m.CustomOvers
	}
	if m.Format == FormatT20 {
		return DefaultT20Overs
	}
	return 0
}

// MaxInnings is the number of innings the format allows.
func (m *Match) MaxInnings() int {
	if m.Format == FormatTest {
		return 4
	}
	return 2
}

// allOutAt is the wicket count that ends an innings. With last man standing
// the final batter carries on alone, so every player must be out.
func (m *Match) allOutAt(inn *Innings) int {
	batting, _ := m.Team(inn.BattingTeam)
	if m.LastManStanding {
		return batting.Size()
	}
	return batting.Size() - 1
}

// aggregate sums the runs of every innings the team batted, up to but not
// including innings number before. before <= 0 means all innings.
func (m *Match) aggregate(teamID string, before int) int {
	total := 0
	for _, inn := range m.Innings {
		if before > 0 && inn.Number >= before {
			break
		}
		if inn.BattingTeam == teamID {
			total += inn.Runs()
		}
	}
	return total
}

func (m *Match) inningsBatted(teamID string) int {
	n := 0
	for _, inn := range m.Innings {
		if inn.BattingTeam == teamID {
			n++
		}
	}
	return n
}

// TargetFor returns the score the batting side must reach in inn. Only the
// last innings the format allows has a target.
func (m *Match) TargetFor(inn *Innings) (int, bool) {
	if inn == nil || inn.Number != m.MaxInnings() {
		return 0, false
	}
	lead := m.aggregate(inn.BowlingTeam, inn.Number) - m.aggregate(inn.BattingTeam, inn.Number)
	return lead + 1, true
}

// inningsOver decides whether inn has just ended on its own accord.
func (m *Match) inningsOver(inn *Innings) (CompletionReason, bool) {
	if target, ok := m.TargetFor(inn); ok && inn.Runs() >= target {
		return ReasonTarget, true
	}
	if inn.Wickets() >= m.allOutAt(inn) {
		return ReasonAllOut, true
	}
	if limit := m.OversCap(); limit > 0 && inn.LegalBalls() >= limit*6 {
		return ReasonOvers, true
	}
	return "", false
}

// decided reports whether no further innings can change the result.
func (m *Match) decided(last *Innings) bool {
	if last.CompletionReason == ReasonTarget {
		return true
	}
	if len(m.Innings) >= m.MaxInnings() {
		return true
	}
	if m.Format == FormatTest && len(m.Innings) == 3 {
		// The side due to bat last already leads.
		chasing := m.Innings[1].BattingTeam
		return m.aggregate(chasing, 0) > m.aggregate(m.opponent(chasing), 0)
	}
	return false
}

// closeInnings ends inn and either starts the next innings or completes the
// match.
func (m *Match) closeInnings(inn *Innings, reason CompletionReason) []Event {
	inn.Completed = true
	inn.CompletionReason = reason
	events := []Event{{Type: EventInningsComplete, Innings: inn.Number, Detail: string(reason)}}
	if m.decided(inn) {
		m.complete()
		return append(events, Event{Type: EventMatchComplete, Detail: m.Result.Summary})
	}
	next := m.startInnings(inn.BowlingTeam)
	return append(events, Event{Type: EventInningsStarted, Innings: next.Number})
}

func (m *Match) startInnings(battingTeam string) *Innings {
	inn := &Innings{
		Number:       len(m.Innings) + 1,
		BattingTeam:  battingTeam,
		BowlingTeam:  m.opponent(battingTeam),
		Deliveries:   []Delivery{},
		PriorCreases: []Crease{},
	}
	m.Innings = append(m.Innings, inn)
	return inn
}

func (m *Match) complete() {
	m.Status = StatusCompleted
	m.Result = m.computeResult()
	m.BestBatsman, m.BestBowler, m.ManOfMatch = m.computeAwards()
}

func (m *Match) reopen() {
	m.Status = StatusLive
	m.Result = nil
	m.BestBatsman, m.BestBowler, m.ManOfMatch = "", "", ""
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func (m *Match) computeResult() *Result {
	first := m.Innings[0].BattingTeam
	second := m.opponent(first)
	a, b := m.aggregate(first, 0), m.aggregate(second, 0)
	if a == b {
		return &Result{Tie: true, Summary: "Match tied"}
	}
	winner, loser, margin := first, second, a-b
	if b > a {
		winner, loser, margin = second, first, b-a
	}
	team, _ := m.Team(winner)
	last := m.CurrentInnings()

	switch {
	case m.inningsBatted(winner) == 1 && m.inningsBatted(loser) == 2:
		return &Result{
			Winner:     winner,
			Margin:     margin,
			MarginKind: MarginInningsRuns,
			Summary:    fmt.Sprintf("%s won by an innings and %s", team.Name, plural(margin, "run")),
		}
	case last.BattingTeam == winner:
		left := max(team.Size()-last.Wickets(), 0)
		return &Result{
			Winner:     winner,
			Margin:     left,
			MarginKind: MarginWickets,
			Summary:    fmt.Sprintf("%s won by %s", team.Name, plural(left, "wicket")),
		}
	}
	return &Result{
		Winner:     winner,
		Margin:     margin,
		MarginKind: MarginRuns,
		Summary:    fmt.Sprintf("%s won by %s", team.Name, plural(margin, "run")),
	}
}

type tally struct {
	runs, balls       int
	wickets, conceded int
	batted, bowled    bool
}

// computeAwards picks the best batsman, the best bowler and the man of the
// match over every innings. Ties go to whoever appeared first in the log.
func (m *Match) computeAwards() (bestBat, bestBowl, mom PlayerID) {
	var order []PlayerID
	stats := make(map[PlayerID]*tally)
	get := func(id PlayerID) *tally {
		t, ok := stats[id]
		if !ok {
			t = &tally{}
			stats[id] = t
			order = append(order, id)
		}
		return t
	}
	for _, inn := range m.Innings {
		for _, d := range inn.Deliveries {
			bat := get(d.Batsman)
			bat.batted = true
			bat.runs += d.RunsBatter
			if d.ExtraType != ExtraWide {
				bat.balls++
			}
			bowl := get(d.Bowler)
			bowl.bowled = true
			bowl.conceded += d.RunsBatter
			if !d.IsLegal() {
				bowl.conceded += d.Extras
			}
			if d.IsWicket && d.WicketType.CreditedToBowler() {
				bowl.wickets++
			}
		}
	}

	var bat, bowl *tally
	bestPoints := -1
	for _, id := range order {
		t := stats[id]
		if t.batted && (bat == nil || t.runs > bat.runs || (t.runs == bat.runs && t.balls < bat.balls)) {
			bat, bestBat = t, id
		}
		if t.bowled && (bowl == nil || t.wickets > bowl.wickets || (t.wickets == bowl.wickets && t.conceded < bowl.conceded)) {
			bowl, bestBowl = t, id
		}
		if p := t.runs + MoMWicketPoints*t.wickets; p > bestPoints {
			bestPoints, mom = p, id
		}
	}
	return bestBat, bestBowl, mom
}
