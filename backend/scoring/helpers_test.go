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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testTeam(id string, size int) Team {
	t := Team{ID: id, Name: "Team " + id}
	for i := 1; i <= size; i++ {
		t.Players = append(t.Players, Player{
			ID:        PlayerID(fmt.Sprintf("%s%d", id, i)),
			Name:      fmt.Sprintf("%s Player %d", id, i),
			IsCaptain: i == 1,
		})
	}
	return t
}

func overs(n int) *int { return &n }

// newLiveMatch returns a match where team A bats first with A1 on strike, A2
// at the other end and B1 bowling.
func newLiveMatch(t *testing.T, format Format, customOvers *int, lms bool, size int) *Match {
	t.Helper()
	m, err := NewMatch("m1", format, customOvers, lms, testTeam("A", size), testTeam("B", size))
	require.NoError(t, err)
	_, err = m.RecordToss("A", DecisionBat)
	require.NoError(t, err)
	_, err = m.SelectPlayers(Selection{Striker: "A1", NonStriker: "A2", Bowler: "B1"})
	require.NoError(t, err)
	return m
}

// prepare fills empty crease slots with the next unused batter and
// alternates the first two bowlers of the fielding side by over.
func prepare(t *testing.T, m *Match) {
	t.Helper()
	inn := m.CurrentInnings()
	batting, _ := m.Team(inn.BattingTeam)
	bowling, _ := m.Team(inn.BowlingTeam)
	used := map[PlayerID]bool{inn.Crease.Striker: true, inn.Crease.NonStriker: true}
	for _, d := range inn.Deliveries {
		used[d.Batsman] = true
		used[d.NonStriker] = true
	}
	next := func() PlayerID {
		for _, p := range batting.Players {
			if !used[p.ID] {
				used[p.ID] = true
				return p.ID
			}
		}
		return ""
	}
	var sel Selection
	if inn.Crease.Striker == "" {
		sel.Striker = next()
	}
	if inn.Crease.NonStriker == "" && !m.soloAllowed(inn) {
		sel.NonStriker = next()
	}
	if inn.Crease.Bowler == "" {
		sel.Bowler = bowling.Players[(inn.LegalBalls()/6)%2].ID
	}
	if sel != (Selection{}) {
		_, err := m.SelectPlayers(sel)
		require.NoError(t, err)
	}
}

func deliveryCount(m *Match) int {
	n := 0
	for _, inn := range m.Innings {
		n += len(inn.Deliveries)
	}
	return n
}

func bowl(t *testing.T, m *Match, in DeliveryInput) Outcome {
	t.Helper()
	prepare(t, m)
	out, err := m.SubmitDelivery(in, fmt.Sprintf("d%d", deliveryCount(m)), t0)
	require.NoError(t, err)
	return out
}

// bowlOut dismisses the current striker.
func bowlOut(t *testing.T, m *Match, wt WicketType) Outcome {
	t.Helper()
	prepare(t, m)
	striker := m.CurrentInnings().Crease.Striker
	out, err := m.SubmitDelivery(DeliveryInput{IsWicket: true, WicketType: wt, PlayerOut: striker},
		fmt.Sprintf("d%d", deliveryCount(m)), t0)
	require.NoError(t, err)
	return out
}

func runs(n int) DeliveryInput {
	return DeliveryInput{RunsBatter: n}
}

func bowlOver(t *testing.T, m *Match, perBall int) {
	t.Helper()
	for range 6 {
		bowl(t, m, runs(perBall))
	}
}

func hasEvent(events []Event, typ EventType) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}
