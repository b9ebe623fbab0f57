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
	"strconv"
)

// RecentBallsLimit is the length of the recent balls feed.
const RecentBallsLimit = 12

// BattingLine is one row of a batting card.
type BattingLine struct {
	Player     PlayerID `json:"player"`
	Name       string   `json:"name"`
	Runs       int      `json:"runs"`
	Balls      int      `json:"balls"`
	Fours      int      `json:"fours"`
	Sixes      int      `json:"sixes"`
	StrikeRate string   `json:"strikeRate"`
	Out        bool     `json:"out"`
	Dismissal  string   `json:"dismissal,omitempty"`
}

// BowlingLine is one row of a bowling card.
type BowlingLine struct {
	Player     PlayerID `json:"player"`
	Name       string   `json:"name"`
	LegalBalls int      `json:"legalBalls"`
	Overs      string   `json:"overs"`
	Conceded   int      `json:"conceded"`
	Wickets    int      `json:"wickets"`
	Economy    string   `json:"economy"`
}

// FallOfWicket records the team score when a wicket fell.
type FallOfWicket struct {
	Score  int      `json:"score"`
	Wicket int      `json:"wicket"`
	Player PlayerID `json:"player"`
	Name   string   `json:"name"`
	Over   string   `json:"over"`
}

// ExtrasBreakdown splits the innings extras by type.
type ExtrasBreakdown struct {
	Wides   int `json:"wides"`
	NoBalls int `json:"noBalls"`
	Byes    int `json:"byes"`
	LegByes int `json:"legByes"`
	Total   int `json:"total"`
}

// Totals is the team summary of an innings.
type Totals struct {
	Runs       int             `json:"runs"`
	Wickets    int             `json:"wickets"`
	LegalBalls int             `json:"legalBalls"`
	Overs      string          `json:"overs"`
	Extras     ExtrasBreakdown `json:"extras"`
	RunRate    string          `json:"runRate"`
}

// StrikeRate formats runs per hundred balls to one decimal place.
func StrikeRate(runs, balls int) string {
	if balls == 0 {
		return "0.0"
	}
	return strconv.FormatFloat(float64(runs)*100/float64(balls), 'f', 1, 64)
}

// Economy formats runs conceded per six legal balls to two decimal places.
func Economy(conceded, legal int) string {
	if legal == 0 {
		return "0.00"
	}
	return strconv.FormatFloat(float64(conceded)*6/float64(legal), 'f', 2, 64)
}

// RunRate is Economy seen from the batting side.
func RunRate(runs, legal int) string {
	return Economy(runs, legal)
}

// RequiredRunRate returns "-" when there is no finite number of balls left.
func RequiredRunRate(needed, ballsLeft int) string {
	if ballsLeft <= 0 {
		return "-"
	}
	if needed < 0 {
		needed = 0
	}
	return strconv.FormatFloat(float64(needed)*6/float64(ballsLeft), 'f', 2, 64)
}

// Overs formats a legal ball count as "O.B".
func Overs(legal int) string {
	return fmt.Sprintf("%d.%d", legal/6, legal%6)
}

// Batting derives the batting figures of one player from an innings log.
func Batting(ds []Delivery, player PlayerID) BattingLine {
	line := BattingLine{Player: player}
	for _, d := range ds {
		if d.IsWicket && d.PlayerOut == player {
			line.Out = true
		}
		if d.Batsman != player {
			continue
		}
		line.Runs += d.RunsBatter
		if d.ExtraType != ExtraWide {
			line.Balls++
		}
		switch d.RunsBatter {
		case 4:
			line.Fours++
		case 6:
			line.Sixes++
		}
	}
	line.StrikeRate = StrikeRate(line.Runs, line.Balls)
	return line
}

// Bowling derives the bowling figures of one player from an innings log.
// Byes and leg byes are not charged to the bowler and run outs are not
// credited.
func Bowling(ds []Delivery, player PlayerID) BowlingLine {
	line := BowlingLine{Player: player}
	for _, d := range ds {
		if d.Bowler != player {
			continue
		}
		if d.IsLegal() {
			line.LegalBalls++
		}
		line.Conceded += d.RunsBatter
		if !d.IsLegal() {
			line.Conceded += d.Extras
		}
		if d.IsWicket && d.WicketType.CreditedToBowler() {
			line.Wickets++
		}
	}
	line.Overs = Overs(line.LegalBalls)
	line.Economy = Economy(line.Conceded, line.LegalBalls)
	return line
}

// InningsTotals derives the team totals from an innings log.
func InningsTotals(ds []Delivery) Totals {
	var t Totals
	for _, d := range ds {
		t.Runs += d.TotalRuns()
		if d.IsWicket {
			t.Wickets++
		}
		if d.IsLegal() {
			t.LegalBalls++
		}
		switch d.ExtraType {
		case ExtraWide:
			t.Extras.Wides += d.Extras
		case ExtraNoBall:
			t.Extras.NoBalls += d.Extras
		case ExtraBye:
			t.Extras.Byes += d.Extras
		case ExtraLegBye:
			t.Extras.LegByes += d.Extras
		}
		t.Extras.Total += d.Extras
	}
	t.Overs = Overs(t.LegalBalls)
	t.RunRate = RunRate(t.Runs, t.LegalBalls)
	return t
}

// DismissalText renders the scorecard narrative for a wicket delivery. Names
// are looked up in the fielding side's roster.
func DismissalText(d Delivery, fielding Team) string {
	bowler := fielding.NameOf(d.Bowler, "bowler")
	switch d.WicketType {
	case WicketBowled:
		return "b " + bowler
	case WicketCaught:
		if c, ok := fielding.Player(d.Catcher); ok {
			return fmt.Sprintf("c %s b %s", c.Name, bowler)
		}
		return "c b " + bowler
	case WicketLBW:
		return "lbw b " + bowler
	case WicketStumped:
		return "st b " + bowler
	case WicketRunOut:
		return "run out"
	case WicketHitWicket:
		return "hit wicket b " + bowler
	}
	return "out"
}

// FallOfWickets lists the wickets of an innings in delivery order.
func FallOfWickets(ds []Delivery, batting Team) []FallOfWicket {
	var (
		out     []FallOfWicket
		score   int
		wickets int
	)
	for _, d := range ds {
		score += d.TotalRuns()
		if !d.IsWicket {
			continue
		}
		wickets++
		out = append(out, FallOfWicket{
			Score:  score,
			Wicket: wickets,
			Player: d.PlayerOut,
			Name:   batting.NameOf(d.PlayerOut, string(d.PlayerOut)),
			Over:   fmt.Sprintf("%d.%d", d.OverNumber, d.BallNumber),
		})
	}
	return out
}

// BallLabel is the short label of a delivery in the recent balls feed.
func BallLabel(d Delivery) string {
	switch {
	case d.IsWicket:
		return "W"
	case d.ExtraType == ExtraWide:
		return "WD"
	case d.ExtraType == ExtraNoBall:
		return "NB"
	case d.ExtraType == ExtraBye:
		return "B"
	case d.ExtraType == ExtraLegBye:
		return "LB"
	}
	return strconv.Itoa(d.RunsBatter)
}

// RecentBalls returns the labels of the last n deliveries, newest first.
func RecentBalls(ds []Delivery, n int) []string {
	out := make([]string, 0, min(n, len(ds)))
	for i := len(ds) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, BallLabel(ds[i]))
	}
	return out
}

// BattingCard lists everyone who has come to the crease, in order of first
// appearance, including the current pair before they face a ball.
func BattingCard(inn *Innings, batting, fielding Team) []BattingLine {
	var order []PlayerID
	seen := make(map[PlayerID]bool)
	add := func(id PlayerID) {
		if id != "" && !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	for _, d := range inn.Deliveries {
		add(d.Batsman)
		add(d.NonStriker)
	}
	add(inn.Crease.Striker)
	add(inn.Crease.NonStriker)

	card := make([]BattingLine, 0, len(order))
	for _, id := range order {
		line := Batting(inn.Deliveries, id)
		line.Name = batting.NameOf(id, string(id))
		for _, d := range inn.Deliveries {
			if d.IsWicket && d.PlayerOut == id {
				line.Dismissal = DismissalText(d, fielding)
				break
			}
		}
		card = append(card, line)
	}
	return card
}

// BowlingCard lists everyone who has bowled, in order of first appearance.
func BowlingCard(inn *Innings, fielding Team) []BowlingLine {
	var order []PlayerID
	seen := make(map[PlayerID]bool)
	for _, d := range inn.Deliveries {
		if !seen[d.Bowler] {
			seen[d.Bowler] = true
			order = append(order, d.Bowler)
		}
	}
	card := make([]BowlingLine, 0, len(order))
	for _, id := range order {
		line := Bowling(inn.Deliveries, id)
		line.Name = fielding.NameOf(id, string(id))
		card = append(card, line)
	}
	return card
}
