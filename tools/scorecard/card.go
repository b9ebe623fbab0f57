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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// writeView prints v in the requested output format.
func writeView(w io.Writer, v scoring.MatchView, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	writeScorecard(w, v)
	return nil
}

func writeScorecard(w io.Writer, v scoring.MatchView) {
	fmt.Fprintf(w, "%s v %s, %s\n", v.TeamA.Name, v.TeamB.Name, formatLabel(v))
	if v.TossWinner != "" {
		fmt.Fprintf(w, "Toss: %s, elected to %s\n", teamName(v, v.TossWinner), strings.ToLower(string(v.TossDecision)))
	} else {
		fmt.Fprintln(w, "Toss: not recorded")
	}
	for _, inn := range v.Innings {
		fmt.Fprintln(w)
		writeInnings(w, inn)
	}
	fmt.Fprintln(w)
	if v.Result != nil {
		fmt.Fprintf(w, "Result: %s\n", v.Result.Summary)
	} else {
		fmt.Fprintf(w, "Status: %s\n", v.Status)
	}
	for _, a := range []struct {
		label string
		award *scoring.Award
	}{
		{"Man of the match", v.ManOfMatch},
		{"Best batsman", v.BestBatsman},
		{"Best bowler", v.BestBowler},
	} {
		if a.award != nil {
			fmt.Fprintf(w, "%s: %s\n", a.label, a.award.Name)
		}
	}
}

func formatLabel(v scoring.MatchView) string {
	switch {
	case v.OversCap == 0:
		return string(v.Format)
	case v.OversCap == 1:
		return fmt.Sprintf("%s, 1 over", v.Format)
	}
	return fmt.Sprintf("%s, %d overs", v.Format, v.OversCap)
}

func teamName(v scoring.MatchView, id string) string {
	if id == v.TeamB.ID {
		return v.TeamB.Name
	}
	return v.TeamA.Name
}

func inningsTitle(inn scoring.InningsView) string {
	tot := inn.Totals
	title := fmt.Sprintf("Innings %d: %s %d/%d (%s ov)", inn.Number, inn.BattingTeamName, tot.Runs, tot.Wickets, tot.Overs)
	if inn.Declared {
		title += " dec"
	}
	return title
}

func writeInnings(w io.Writer, inn scoring.InningsView) {
	fmt.Fprintln(w, inningsTitle(inn))
	bat := table.NewWriter()
	bat.SetStyle(table.StyleLight)
	bat.AppendHeader(table.Row{"Batter", "Dismissal", "R", "B", "4s", "6s", "SR"})
	for _, line := range inn.Batting {
		name := line.Name
		if !inn.Completed && line.Player == inn.Crease.Striker {
			name += "*"
		}
		how := line.Dismissal
		if !line.Out {
			how = "not out"
		}
		bat.AppendRow(table.Row{name, how, line.Runs, line.Balls, line.Fours, line.Sixes, line.StrikeRate})
	}
	ex := inn.Totals.Extras
	bat.AppendSeparator()
	bat.AppendRow(table.Row{"Extras", fmt.Sprintf("w %d, nb %d, b %d, lb %d", ex.Wides, ex.NoBalls, ex.Byes, ex.LegByes), ex.Total})
	bat.AppendRow(table.Row{"Total", fmt.Sprintf("%d wkts, %s ov, RR %s", inn.Totals.Wickets, inn.Totals.Overs, inn.Totals.RunRate), inn.Totals.Runs})
	fmt.Fprintln(w, bat.Render())

	if len(inn.Bowling) > 0 {
		bowl := table.NewWriter()
		bowl.SetStyle(table.StyleLight)
		bowl.AppendHeader(table.Row{"Bowler", "O", "R", "W", "Econ"})
		for _, line := range inn.Bowling {
			bowl.AppendRow(table.Row{line.Name, line.Overs, line.Conceded, line.Wickets, line.Economy})
		}
		fmt.Fprintln(w, bowl.Render())
	}

	if len(inn.FallOfWickets) > 0 {
		parts := make([]string, 0, len(inn.FallOfWickets))
		for _, f := range inn.FallOfWickets {
			parts = append(parts, fmt.Sprintf("%d-%d (%s, %s ov)", f.Wicket, f.Score, f.Name, f.Over))
		}
		fmt.Fprintf(w, "Fall of wickets: %s\n", strings.Join(parts, ", "))
	}
	if c := inn.Chase; c != nil && !inn.Completed {
		if c.BallsLeft < 0 {
			fmt.Fprintf(w, "Target %d: need %d\n", c.Target, c.RunsNeeded)
		} else {
			fmt.Fprintf(w, "Target %d: need %d from %d balls (RRR %s)\n", c.Target, c.RunsNeeded, c.BallsLeft, c.RequiredRunRate)
		}
	}
	if !inn.Completed && len(inn.RecentBalls) > 0 {
		fmt.Fprintf(w, "Recent: %s\n", strings.Join(inn.RecentBalls, " "))
	}
	if inn.Completed {
		fmt.Fprintf(w, "Innings closed: %s\n", strings.ToLower(strings.ReplaceAll(string(inn.CompletionReason), "_", " ")))
	}
}
