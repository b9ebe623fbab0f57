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
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// Scenario is a scripted match: two rosters, the toss, and the commands a
// scorer would send, in order.
type Scenario struct {
	ID              string       `yaml:"id"`
	Format          string       `yaml:"format"`
	Overs           *int         `yaml:"overs,omitempty"`
	LastManStanding bool         `yaml:"lastManStanding,omitempty"`
	TeamA           ScenarioTeam `yaml:"teamA"`
	TeamB           ScenarioTeam `yaml:"teamB"`
	Toss            ScenarioToss `yaml:"toss"`
	Steps           []Step       `yaml:"steps"`
}

type ScenarioTeam struct {
	ID      string           `yaml:"id"`
	Name    string           `yaml:"name"`
	Players []ScenarioPlayer `yaml:"players"`
}

type ScenarioPlayer struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Captain bool   `yaml:"captain,omitempty"`
}

type ScenarioToss struct {
	Winner   string `yaml:"winner"`
	Decision string `yaml:"decision"`
}

// Step is one command. Exactly one of Select, Ball, Undo or Declare is set.
// Expect names the rejection code the command must fail with.
type Step struct {
	Select  *Selection `yaml:"select,omitempty"`
	Ball    *Ball      `yaml:"ball,omitempty"`
	Repeat  int        `yaml:"repeat,omitempty"`
	Undo    bool       `yaml:"undo,omitempty"`
	Declare bool       `yaml:"declare,omitempty"`
	Expect  string     `yaml:"expect,omitempty"`
}

type Selection struct {
	Striker    string `yaml:"striker,omitempty"`
	NonStriker string `yaml:"nonStriker,omitempty"`
	Bowler     string `yaml:"bowler,omitempty"`
}

type Ball struct {
	Bowler   string `yaml:"bowler,omitempty"`
	Runs     int    `yaml:"runs,omitempty"`
	Extra    string `yaml:"extra,omitempty"` // WD, NB, B or LB
	Extras   int    `yaml:"extras,omitempty"`
	Wicket   string `yaml:"wicket,omitempty"`
	Out      string `yaml:"out,omitempty"`
	Catcher  string `yaml:"catcher,omitempty"`
	Incoming string `yaml:"incoming,omitempty"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

// ParseScenario decodes a YAML scenario and rejects unknown fields.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	for i, st := range sc.Steps {
		n := 0
		for _, set := range []bool{st.Select != nil, st.Ball != nil, st.Undo, st.Declare} {
			if set {
				n++
			}
		}
		if n != 1 {
			return nil, fmt.Errorf("step %d: exactly one of select, ball, undo or declare is required", i+1)
		}
		if st.Repeat != 0 && st.Ball == nil {
			return nil, fmt.Errorf("step %d: repeat only applies to balls", i+1)
		}
	}
	return &sc, nil
}

func (t ScenarioTeam) team() scoring.Team {
	out := scoring.Team{ID: t.ID, Name: t.Name}
	for _, p := range t.Players {
		out.Players = append(out.Players, scoring.Player{ID: scoring.PlayerID(p.ID), Name: p.Name, IsCaptain: p.Captain})
	}
	return out
}

func (b Ball) input() scoring.DeliveryInput {
	return scoring.DeliveryInput{
		Bowler:      scoring.PlayerID(b.Bowler),
		RunsBatter:  b.Runs,
		Extras:      b.Extras,
		ExtraType:   scoring.ExtraType(strings.ToUpper(b.Extra)),
		IsWicket:    b.Wicket != "",
		WicketType:  scoring.WicketType(strings.ToUpper(b.Wicket)),
		PlayerOut:   scoring.PlayerID(b.Out),
		Catcher:     scoring.PlayerID(b.Catcher),
		IncomingEnd: scoring.End(strings.ToUpper(b.Incoming)),
	}
}

// scenarioEpoch timestamps replayed deliveries so that replays are
// reproducible.
var scenarioEpoch = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

// Run replays the scenario on a new match. onEvent, when not nil, receives
// the events of every accepted command with its 1-based step number.
func (sc *Scenario) Run(onEvent func(step int, ev scoring.Event)) (*scoring.Match, error) {
	id := sc.ID
	if id == "" {
		id = uuid.NewString()
	}
	m, err := scoring.NewMatch(id, scoring.Format(strings.ToUpper(sc.Format)), sc.Overs, sc.LastManStanding, sc.TeamA.team(), sc.TeamB.team())
	if err != nil {
		return nil, err
	}
	emit := func(step int, events []scoring.Event) {
		if onEvent == nil {
			return
		}
		for _, ev := range events {
			onEvent(step, ev)
		}
	}
	events, err := m.RecordToss(sc.Toss.Winner, scoring.TossDecision(strings.ToUpper(sc.Toss.Decision)))
	if err != nil {
		return nil, fmt.Errorf("toss: %w", err)
	}
	emit(0, events)

	balls := 0
	for i, st := range sc.Steps {
		step := i + 1
		times := max(st.Repeat, 1)
		for range times {
			var err error
			switch {
			case st.Select != nil:
				events, err = m.SelectPlayers(scoring.Selection{
					Striker:    scoring.PlayerID(st.Select.Striker),
					NonStriker: scoring.PlayerID(st.Select.NonStriker),
					Bowler:     scoring.PlayerID(st.Select.Bowler),
				})
			case st.Ball != nil:
				balls++
				var out scoring.Outcome
				ballID := uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s/%d", id, balls)).String()
				out, err = m.SubmitDelivery(st.Ball.input(), ballID, scenarioEpoch.Add(time.Duration(balls)*30*time.Second))
				events = out.Events
			case st.Undo:
				_, events, err = m.UndoLastDelivery()
			case st.Declare:
				events, err = m.Declare()
			}
			if err := checkExpectation(st.Expect, err); err != nil {
				return m, fmt.Errorf("step %d: %w", step, err)
			}
			if err == nil {
				emit(step, events)
			}
		}
	}
	return m, nil
}

var errUnexpectedSuccess = errors.New("command was accepted")

func checkExpectation(expect string, err error) error {
	switch {
	case expect == "":
		return err
	case err == nil:
		return fmt.Errorf("%w, expected %s", errUnexpectedSuccess, expect)
	case scoring.CodeOf(err) != expect:
		return fmt.Errorf("expected %s: %w", expect, err)
	}
	return nil
}
