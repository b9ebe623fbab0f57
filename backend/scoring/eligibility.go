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

// DeliveryInput is what the scorer records for one ball. The batters come
// from the crease. Bowler, when set, replaces the crease bowler for this ball.
type DeliveryInput struct {
	Bowler      PlayerID   `json:"bowler,omitempty"`
	RunsBatter  int        `json:"runsBatter"`
	Extras      int        `json:"extras"`
	ExtraType   ExtraType  `json:"extraType,omitempty"`
	IsWicket    bool       `json:"isWicket,omitempty"`
	WicketType  WicketType `json:"wicketType,omitempty"`
	PlayerOut   PlayerID   `json:"playerOut,omitempty"`
	Catcher     PlayerID   `json:"catcher,omitempty"`
	IncomingEnd End        `json:"incomingEnd,omitempty"`
}

// soloAllowed reports whether the last remaining batter may bat alone.
func (m *Match) soloAllowed(inn *Innings) bool {
	if !m.LastManStanding {
		return false
	}
	batting, _ := m.Team(inn.BattingTeam)
	return inn.Wickets() >= batting.Size()-1
}

// checkBowler rejects a bowler who bowled the previous over when a new over
// is about to start.
func checkBowler(inn *Innings, bowler PlayerID) error {
	legal := inn.LegalBalls()
	if legal == 0 || legal%6 != 0 {
		return nil
	}
	if last, ok := inn.lastLegal(); ok && last.Bowler == bowler {
		return invalid(CodeConsecutiveOver, "%s bowled the previous over", bowler)
	}
	return nil
}

// checkBatter validates a player about to occupy a batting slot.
func (m *Match) checkBatter(inn *Innings, id PlayerID) error {
	batting, _ := m.Team(inn.BattingTeam)
	if !batting.Has(id) {
		return inconsistent(CodeUnknownPlayer, "%s is not in the batting team", id)
	}
	if inn.Dismissed(id) {
		return invalid(CodeBatterDismissed, "%s is already out", id)
	}
	return nil
}

// checkDelivery runs every precondition of a delivery against the current
// crease and returns the crease the ball will be bowled from.
func (m *Match) checkDelivery(inn *Innings, in DeliveryInput) (Crease, error) {
	c := inn.Crease
	if in.Bowler != "" {
		c.Bowler = in.Bowler
	}
	if c.Striker == "" {
		return c, invalid(CodeMissingStriker, "no striker selected")
	}
	if c.NonStriker == "" && !m.soloAllowed(inn) {
		return c, invalid(CodeMissingNonStriker, "no non-striker selected")
	}
	if c.Bowler == "" {
		return c, invalid(CodeMissingBowler, "no bowler selected")
	}
	if c.Striker == c.NonStriker {
		return c, invalid(CodeSameBatter, "%s cannot bat at both ends", c.Striker)
	}
	for _, id := range []PlayerID{c.Striker, c.NonStriker} {
		if id == "" {
			continue
		}
		if err := m.checkBatter(inn, id); err != nil {
			return c, err
		}
	}
	bowling, _ := m.Team(inn.BowlingTeam)
	if !bowling.Has(c.Bowler) {
		return c, inconsistent(CodeUnknownPlayer, "%s is not in the bowling team", c.Bowler)
	}
	if err := checkBowler(inn, c.Bowler); err != nil {
		return c, err
	}
	if err := checkShape(in, c); err != nil {
		return c, err
	}
	if in.Catcher != "" && !bowling.Has(in.Catcher) {
		return c, inconsistent(CodeUnknownPlayer, "catcher %s is not in the bowling team", in.Catcher)
	}
	return c, nil
}

// checkShape validates the recorded fields of a ball. in.ExtraType must
// already be normalized.
func checkShape(in DeliveryInput, c Crease) error {
	et := in.ExtraType
	switch {
	case !et.valid():
		return invalid(CodeMalformed, "unknown extra type %q", et)
	case in.RunsBatter < 0 || in.RunsBatter > 6:
		return invalid(CodeMalformed, "runs off the bat must be between 0 and 6, got %d", in.RunsBatter)
	case in.Extras < 0:
		return invalid(CodeMalformed, "extras cannot be negative")
	case et == ExtraNone && in.Extras != 0:
		return invalid(CodeMalformed, "extras recorded without an extra type")
	case !et.IsLegal() && in.Extras < 1:
		return invalid(CodeMalformed, "%s carries at least the one-run penalty", et)
	case (et == ExtraBye || et == ExtraLegBye) && in.Extras < 1:
		return invalid(CodeMalformed, "%s without runs", et)
	case (et == ExtraWide || et == ExtraBye || et == ExtraLegBye) && in.RunsBatter != 0:
		return invalid(CodeMalformed, "no runs off the bat on %s", et)
	}

	if !in.IsWicket {
		if in.WicketType != "" || in.PlayerOut != "" || in.Catcher != "" || in.IncomingEnd != "" {
			return invalid(CodeMalformed, "dismissal details without a wicket")
		}
		return nil
	}

	wt := in.WicketType
	switch {
	case !wt.valid():
		return invalid(CodeMalformed, "unknown wicket type %q", wt)
	case in.PlayerOut == "":
		return invalid(CodeMalformed, "wicket without the dismissed player")
	case in.PlayerOut != c.Striker && in.PlayerOut != c.NonStriker:
		return invalid(CodeMalformed, "%s is not at the crease", in.PlayerOut)
	case wt != WicketRunOut && in.PlayerOut != c.Striker:
		return invalid(CodeMalformed, "only the striker can be out %s", wt)
	case in.Catcher != "" && wt != WicketCaught:
		return invalid(CodeMalformed, "catcher recorded for %s", wt)
	case in.IncomingEnd != "" && in.IncomingEnd != EndStriker && in.IncomingEnd != EndNonStriker:
		return invalid(CodeMalformed, "unknown end %q", in.IncomingEnd)
	case et == ExtraWide && wt != WicketStumped && wt != WicketRunOut && wt != WicketHitWicket:
		return invalid(CodeMalformed, "cannot be out %s off a wide", wt)
	case et == ExtraNoBall && wt != WicketRunOut:
		return invalid(CodeMalformed, "cannot be out %s off a no-ball", wt)
	}
	return nil
}
