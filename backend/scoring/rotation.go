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

// RunsRun is the number of runs the batters physically ran on a delivery.
// The one-run penalty of a wide or no-ball is not run.
func RunsRun(d Delivery) int {
	switch d.ExtraType {
	case ExtraBye, ExtraLegBye:
		return d.RunsBatter + d.Extras
	case ExtraWide, ExtraNoBall:
		return d.RunsBatter + max(d.Extras-1, 0)
	}
	return d.RunsBatter
}

func (c Crease) swapped() Crease {
	c.Striker, c.NonStriker = c.NonStriker, c.Striker
	return c
}

// Rotate returns the crease after d, where overDone reports that d was the
// sixth legal ball of its over. In solo mode the lone batter always keeps
// strike.
func Rotate(c Crease, d Delivery, overDone, solo bool) Crease {
	next := c
	if d.IsWicket {
		survivor := c.NonStriker
		defaultEnd := EndStriker
		if d.PlayerOut == c.NonStriker {
			survivor = c.Striker
			defaultEnd = EndNonStriker
		}
		end := d.IncomingEnd
		if end == "" {
			end = defaultEnd
		}
		if end == EndStriker {
			next.Striker, next.NonStriker = "", survivor
		} else {
			next.Striker, next.NonStriker = survivor, ""
		}
	} else if !solo && RunsRun(d)%2 == 1 {
		next = next.swapped()
	}
	if overDone {
		if !solo {
			next = next.swapped()
		}
		next.Bowler = ""
	}
	return next
}
