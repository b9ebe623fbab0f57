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

// EventType names a transient notification raised by an accepted command.
type EventType string

const (
	EventWicket          EventType = "WICKET"
	EventOverComplete    EventType = "OVER_COMPLETE"
	EventInningsComplete EventType = "INNINGS_COMPLETE"
	EventMatchComplete   EventType = "MATCH_COMPLETE"
	EventOnFire          EventType = "ON_FIRE"
	EventHatTrick        EventType = "HAT_TRICK"
	EventDeliveryUndone  EventType = "DELIVERY_UNDONE"
	EventInningsDeclared EventType = "INNINGS_DECLARED"
	EventInningsStarted  EventType = "INNINGS_STARTED"
	EventPlayersSelected EventType = "PLAYERS_SELECTED"
	EventTossRecorded    EventType = "TOSS_RECORDED"
)

// Event is never stored with the match. It is returned with the command
// result and broadcast to live viewers.
type Event struct {
	Type    EventType `json:"type"`
	Innings int       `json:"innings,omitempty"`
	Player  PlayerID  `json:"player,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// streakLength is the number of consecutive balls that make a streak.
const streakLength = 3

// lastLegalBy returns up to n most recent legal deliveries matching keep,
// newest first.
func lastLegalBy(ds []Delivery, n int, keep func(Delivery) bool) []Delivery {
	var out []Delivery
	for i := len(ds) - 1; i >= 0 && len(out) < n; i-- {
		if ds[i].IsLegal() && keep(ds[i]) {
			out = append(out, ds[i])
		}
	}
	return out
}

// DetectMilestones scans the innings log after its last delivery was
// appended. Deliveries to other batters and by other bowlers are skipped, so
// a streak can span overs.
func DetectMilestones(ds []Delivery) []Event {
	if len(ds) == 0 {
		return nil
	}
	d := ds[len(ds)-1]
	if !d.IsLegal() {
		return nil
	}
	var events []Event

	faced := lastLegalBy(ds, streakLength, func(x Delivery) bool { return x.Batsman == d.Batsman })
	if len(faced) == streakLength && allOf(faced, func(x Delivery) bool { return x.RunsBatter == 6 }) {
		events = append(events, Event{Type: EventOnFire, Player: d.Batsman})
	}

	bowled := lastLegalBy(ds, streakLength, func(x Delivery) bool { return x.Bowler == d.Bowler })
	if len(bowled) == streakLength && allOf(bowled, func(x Delivery) bool {
		return x.IsWicket && x.WicketType.CreditedToBowler()
	}) {
		events = append(events, Event{Type: EventHatTrick, Player: d.Bowler})
	}
	return events
}

func allOf(ds []Delivery, f func(Delivery) bool) bool {
	for _, d := range ds {
		if !f(d) {
			return false
		}
	}
	return true
}
