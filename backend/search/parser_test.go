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

package search

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected Query
	}{
		{
			input: "status:LIVE",
			expected: Query{
				Filters: []Filter{{Key: "status", Value: "LIVE", Operator: OpEqual}},
			},
		},
		{
			input: "team:\"Royal Strikers\" format:T20",
			expected: Query{
				Filters: []Filter{
					{Key: "team", Value: "Royal Strikers", Operator: OpEqual},
					{Key: "format", Value: "T20", Operator: OpEqual},
				},
			},
		},
		{
			input: "Owner:ana@example.com final",
			expected: Query{
				Filters:  []Filter{{Key: "owner", Value: "ana@example.com", Operator: OpEqual}},
				FreeText: []string{"final"},
			},
		},
		{
			input: "created:>=\"2026-01-01\"",
			expected: Query{
				Filters: []Filter{{Key: "created", Value: "2026-01-01", Operator: OpGreaterOrEqual}},
			},
		},
		{
			input: "created:<2027",
			expected: Query{
				Filters: []Filter{{Key: "created", Value: "2027", Operator: OpLess}},
			},
		},
		{
			input: "created:2026-01..2026-03",
			expected: Query{
				Filters: []Filter{{Key: "created", Value: "2026-01", MaxValue: "2026-03", Operator: OpRange}},
			},
		},
		{
			input: "day night \"super over\" format:TEST",
			expected: Query{
				Filters:  []Filter{{Key: "format", Value: "TEST", Operator: OpEqual}},
				FreeText: []string{"day", "night", "super over"},
			},
		},
		{
			input: "start:14:30",
			expected: Query{
				FreeText: []string{"start:14:30"},
			},
		},
		{
			input: "start:\"14:30\"",
			expected: Query{
				Filters: []Filter{{Key: "start", Value: "14:30", Operator: OpEqual}},
			},
		},
		{
			input: "team: :LIVE",
			expected: Query{
				FreeText: []string{"team:", ":LIVE"},
			},
		},
	}

	for _, tt := range tests {
		got := Parse(tt.input)
		if len(got.FreeText) == 0 && len(tt.expected.FreeText) == 0 {
			got.FreeText, tt.expected.FreeText = nil, nil
		}
		if len(got.Filters) == 0 && len(tt.expected.Filters) == 0 {
			got.Filters, tt.expected.Filters = nil, nil
		}
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("Parse(%q)\ngot  %#v\nwant %#v", tt.input, got, tt.expected)
		}
	}
}

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		f    Filter
		v    string
		want bool
	}{
		{Filter{Value: "live", Operator: OpEqual}, "LIVE", true},
		{Filter{Value: "live", Operator: OpEqual}, "SETUP", false},
		{Filter{Value: "2026-02-01", Operator: OpGreaterOrEqual}, "2026-02-01", true},
		{Filter{Value: "2026-02-01", Operator: OpGreater}, "2026-02-01", false},
		{Filter{Value: "2026", Operator: OpLess}, "2025-12-31", true},
		{Filter{Value: "2026-01-31", Operator: OpLessOrEqual}, "2026-02-01", false},
		{Filter{Value: "2026-01", MaxValue: "2026-03", Operator: OpRange}, "2026-03-31", true},
		{Filter{Value: "2026-01", MaxValue: "2026-03", Operator: OpRange}, "2026-04-01", false},
		{Filter{Value: "2026-01", MaxValue: "2026-03", Operator: OpRange}, "2025-12-31", false},
		{Filter{Value: "x", Operator: "~"}, "x", false},
	}
	for _, tt := range tests {
		if got := tt.f.Match(tt.v); got != tt.want {
			t.Errorf("%+v.Match(%q) = %v, want %v", tt.f, tt.v, got, tt.want)
		}
	}
}
