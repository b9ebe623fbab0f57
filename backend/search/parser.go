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

// Package search parses the query language of the match list, e.g.
//
//	status:LIVE format:T20 created:>=2026-04-01 "Royal Strikers"
package search

import (
	"strings"
	"unicode"
)

// Operator represents the comparison of a filter.
type Operator string

const (
	OpEqual          Operator = "="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpRange          Operator = ".." // created:2026-01..2026-03
)

// prefixOps are tried in order; two-character operators come first.
var prefixOps = []Operator{OpGreaterOrEqual, OpLessOrEqual, OpGreater, OpLess}

// Filter is one key:value criterion.
type Filter struct {
	Key      string
	Value    string
	MaxValue string // OpRange only
	Operator Operator
}

// Query represents the parsed search query.
type Query struct {
	Filters  []Filter
	FreeText []string
}

// Parse splits input into key:value filters and free text. Quoted strings
// keep their spaces. A value with an unquoted colon is treated as free text.
func Parse(input string) Query {
	q := Query{
		Filters:  make([]Filter, 0),
		FreeText: make([]string, 0),
	}
	for _, token := range tokenize(input) {
		f, ok := parseFilter(token)
		if ok {
			q.Filters = append(q.Filters, f)
			continue
		}
		if strings.Contains(token, ":") {
			q.FreeText = append(q.FreeText, token)
		} else {
			q.FreeText = append(q.FreeText, removeQuotes(token))
		}
	}
	return q
}

func parseFilter(token string) (Filter, bool) {
	key, val, found := strings.Cut(token, ":")
	if !found {
		return Filter{}, false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	val = strings.TrimSpace(val)
	if key == "" || val == "" {
		return Filter{}, false
	}
	if strings.Contains(val, ":") && !strings.HasPrefix(val, "\"") && !strings.HasPrefix(val, "'") {
		return Filter{}, false
	}
	if lo, hi, ok := strings.Cut(val, ".."); ok {
		return Filter{Key: key, Value: lo, MaxValue: hi, Operator: OpRange}, true
	}
	for _, op := range prefixOps {
		if rest, ok := strings.CutPrefix(val, string(op)); ok {
			return Filter{Key: key, Value: removeQuotes(rest), Operator: op}, true
		}
	}
	return Filter{Key: key, Value: removeQuotes(val), Operator: OpEqual}, true
}

// Match compares v with the filter. Equality ignores case; the ordered
// operators compare strings, which is correct for ISO dates.
func (f Filter) Match(v string) bool {
	switch f.Operator {
	case OpEqual:
		return strings.EqualFold(v, f.Value)
	case OpGreater:
		return v > f.Value
	case OpGreaterOrEqual:
		return v >= f.Value
	case OpLess:
		return v < f.Value
	case OpLessOrEqual:
		return v <= f.Value
	case OpRange:
		// The upper bound is a prefix: 2026-03 includes all of March.
		return v >= f.Value && (v <= f.MaxValue || strings.HasPrefix(v, f.MaxValue))
	}
	return false
}

// tokenize splits the string by spaces, respecting quotes.
func tokenize(input string) []string {
	var tokens []string
	var current strings.Builder
	var quote rune

	for _, r := range input {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			current.WriteRune(r)
		case unicode.IsSpace(r):
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		case r == '"' || r == '\'':
			quote = r
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func removeQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
