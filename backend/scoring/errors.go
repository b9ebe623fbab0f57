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
	"errors"
	"fmt"
)

// Rejection kinds. Every error returned by a Match operation wraps exactly one
// of these.
var (
	ErrValidation  = errors.New("validation error")
	ErrState       = errors.New("state error")
	ErrConsistency = errors.New("consistency error")
)

// Rejection codes.
const (
	CodeMissingStriker    = "missing-striker"
	CodeMissingNonStriker = "missing-non-striker"
	CodeMissingBowler     = "missing-bowler"
	CodeConsecutiveOver   = "consecutive-over"
	CodeMalformed         = "malformed-delivery"
	CodeBatterDismissed   = "batter-dismissed"
	CodeSameBatter        = "same-batter"
	CodeBadToss           = "invalid-toss"
	CodeBadMatch          = "invalid-match"

	CodeEmptyLog         = "empty-log"
	CodeMatchCompleted   = "match-completed"
	CodeMatchNotSetup    = "match-not-setup"
	CodeMatchNotLive     = "match-not-live"
	CodeNotTestFormat    = "not-test-format"
	CodeFinalInnings     = "final-innings"
	CodeNothingToDeclare = "nothing-to-declare"

	CodeUnknownPlayer = "unknown-player"
	CodeUnknownTeam   = "unknown-team"
)

// RejectError describes why a command was refused. errors.Is matches it
// against its Kind.
type RejectError struct {
	Kind   error
	Code   string
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Code, e.Detail)
}

func (e *RejectError) Unwrap() error {
	return e.Kind
}

// CodeOf returns the rejection code of err, or "" if err is not a
// *RejectError.
func CodeOf(err error) string {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func reject(kind error, code, format string, args ...any) *RejectError {
	return &RejectError{Kind: kind, Code: code, Detail: fmt.Sprintf(format, args...)}
}

func invalid(code, format string, args ...any) *RejectError {
	return reject(ErrValidation, code, format, args...)
}

func badState(code, format string, args ...any) *RejectError {
	return reject(ErrState, code, format, args...)
}

func inconsistent(code, format string, args ...any) *RejectError {
	return reject(ErrConsistency, code, format, args...)
}
