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

package backend

// Schema and protocol versions stamped on persisted documents and cluster
// node metadata.
const (
	CurrentSchemaVersion   = 1
	CurrentProtocolVersion = 1
	CurrentAppVersion      = "0.1.0"
)

// Action types accepted on a match.
const (
	ActionToss          = "TOSS"
	ActionSelectPlayers = "SELECT_PLAYERS"
	ActionDelivery      = "DELIVERY"
	ActionUndo          = "UNDO"
	ActionDeclare       = "DECLARE"
)

// Request limits.
const (
	maxBodyBytes      = 1 << 20
	maxNameLen        = 60
	maxPlayers        = 30
	maxCustomOvers    = 100
	maxRecentActions  = 100
	maxListPageSize   = 100
	defaultListPage   = 50
	hubRequestBacklog = 64
)

// Retry-After values, in seconds, returned when a hub queue is full.
const (
	retryAfterLoad   = "2"
	retryAfterSave   = "10"
	retryAfterAction = "5"
)
