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

// CommandType represents the type of operation to perform on the FSM.
type CommandType string

const (
	CmdSaveMatch   CommandType = "SAVE_MATCH"
	CmdDeleteMatch CommandType = "DELETE_MATCH"
	CmdApplyAction CommandType = "APPLY_ACTION"
	CmdSaveTeam    CommandType = "SAVE_TEAM"
	CmdDeleteTeam  CommandType = "DELETE_TEAM"
	CmdNodeMeta    CommandType = "NODE_META"
	CmdNodeLeft    CommandType = "NODE_LEFT"
)

// RaftCommand is a unified structure for all Raft log entries.
type RaftCommand struct {
	Type     CommandType  `json:"type"`
	ID       string       `json:"id,omitempty"`
	Match    *StoredMatch `json:"match,omitempty"`
	Team     *StoredTeam  `json:"team,omitempty"`
	Action   *Action      `json:"action,omitempty"`
	UserID   string       `json:"userId,omitempty"`
	NodeMeta *NodeMeta    `json:"nodeMeta,omitempty"`
}

// NodeMeta contains metadata about a cluster node.
type NodeMeta struct {
	NodeID          string `json:"nodeId"`
	HttpAddr        string `json:"httpAddr"`
	RaftAddr        string `json:"raftAddr,omitempty"`
	AppVersion      string `json:"appVersion,omitempty"`
	ProtocolVersion int    `json:"protocolVersion,omitempty"`
	SchemaVersion   int    `json:"schemaVersion,omitempty"`
}
