package model

import "time"

// Action identifies what an activity log entry records.
type Action string

// Activity actions.
const (
	ActionCreateTask Action = "CREATE_TASK"
	ActionUpdateTask Action = "UPDATE_TASK"
	ActionDeleteTask Action = "DELETE_TASK"
	ActionLogin      Action = "LOGIN"
	ActionLogout     Action = "LOGOUT"
	ActionRegister   Action = "REGISTER"
	ActionComment    Action = "COMMENT"
)

// Target kinds recorded alongside a target id.
const (
	TargetTask = "Task"
	TargetUser = "User"
)

// ActivityLogEntry is one append-only audit record.
type ActivityLogEntry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actorId"`
	Action     Action         `json:"action"`
	TargetID   *string        `json:"targetId,omitempty"`
	TargetKind *string        `json:"targetModel,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ActivityView is a log entry with the acting user's identity attached.
type ActivityView struct {
	ActivityLogEntry
	Actor *UserSummary `json:"user"`
}
