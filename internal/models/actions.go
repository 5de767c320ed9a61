package models

import "time"

// ActionKind names a kind of deferred action.
type ActionKind string

const (
	ActionAlarm          ActionKind = "alarm"
	ActionWebsiteBlock   ActionKind = "website_block"
	ActionFollowUpPrompt ActionKind = "follow_up_prompt"
)

// ActionStatus is the lifecycle state of a scheduled action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionFired     ActionStatus = "fired"
	ActionCancelled ActionStatus = "cancelled"
)

// ActionInfo describes a pending action for listings.
type ActionInfo struct {
	ID      uint64       `json:"id"`
	Kind    ActionKind   `json:"kind"`
	Status  ActionStatus `json:"status"`
	FireAt  time.Time    `json:"fire_at"`
	Summary string       `json:"summary"`
}

// ActionEvent names a lifecycle transition recorded for an action.
type ActionEvent string

const (
	ActionEventScheduled ActionEvent = "scheduled"
	ActionEventFired     ActionEvent = "fired"
	ActionEventCancelled ActionEvent = "cancelled"
	ActionEventFailed    ActionEvent = "side_effect_failed"
)

// ActionRecord is an append-only log entry describing what happened to an action.
type ActionRecord struct {
	ActionID uint64      `json:"action_id"`
	Kind     ActionKind  `json:"kind"`
	Event    ActionEvent `json:"event"`
	FireAt   time.Time   `json:"fire_at"`
	At       time.Time   `json:"at"`
	Detail   string      `json:"detail,omitempty"`
}
