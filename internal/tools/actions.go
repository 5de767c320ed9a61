package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/BTreeMap/JarvisPipe/internal/scheduler"
)

// ActionScheduler is the scheduler surface the action tools need.
type ActionScheduler interface {
	Schedule(p scheduler.Payload) (uint64, error)
	Cancel(id uint64) error
	Get(id uint64) (models.ActionInfo, bool)
	Pending() []models.ActionInfo
}

// ActionTools exposes deferred actions to the model.
type ActionTools struct {
	sched ActionScheduler
}

// NewActionTools creates the action tool set.
func NewActionTools(s ActionScheduler) *ActionTools {
	return &ActionTools{sched: s}
}

// Tools returns schedule_alarm, block_websites, schedule_prompt, cancel_action and list_actions.
func (a *ActionTools) Tools() []Tool {
	return []Tool{
		{
			Name:        "schedule_alarm",
			Description: "Schedule an alarm to go off at a specific time or after a delay. The alarm shows a notification and plays a sound. Give either a time ('14:30' or '2:30 PM') or a delay in minutes and/or hours.",
			Parameters: objectSchema(map[string]interface{}{
				"alarm_name": prop("string", "Name of the alarm, e.g. 'Take medicine'. Defaults to 'Alarm'."),
				"time":       prop("string", "Time in HH:MM (24-hour) or HH:MM AM/PM. Leave empty when using minutes/hours."),
				"minutes":    prop("integer", "Minutes from now. Can be combined with hours."),
				"hours":      prop("integer", "Hours from now. Can be combined with minutes."),
			}),
			Handler: a.scheduleAlarm,
		},
		{
			Name:        "block_websites",
			Description: "Block websites for a duration to help the user focus. The browser extension applies the block and it is lifted automatically when the time expires.",
			Parameters: objectSchema(map[string]interface{}{
				"websites": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "URLs or domains to block, e.g. 'youtube.com'. www and non-www variants are both blocked.",
				},
				"minutes": prop("integer", "Minutes to block. Can be combined with hours."),
				"hours":   prop("integer", "Hours to block. Can be combined with minutes."),
			}, "websites"),
			Handler: a.blockWebsites,
		},
		{
			Name:        "schedule_prompt",
			Description: "Schedule a prompt to be sent to yourself in the future, processed as if the user said it. Useful for reminders or periodic checks.",
			Parameters: objectSchema(map[string]interface{}{
				"prompt":        prop("string", "The text prompt to send to yourself."),
				"delay_seconds": prop("integer", "Delay in seconds before the prompt is sent."),
			}, "prompt", "delay_seconds"),
			Handler: a.schedulePrompt,
		},
		{
			Name:        "cancel_action",
			Description: "Cancel a pending alarm, website block or scheduled prompt by id. Cancelling a block lifts it immediately.",
			Parameters: objectSchema(map[string]interface{}{
				"action_id": prop("integer", "The id returned when the action was scheduled."),
			}, "action_id"),
			Handler: a.cancelAction,
		},
		{
			Name:        "list_actions",
			Description: "List pending alarms, website blocks and scheduled prompts.",
			Handler:     a.listActions,
		},
	}
}

func (a *ActionTools) scheduleAlarm(_ context.Context, raw json.RawMessage) (models.ToolResult, error) {
	var args alarmArgs
	if err := decodeArgs(raw, &args); err != nil {
		return models.ToolFailure("Invalid alarm arguments", err), nil
	}
	if args.AlarmName == "" {
		args.AlarmName = "Alarm"
	}
	id, err := a.sched.Schedule(scheduler.Alarm{Name: args.AlarmName, Time: args.Time, Minutes: args.Minutes, Hours: args.Hours})
	if err != nil {
		return scheduleFailure(err)
	}
	when := a.fireTimeText(id)
	return models.ToolSuccess(fmt.Sprintf("Alarm '%s' scheduled for %s", args.AlarmName, when), map[string]interface{}{
		"alarm_id":       id,
		"scheduled_time": when,
	}), nil
}

func (a *ActionTools) blockWebsites(_ context.Context, raw json.RawMessage) (models.ToolResult, error) {
	var args blockArgs
	if err := decodeArgs(raw, &args); err != nil {
		return models.ToolFailure("Invalid block arguments", err), nil
	}
	if args.Minutes == nil && args.Hours == nil {
		return models.ToolFailure("Invalid block arguments", errors.New("must specify duration in minutes and/or hours")), nil
	}
	block := scheduler.WebsiteBlock{Sites: args.Websites, Minutes: deref(args.Minutes), Hours: deref(args.Hours)}
	id, err := a.sched.Schedule(block)
	if err != nil {
		return scheduleFailure(err)
	}
	domains := block.Domains()
	when := a.fireTimeText(id)
	return models.ToolSuccess(
		fmt.Sprintf("Blocked %s for %s. Will unblock at %s.", strings.Join(domains, ", "), block.DurationText(), when),
		map[string]interface{}{
			"block_id":     id,
			"domains":      domains,
			"unblock_time": when,
		}), nil
}

func (a *ActionTools) schedulePrompt(_ context.Context, raw json.RawMessage) (models.ToolResult, error) {
	var args promptArgs
	if err := decodeArgs(raw, &args); err != nil {
		return models.ToolFailure("Invalid prompt arguments", err), nil
	}
	delay := time.Duration(args.DelaySeconds) * time.Second
	id, err := a.sched.Schedule(scheduler.FollowUpPrompt{Text: args.Prompt, Delay: delay})
	if err != nil {
		return scheduleFailure(err)
	}
	return models.ToolSuccess(fmt.Sprintf("Scheduled prompt '%s' in %d seconds.", args.Prompt, int(args.DelaySeconds)), map[string]interface{}{
		"action_id": id,
	}), nil
}

func (a *ActionTools) cancelAction(_ context.Context, raw json.RawMessage) (models.ToolResult, error) {
	var args cancelArgs
	if err := decodeArgs(raw, &args); err != nil {
		return models.ToolFailure("Invalid cancel arguments", err), nil
	}
	if err := a.sched.Cancel(args.ActionID); err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			return models.ToolFailure(fmt.Sprintf("No pending action with id %d", args.ActionID), err), nil
		}
		return models.ToolResult{}, err
	}
	return models.ToolSuccess(fmt.Sprintf("Cancelled action %d.", args.ActionID), nil), nil
}

func (a *ActionTools) listActions(context.Context, json.RawMessage) (models.ToolResult, error) {
	pending := a.sched.Pending()
	if len(pending) == 0 {
		return models.ToolSuccess("No pending actions.", []models.ActionInfo{}), nil
	}
	return models.ToolSuccess(fmt.Sprintf("%d pending action(s).", len(pending)), pending), nil
}

func (a *ActionTools) fireTimeText(id uint64) string {
	info, ok := a.sched.Get(id)
	if !ok {
		return "now"
	}
	return info.FireAt.Format(scheduler.DisplayLayout)
}

// scheduleFailure reports rejected payloads to the model and propagates everything else.
func scheduleFailure(err error) (models.ToolResult, error) {
	var verr *scheduler.ValidationError
	var perr *scheduler.ParseError
	var serr *scheduler.SideEffectError
	switch {
	case errors.As(err, &verr), errors.As(err, &perr), errors.As(err, &serr):
		return models.ToolFailure("Could not schedule action", err), nil
	case errors.Is(err, scheduler.ErrClosed):
		return models.ToolFailure("Scheduler is shutting down", err), nil
	default:
		return models.ToolResult{}, err
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
