package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/commandfile"
	"github.com/BTreeMap/JarvisPipe/internal/conversation"
	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/BTreeMap/JarvisPipe/internal/notify"
	"github.com/BTreeMap/JarvisPipe/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActionRegistry(t *testing.T) (*Registry, *scheduler.Scheduler, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "block-commands.json")
	s := scheduler.New(
		scheduler.WithNotifier(notify.Log{}),
		scheduler.WithCommandWriter(commandfile.NewWriter(path)),
		scheduler.WithPromptQueue(conversation.NewInjector()),
	)
	t.Cleanup(s.Stop)
	r, err := NewRegistryWith(NewActionTools(s))
	require.NoError(t, err)
	return r, s, path
}

func TestScheduleAlarmDefaultsName(t *testing.T) {
	r, s, _ := newActionRegistry(t)

	res := r.Execute(context.Background(), call("schedule_alarm", `{"minutes":10}`))
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Message, "Alarm 'Alarm' scheduled for ")

	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, models.ActionAlarm, pending[0].Kind)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), pending[0].FireAt, 5*time.Second)
}

func TestScheduleAlarmReportsBadInput(t *testing.T) {
	r, s, _ := newActionRegistry(t)

	res := r.Execute(context.Background(), call("schedule_alarm", `{"alarm_name":"Tea","time":"teatime"}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "HH:MM")

	res = r.Execute(context.Background(), call("schedule_alarm", `{"alarm_name":"Tea"}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "must specify either 'time' or 'minutes'/'hours'")
	assert.Zero(t, s.Len())
}

func TestBlockWebsitesWritesCommandAndCancelLiftsIt(t *testing.T) {
	r, s, path := newActionRegistry(t)

	res := r.Execute(context.Background(), call("block_websites", `{"websites":["https://www.YouTube.com/watch","reddit.com"],"hours":1,"minutes":30}`))
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Message, "Blocked youtube.com, reddit.com for 1h 30m")

	cmd, err := commandfile.Read(path)
	require.NoError(t, err)
	assert.Equal(t, commandfile.Block, cmd.Command)
	assert.Equal(t, []string{"youtube.com", "reddit.com"}, cmd.Domains)

	res = r.Execute(context.Background(), call("cancel_action", `{"action_id":`+jsonID(cmd.BlockID)+`}`))
	require.True(t, res.Success, res.Error)

	cmd, err = commandfile.Read(path)
	require.NoError(t, err)
	assert.Equal(t, commandfile.Unblock, cmd.Command)
	assert.Zero(t, s.Len())

	res = r.Execute(context.Background(), call("cancel_action", `{"action_id":`+jsonID(cmd.BlockID)+`}`))
	assert.False(t, res.Success)
}

func TestBlockWebsitesRequiresDuration(t *testing.T) {
	r, _, _ := newActionRegistry(t)
	res := r.Execute(context.Background(), call("block_websites", `{"websites":"youtube.com"}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "minutes and/or hours")
}

func TestSchedulePromptAndList(t *testing.T) {
	r, _, _ := newActionRegistry(t)

	res := r.Execute(context.Background(), call("schedule_prompt", `{"prompt":"check the oven","delay_seconds":"soon"}`))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Scheduled prompt 'check the oven' in 60 seconds.", res.Message)

	res = r.Execute(context.Background(), call("list_actions", `{}`))
	require.True(t, res.Success)
	pending, ok := res.Data.([]models.ActionInfo)
	require.True(t, ok)
	require.Len(t, pending, 1)
	assert.Equal(t, models.ActionFollowUpPrompt, pending[0].Kind)
}

func jsonID(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
