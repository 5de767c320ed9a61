// Package scheduler owns the registry of deferred, cancellable actions: alarms, temporary
// website blocks and self-scheduled follow-up prompts.
//
// Each pending action runs in its own goroutine that waits on a timer or on its
// cancellation context. Both the timer path and Cancel remove the entry from the registry
// under the scheduler lock, so exactly one of them performs the action's side effect.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/commandfile"
	"github.com/BTreeMap/JarvisPipe/internal/metrics"
	"github.com/BTreeMap/JarvisPipe/internal/models"
)

// DefaultSideEffectTimeout bounds a single notification, command write or record call.
const DefaultSideEffectTimeout = 30 * time.Second

// Notifier shows a notification and plays the alarm sound.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
	PlayAlertSequence(ctx context.Context) error
}

// CommandWriter publishes website block commands.
type CommandWriter interface {
	Write(cmd commandfile.Command) error
}

// PromptQueue receives follow-up prompts when they come due.
type PromptQueue interface {
	Enqueue(text string)
}

// Recorder is told about every lifecycle transition.
type Recorder interface {
	RecordAction(ctx context.Context, rec models.ActionRecord) error
}

// Opts holds scheduler dependencies.
type Opts struct {
	Notifier          Notifier
	Commands          CommandWriter
	Prompts           PromptQueue
	Recorder          Recorder
	Now               func() time.Time
	SideEffectTimeout time.Duration
}

// Option configures a Scheduler.
type Option func(*Opts)

// WithNotifier sets the notification backend used by alarms and website blocks.
func WithNotifier(n Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithCommandWriter sets the command-file channel used by website blocks.
func WithCommandWriter(w CommandWriter) Option {
	return func(o *Opts) { o.Commands = w }
}

// WithPromptQueue sets the queue that receives due follow-up prompts.
func WithPromptQueue(q PromptQueue) Option {
	return func(o *Opts) { o.Prompts = q }
}

// WithRecorder sets a sink for action lifecycle records.
func WithRecorder(r Recorder) Option {
	return func(o *Opts) { o.Recorder = r }
}

// WithClock overrides the wall clock used to compute fire times.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// entry is a pending action together with the handle of its timer goroutine.
type entry struct {
	id      uint64
	payload Payload
	fireAt  time.Time
	cancel  context.CancelFunc
	ctx     context.Context
	// domains is the normalized site list of a website block.
	domains []string
}

func (e *entry) info() models.ActionInfo {
	return models.ActionInfo{
		ID:      e.id,
		Kind:    e.payload.Kind(),
		Status:  models.ActionPending,
		FireAt:  e.fireAt,
		Summary: e.payload.summary(),
	}
}

// Scheduler is a registry mapping action ids to pending deferred actions.
type Scheduler struct {
	opts Opts

	// ctx bounds every side effect; Stop cancels it.
	ctx  context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	actions map[uint64]*entry
	nextID  uint64
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Scheduler. Without a Notifier, notifications are only logged.
func New(opts ...Option) *Scheduler {
	cfg := Opts{Now: time.Now, SideEffectTimeout: DefaultSideEffectTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = logNotifier{}
	}
	slog.Debug("Scheduler.New: created", "commands_set", cfg.Commands != nil, "prompts_set", cfg.Prompts != nil, "recorder_set", cfg.Recorder != nil)
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{opts: cfg, ctx: ctx, stop: stop, actions: make(map[uint64]*entry)}
}

// Schedule validates p, computes its fire time once from the wall clock and starts its timer.
// Website blocks write the block command before Schedule returns; if that write fails the
// block is not scheduled.
func (s *Scheduler) Schedule(p Payload) (uint64, error) {
	if p == nil {
		return 0, &ValidationError{Field: "payload", Reason: "payload is required"}
	}
	now := s.opts.Now()
	fireAt, err := p.resolve(now)
	if err != nil {
		slog.Warn("Scheduler.Schedule: rejected", "kind", p.Kind(), "error", err)
		return 0, err
	}

	var domains []string
	switch v := p.(type) {
	case WebsiteBlock:
		if s.opts.Commands == nil {
			return 0, &ValidationError{Field: "websites", Reason: "website blocking is not configured"}
		}
		domains = v.Domains()
	case FollowUpPrompt:
		if s.opts.Prompts == nil {
			return 0, &ValidationError{Field: "prompt", Reason: "follow-up prompts are not configured"}
		}
	}

	// The id is reserved before the block command is written but the entry only becomes
	// visible, and cancellable, once the write has succeeded.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.nextID++
	id := s.nextID
	s.wg.Add(1)
	s.mu.Unlock()

	if _, ok := p.(WebsiteBlock); ok {
		if err := s.opts.Commands.Write(commandfile.NewBlock(id, domains, fireAt)); err != nil {
			s.wg.Done()
			metrics.SideEffectFailuresTotal.WithLabelValues(string(p.Kind())).Inc()
			slog.Error("Scheduler.Schedule: failed to write block command", "id", id, "error", err)
			return 0, &SideEffectError{Kind: p.Kind(), Op: "block command", Err: err}
		}
	}

	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{id: id, payload: p, fireAt: fireAt, ctx: ctx, cancel: cancel, domains: domains}
	s.record(e, models.ActionEventScheduled, "")

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		s.wg.Done()
		if _, ok := p.(WebsiteBlock); ok {
			s.unblock(e)
		}
		s.record(e, models.ActionEventCancelled, "stopped while scheduling")
		return 0, ErrClosed
	}
	s.actions[id] = e
	pending := len(s.actions)
	s.mu.Unlock()

	metrics.ActionsScheduledTotal.WithLabelValues(string(p.Kind())).Inc()
	metrics.ActionsPending.Set(float64(pending))
	slog.Info("Scheduler.Schedule: action scheduled", "id", id, "kind", p.Kind(), "fire_at", fireAt, "summary", p.summary())

	go s.run(e, fireAt.Sub(now))

	if b, ok := p.(WebsiteBlock); ok {
		s.async(func() { s.notify(e, "🚫 Websites Blocked", "Blocked "+joinDomains(domains)+" for "+b.DurationText()) })
	}
	return id, nil
}

// Cancel stops a pending action before it fires. Cancelling a website block lifts the block
// immediately. Unknown or completed ids yield ErrNotFound.
func (s *Scheduler) Cancel(id uint64) error {
	e := s.remove(id)
	if e == nil {
		slog.Debug("Scheduler.Cancel: action not found", "id", id)
		return ErrNotFound
	}
	e.cancel()
	slog.Info("Scheduler.Cancel: action cancelled", "id", id, "kind", e.payload.Kind())
	metrics.ActionsCompletedTotal.WithLabelValues(string(e.payload.Kind()), string(models.ActionCancelled)).Inc()
	s.record(e, models.ActionEventCancelled, "")

	if _, ok := e.payload.(WebsiteBlock); ok {
		s.unblock(e)
		s.async(func() { s.notifyUnblocked(e) })
	}
	return nil
}

// Pending lists pending actions ordered by id.
func (s *Scheduler) Pending() []models.ActionInfo {
	s.mu.Lock()
	out := make([]models.ActionInfo, 0, len(s.actions))
	for _, e := range s.actions {
		out = append(out, e.info())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a pending action by id.
func (s *Scheduler) Get(id uint64) (models.ActionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.actions[id]
	if !ok {
		return models.ActionInfo{}, false
	}
	return e.info(), true
}

// Len returns the number of pending actions.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// Stop cancels every pending action and waits until all timer goroutines, including
// triggers already in progress, have returned. No trigger starts after Stop begins.
// Website blocks are not lifted; the extension expires them by their unblock timestamp.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	pending := s.actions
	s.actions = make(map[uint64]*entry)
	s.mu.Unlock()

	slog.Info("Scheduler.Stop: cancelling pending actions", "count", len(pending))
	s.stop()
	for _, e := range pending {
		e.cancel()
	}
	s.wg.Wait()
	metrics.ActionsPending.Set(0)
	slog.Info("Scheduler.Stop: all actions stopped")
}

// run waits for the action's timer or its cancellation, whichever comes first.
func (s *Scheduler) run(e *entry, delay time.Duration) {
	defer s.wg.Done()
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		s.trigger(e.id)
	case <-e.ctx.Done():
		slog.Debug("Scheduler.run: timer released", "id", e.id)
	}
}

// trigger claims the action and performs its side effect. A lost race with Cancel or Stop
// is a no-op.
func (s *Scheduler) trigger(id uint64) {
	e := s.remove(id)
	if e == nil {
		return
	}
	defer e.cancel()
	slog.Info("Scheduler.trigger: action fired", "id", id, "kind", e.payload.Kind())

	switch p := e.payload.(type) {
	case Alarm:
		s.notify(e, "⏰ Alarm: "+p.Name, "Scheduled for "+e.fireAt.Format(DisplayLayout))
		ctx, cancel := s.sideEffectContext()
		if err := s.opts.Notifier.PlayAlertSequence(ctx); err != nil {
			s.failed(e, "alert sequence", err)
		}
		cancel()
	case WebsiteBlock:
		s.unblock(e)
		s.notifyUnblocked(e)
	case FollowUpPrompt:
		s.opts.Prompts.Enqueue(p.Text)
	default:
		slog.Error("Scheduler.trigger: unknown payload", "id", id, "kind", e.payload.Kind())
	}

	metrics.ActionsCompletedTotal.WithLabelValues(string(e.payload.Kind()), string(models.ActionFired)).Inc()
	s.record(e, models.ActionEventFired, "")
}

// remove deletes an entry from the registry and returns it, or nil if it was already gone.
func (s *Scheduler) remove(id uint64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.actions[id]
	if !ok {
		return nil
	}
	delete(s.actions, id)
	metrics.ActionsPending.Set(float64(len(s.actions)))
	return e
}

func (s *Scheduler) unblock(e *entry) {
	if err := s.opts.Commands.Write(commandfile.NewUnblock(e.id, e.domains)); err != nil {
		s.failed(e, "unblock command", err)
	}
}

func (s *Scheduler) notifyUnblocked(e *entry) {
	s.notify(e, "🌐 Websites Unblocked", "Access restored to: "+joinDomains(e.domains))
}

// async runs f on a goroutine that Stop waits for. Once stopped, f runs inline.
func (s *Scheduler) async(f func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		f()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		f()
	}()
}

// sideEffectContext bounds one notification or alert; Stop cancels it early.
func (s *Scheduler) sideEffectContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.opts.SideEffectTimeout)
}

func (s *Scheduler) notify(e *entry, title, message string) {
	ctx, cancel := s.sideEffectContext()
	defer cancel()
	if err := s.opts.Notifier.Notify(ctx, title, message); err != nil {
		s.failed(e, "notification", err)
	}
}

func (s *Scheduler) failed(e *entry, op string, err error) {
	metrics.SideEffectFailuresTotal.WithLabelValues(string(e.payload.Kind())).Inc()
	slog.Error("Scheduler: side effect failed", "id", e.id, "kind", e.payload.Kind(), "op", op, "error", err)
	s.record(e, models.ActionEventFailed, op+": "+err.Error())
}

func (s *Scheduler) record(e *entry, event models.ActionEvent, detail string) {
	if s.opts.Recorder == nil {
		return
	}
	// Not tied to s.ctx: records of triggers finishing during Stop must still land.
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SideEffectTimeout)
	defer cancel()
	rec := models.ActionRecord{
		ActionID: e.id,
		Kind:     e.payload.Kind(),
		Event:    event,
		FireAt:   e.fireAt,
		At:       s.opts.Now(),
		Detail:   detail,
	}
	if err := s.opts.Recorder.RecordAction(ctx, rec); err != nil {
		slog.Warn("Scheduler.record: failed to record action event", "id", e.id, "event", event, "error", err)
	}
}

func joinDomains(domains []string) string { return strings.Join(domains, ", ") }

// logNotifier is used when no notification backend is configured.
type logNotifier struct{}

func (logNotifier) Notify(_ context.Context, title, message string) error {
	slog.Info("Notification", "title", title, "message", message)
	return nil
}

func (logNotifier) PlayAlertSequence(context.Context) error { return nil }
