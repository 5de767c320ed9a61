// Package notify delivers user-facing notifications for fired actions: desktop
// pop-ups with an audible alert, and optional pushes to the user's phone.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"
)

// Notifier shows a notification and plays the alarm sound.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
	PlayAlertSequence(ctx context.Context) error
}

// Tone is one beep of an alert sequence.
type Tone struct {
	Frequency float64
	Duration  time.Duration
}

// DefaultAlertSequence is the rising and falling four-tone alarm.
var DefaultAlertSequence = []Tone{
	{Frequency: 150, Duration: 100 * time.Millisecond},
	{Frequency: 300, Duration: 150 * time.Millisecond},
	{Frequency: 500, Duration: 200 * time.Millisecond},
	{Frequency: 300, Duration: 250 * time.Millisecond},
}

// Desktop shows OS notifications and beeps through beeep.
type Desktop struct {
	Sequence []Tone
	notify   func(title, message, icon string) error
	beep     func(freq float64, ms int) error
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDesktop creates a desktop notifier playing DefaultAlertSequence.
func NewDesktop() *Desktop {
	return &Desktop{
		Sequence: DefaultAlertSequence,
		notify:   func(title, message, icon string) error { return beeep.Notify(title, message, icon) },
		beep:     beeep.Beep,
		sleep:    sleepCtx,
	}
}

func (d *Desktop) Notify(_ context.Context, title, message string) error {
	slog.Debug("Desktop.Notify: showing notification", "title", title)
	return d.notify(title, message, "")
}

// PlayAlertSequence beeps each tone and pauses for its duration between tones.
func (d *Desktop) PlayAlertSequence(ctx context.Context) error {
	for _, t := range d.Sequence {
		if err := d.beep(t.Frequency, int(t.Duration/time.Millisecond)); err != nil {
			return err
		}
		if err := d.sleep(ctx, t.Duration); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Multi fans a notification out to several notifiers. Every notifier is tried; the
// joined error reports each failure.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PlayAlertSequence(ctx context.Context) error {
	var errs []error
	for _, n := range m {
		if err := n.PlayAlertSequence(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log only writes notifications to the log.
type Log struct{}

func (Log) Notify(_ context.Context, title, message string) error {
	slog.Info("Notification", "title", title, "message", message)
	return nil
}

func (Log) PlayAlertSequence(context.Context) error { return nil }
