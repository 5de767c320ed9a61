package scheduler

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/models"
)

// DisplayLayout formats fire times in user-facing messages.
const DisplayLayout = "03:04 PM on 2006-01-02"

// Payload is the kind-specific description of a deferred action.
// It is implemented only by Alarm, WebsiteBlock and FollowUpPrompt.
type Payload interface {
	Kind() models.ActionKind
	// resolve validates the payload and returns the absolute fire time relative to now.
	resolve(now time.Time) (time.Time, error)
	summary() string
}

// Alarm notifies the user at a clock time or after an offset.
// A non-empty Time takes precedence over Minutes and Hours, which are additive.
type Alarm struct {
	Name    string
	Time    string
	Minutes int
	Hours   int
}

// WebsiteBlock blocks Sites immediately and lifts the block after Minutes+Hours.
type WebsiteBlock struct {
	Sites   []string
	Minutes int
	Hours   int
}

// FollowUpPrompt feeds Text back into the conversation after Delay.
type FollowUpPrompt struct {
	Text  string
	Delay time.Duration
}

func (Alarm) Kind() models.ActionKind          { return models.ActionAlarm }
func (WebsiteBlock) Kind() models.ActionKind   { return models.ActionWebsiteBlock }
func (FollowUpPrompt) Kind() models.ActionKind { return models.ActionFollowUpPrompt }

func (a Alarm) resolve(now time.Time) (time.Time, error) {
	if strings.TrimSpace(a.Name) == "" {
		return time.Time{}, &ValidationError{Field: "alarm_name", Reason: "alarm name is required"}
	}
	if strings.TrimSpace(a.Time) != "" {
		return ResolveClockTime(a.Time, now)
	}
	if a.Minutes == 0 && a.Hours == 0 {
		return time.Time{}, &ValidationError{Field: "time", Reason: "must specify either 'time' or 'minutes'/'hours'"}
	}
	d := time.Duration(a.Minutes)*time.Minute + time.Duration(a.Hours)*time.Hour
	if d <= 0 {
		return time.Time{}, &ValidationError{Field: "time", Reason: "alarm time must be in the future"}
	}
	return now.Add(d), nil
}

func (a Alarm) summary() string { return fmt.Sprintf("Alarm '%s'", a.Name) }

func (b WebsiteBlock) resolve(now time.Time) (time.Time, error) {
	if len(b.Sites) == 0 {
		return time.Time{}, &ValidationError{Field: "websites", Reason: "no websites specified to block"}
	}
	if len(b.Domains()) == 0 {
		return time.Time{}, &ValidationError{Field: "websites", Reason: "no valid domains to block"}
	}
	d := time.Duration(b.Minutes)*time.Minute + time.Duration(b.Hours)*time.Hour
	if d <= 0 {
		return time.Time{}, &ValidationError{Field: "minutes", Reason: "duration must be positive"}
	}
	return now.Add(d), nil
}

func (b WebsiteBlock) summary() string { return "Block " + strings.Join(b.Domains(), ", ") }

// Domains returns the normalized, de-duplicated sites in input order.
func (b WebsiteBlock) Domains() []string {
	seen := make(map[string]bool, len(b.Sites))
	var out []string
	for _, s := range b.Sites {
		d, err := NormalizeDomain(s)
		if err != nil || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// DurationText renders the block duration the way it is announced, e.g. "1h 30m".
func (b WebsiteBlock) DurationText() string {
	var parts []string
	if b.Hours != 0 {
		parts = append(parts, fmt.Sprintf("%dh", b.Hours))
	}
	if b.Minutes != 0 {
		parts = append(parts, fmt.Sprintf("%dm", b.Minutes))
	}
	return strings.Join(parts, " ")
}

func (p FollowUpPrompt) resolve(now time.Time) (time.Time, error) {
	if strings.TrimSpace(p.Text) == "" {
		return time.Time{}, &ValidationError{Field: "prompt", Reason: "prompt text is required"}
	}
	if p.Delay <= 0 {
		return time.Time{}, &ValidationError{Field: "delay_seconds", Reason: "delay must be positive"}
	}
	return now.Add(p.Delay), nil
}

func (p FollowUpPrompt) summary() string {
	const max = 60
	text := p.Text
	if r := []rune(text); len(r) > max {
		text = string(r[:max]) + "..."
	}
	return "Follow-up: " + text
}

var clockLayouts = []string{"15:04", "3:04 PM", "3:04PM"}

// ResolveClockTime turns a 24-hour "HH:MM" or 12-hour "HH:MM AM/PM" string into the next
// matching instant. A time that is not after now rolls forward exactly one day.
func ResolveClockTime(clock string, now time.Time) (time.Time, error) {
	s := strings.ToUpper(strings.TrimSpace(clock))
	var lastErr error
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			lastErr = err
			continue
		}
		target := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if !target.After(now) {
			target = target.AddDate(0, 0, 1)
		}
		return target, nil
	}
	return time.Time{}, &ParseError{Input: clock, Err: lastErr}
}

// NormalizeDomain reduces a URL or bare domain to a lower-case host without a leading "www.".
func NormalizeDomain(site string) (string, error) {
	s := strings.TrimSpace(site)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("could not parse %q: %w", site, err)
		}
		s = u.Hostname()
	} else if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "www.")
	if s == "" {
		return "", fmt.Errorf("no domain in %q", site)
	}
	return s, nil
}
