package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/commandfile"
)

type blockEntry struct {
	blockID uint64
	until   time.Time // zero means until an unblock command arrives
}

// Blocklist mirrors what a browser blocker enforces for a stream of commands.
type Blocklist struct {
	domains map[string]blockEntry
}

func NewBlocklist() *Blocklist {
	return &Blocklist{domains: make(map[string]blockEntry)}
}

// Apply folds one command into the list and reports whether the blocked set changed.
// An unblock only lifts domains still owned by its block id, so a newer block of the same
// domain survives an older block's unblock. Repeated unblocks are no-ops.
func (b *Blocklist) Apply(cmd commandfile.Command) bool {
	changed := false
	switch cmd.Command {
	case commandfile.Block:
		var until time.Time
		if cmd.UnblockTimestamp != nil {
			until = time.Unix(*cmd.UnblockTimestamp, 0)
		}
		for _, d := range cmd.Domains {
			d = normalizeDomain(d)
			if d == "" {
				continue
			}
			b.domains[d] = blockEntry{blockID: cmd.BlockID, until: until}
			changed = true
		}
	case commandfile.Unblock:
		for _, d := range cmd.Domains {
			d = normalizeDomain(d)
			if e, ok := b.domains[d]; ok && e.blockID == cmd.BlockID {
				delete(b.domains, d)
				changed = true
			}
		}
	}
	return changed
}

// Expire drops blocks whose unblock time has passed and returns the lifted domains.
func (b *Blocklist) Expire(now time.Time) []string {
	var lifted []string
	for d, e := range b.domains {
		if !e.until.IsZero() && !now.Before(e.until) {
			delete(b.domains, d)
			lifted = append(lifted, d)
		}
	}
	sort.Strings(lifted)
	return lifted
}

// Domains returns the blocked domains in order.
func (b *Blocklist) Domains() []string {
	out := make([]string, 0, len(b.domains))
	for d := range b.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// WriteHosts renders the list as hosts-file entries.
func (b *Blocklist) WriteHosts(w io.Writer) error {
	for _, d := range b.Domains() {
		if _, err := fmt.Fprintf(w, "0.0.0.0 %s\n0.0.0.0 www.%s\n", d, d); err != nil {
			return err
		}
	}
	return nil
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return d
}
