package conversation

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/JarvisPipe/internal/fuzzy"
	"github.com/BTreeMap/JarvisPipe/internal/metrics"
	"github.com/BTreeMap/JarvisPipe/internal/models"
)

// Default gate configuration.
const (
	DefaultWakeWord       = "jarvis"
	DefaultThreshold      = 91
	DefaultMinTokenLength = 4
)

// GateConfig controls which utterances reach the model.
type GateConfig struct {
	WakeWord       string
	Threshold      int
	MinTokenLength int
	// RequireWakeWord false accepts every non-blank utterance (typed input).
	RequireWakeWord bool
}

// DefaultGateConfig returns the wake-word gate used for spoken input.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		WakeWord:        DefaultWakeWord,
		Threshold:       DefaultThreshold,
		MinTokenLength:  DefaultMinTokenLength,
		RequireWakeWord: true,
	}
}

// Decision describes how the gate judged one utterance.
type Decision struct {
	Accepted bool
	Token    string
	Score    int
}

// Gate filters finalized utterances by fuzzy wake-word match and appends accepted ones.
type Gate struct {
	cfg  GateConfig
	conv *Context
}

// NewGate creates a Gate writing accepted utterances into conv.
func NewGate(conv *Context, cfg GateConfig) *Gate {
	if cfg.WakeWord == "" {
		cfg.WakeWord = DefaultWakeWord
	}
	cfg.WakeWord = strings.ToLower(cfg.WakeWord)
	return &Gate{cfg: cfg, conv: conv}
}

// Config returns the effective configuration.
func (g *Gate) Config() GateConfig { return g.cfg }

// Decide scores utterance against the wake word. Only whitespace-separated tokens longer than
// MinTokenLength are considered; no such token means rejection.
func (g *Gate) Decide(utterance string) Decision {
	if !g.cfg.RequireWakeWord {
		return Decision{Accepted: strings.TrimSpace(utterance) != ""}
	}
	var tokens []string
	for _, w := range strings.Fields(utterance) {
		if len([]rune(w)) > g.cfg.MinTokenLength {
			tokens = append(tokens, strings.ToLower(w))
		}
	}
	if len(tokens) == 0 {
		return Decision{}
	}
	m := fuzzy.BestMatch(g.cfg.WakeWord, tokens)
	return Decision{Accepted: m.Candidate != "" && m.Score >= g.cfg.Threshold, Token: m.Candidate, Score: m.Score}
}

// Evaluate reports whether utterance passes the gate.
func (g *Gate) Evaluate(utterance string) bool {
	return g.Decide(utterance).Accepted
}

// Process appends an accepted utterance as a user message and returns the inference request
// carrying the full context. Rejected utterances are dropped and never retried.
func (g *Gate) Process(utterance string) (models.InferenceReady, bool) {
	utterance = strings.TrimSpace(utterance)
	d := g.Decide(utterance)
	slog.Info("Gate.Process: utterance evaluated", "accepted", d.Accepted, "score", d.Score, "token", d.Token, "length", len(utterance))
	if !d.Accepted {
		metrics.GateDecisionsTotal.WithLabelValues("rejected").Inc()
		return models.InferenceReady{}, false
	}
	metrics.GateDecisionsTotal.WithLabelValues("accepted").Inc()
	if _, err := g.conv.Append(models.RoleUser, utterance); err != nil {
		slog.Error("Gate.Process: failed to append utterance", "error", err)
		return models.InferenceReady{}, false
	}
	return models.InferenceReady{Messages: g.conv.Messages()}, true
}
