package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/api"
	"github.com/BTreeMap/JarvisPipe/internal/commandfile"
	"github.com/BTreeMap/JarvisPipe/internal/conversation"
	"github.com/BTreeMap/JarvisPipe/internal/events"
	"github.com/BTreeMap/JarvisPipe/internal/genai"
	"github.com/BTreeMap/JarvisPipe/internal/lockfile"
	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/BTreeMap/JarvisPipe/internal/notify"
	"github.com/BTreeMap/JarvisPipe/internal/pipeline"
	"github.com/BTreeMap/JarvisPipe/internal/scheduler"
	"github.com/BTreeMap/JarvisPipe/internal/store"
	"github.com/BTreeMap/JarvisPipe/internal/tools"
	"github.com/BTreeMap/JarvisPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/JarvisPipe/internal/whatsapp"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const persistTimeout = 5 * time.Second

// run wires every component and blocks until interrupted. Teardown order: stop reading
// input, stop the pipeline and API, cancel pending actions, then close sinks and the lock.
func run(parent context.Context, flags Flags) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	if *flags.logDir != "" {
		c := scheduler.NewCron()
		if err := c.AddJob("@hourly", func() { pruneLogs(*flags.logDir) }); err != nil {
			slog.Warn("log retention job not scheduled", "error", err)
		}
		defer c.Stop()
		pruneLogs(*flags.logDir)
	}

	st, err := store.Open(*flags.dbDSN, buildStoreOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var publisher *events.Publisher
	if *flags.natsURL != "" {
		publisher, err = events.Connect(*flags.natsURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer publisher.Close()
	}

	sessionID := uuid.NewString()
	slog.Info("Starting session", "session_id", sessionID)

	conv := conversation.NewContext(loadSystemPrompt(*flags.systemPromptFile, *flags.memoryFile),
		conversation.WithAppendHook(persistMessage(st, publisher, sessionID)))
	if n := *flags.history; n > 0 {
		history, err := st.RecentMessages(ctx, n)
		if err != nil {
			slog.Warn("could not restore history", "error", err)
		} else {
			conv.Seed(history)
		}
	}

	notifier, closeNotifier, err := buildNotifier(ctx, flags)
	if err != nil {
		return err
	}
	defer closeNotifier()

	recorders := events.Recorders{st}
	if publisher != nil {
		recorders = append(recorders, publisher)
	}
	injector := conversation.NewInjector()
	sched := scheduler.New(
		scheduler.WithNotifier(notifier),
		scheduler.WithCommandWriter(commandfile.NewWriter(*flags.commandFile)),
		scheduler.WithPromptQueue(injector),
		scheduler.WithRecorder(recorders),
	)
	defer sched.Stop()

	registry, err := tools.NewRegistryWith(
		tools.NewActionTools(sched),
		tools.NewFileTools(*flags.dataDir, *flags.memoryFile),
		tools.NewSystemTools(),
		tools.NewSandbox(tools.DefaultSandboxTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	engine := genai.NewClient(buildGenAIOptions(flags)...)
	gate := conversation.NewGate(conv, buildGateConfig(flags))
	collector := conversation.NewCollector(conv, pipeline.NewConsoleSpeaker(os.Stdout))
	p := pipeline.New(conv, gate, collector, injector, engine, registry, pipeline.WithTick(*flags.tick))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	if *flags.apiAddr != "" {
		srv := api.NewServer(*flags.apiAddr, api.Deps{
			Submitter:  p,
			Gate:       gate,
			Transcript: conv,
			Actions:    sched,
			History:    st,
		})
		g.Go(func() error { return srv.Start(gctx) })
	}

	// Stdin is not tracked by the group: a blocked read cannot be interrupted.
	go func() {
		err := pipeline.ReadLines(gctx, os.Stdin, p)
		switch {
		case err != nil && !errors.Is(err, pipeline.ErrStopped) && !errors.Is(err, context.Canceled):
			slog.Error("console input failed", "error", err)
		case *flags.apiAddr == "":
			slog.Info("console input closed, shutting down")
			stop()
		}
	}()

	fmt.Fprintf(os.Stdout, "JarvisPipe ready (model %s). Say %q to get my attention.\n", engine.Model(), gate.Config().WakeWord)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Shutting down", "pending_actions", sched.Len())
	return nil
}

// persistMessage returns an append hook that stores each message and publishes it.
// Failures are logged; the conversation continues in memory.
func persistMessage(st store.Store, publisher *events.Publisher, sessionID string) conversation.AppendHook {
	return func(msg models.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := st.AppendMessage(ctx, sessionID, msg); err != nil {
			slog.Warn("failed to persist message", "session_id", sessionID, "role", msg.Role, "error", err)
		}
		if publisher != nil {
			if err := publisher.PublishMessage(sessionID, msg); err != nil {
				slog.Warn("failed to publish message", "session_id", sessionID, "error", err)
			}
		}
	}
}

// buildNotifier combines the desktop notifier with the configured phone pushes. Without
// any, fired actions are only logged.
func buildNotifier(ctx context.Context, flags Flags) (notify.Notifier, func(), error) {
	var (
		multi   notify.Multi
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if *flags.desktopNotify {
		multi = append(multi, notify.NewDesktop())
	}
	if to := *flags.whatsappNotifyTo; to != "" {
		wa, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to start WhatsApp client: %w", err)
		}
		closers = append(closers, wa.Close)
		multi = append(multi, notify.NewPush(wa, to))
		slog.Info("WhatsApp alarm pushes enabled")
	}
	if to := flags.twilio.notifyTo; to != "" {
		tw, err := twiliowhatsapp.NewClient(buildTwilioOptions(flags)...)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		multi = append(multi, notify.NewPush(tw, to))
		slog.Info("Twilio alarm pushes enabled")
	}

	if len(multi) == 0 {
		return notify.Log{}, closeAll, nil
	}
	return multi, closeAll, nil
}

func pruneLogs(dir string) {
	removed, err := scheduler.PruneFiles(dir, "*.txt", DefaultLogRetentionFiles)
	if err != nil {
		slog.Warn("log retention failed", "dir", dir, "error", err)
		return
	}
	if removed > 0 {
		slog.Info("old log files removed", "dir", dir, "removed", removed)
	}
}
