// Command blockwatch follows the block command file written by JarvisPipe and keeps the
// resulting blocklist, optionally as a hosts file for a local blocker.
package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/commandfile"
	"github.com/spf13/cobra"
)

var (
	hostsOut      string
	sweepInterval time.Duration
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "blockwatch",
	Short: "Follow JarvisPipe website block commands",
	Long: `blockwatch reads the command file JarvisPipe writes when the assistant blocks
or unblocks websites.

Available subcommands:
  watch - follow the file and maintain the blocklist
  show  - print the command currently in the file`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	SilenceUsage: true,
}

var watchCmd = &cobra.Command{
	Use:   "watch <command-file>",
	Short: "Follow the command file and maintain the blocklist",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var showCmd = &cobra.Command{
	Use:   "show <command-file>",
	Short: "Print the command currently in the file",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	watchCmd.Flags().StringVar(&hostsOut, "hosts-out", "", "rewrite this hosts-format file whenever the blocklist changes")
	watchCmd.Flags().DurationVar(&sweepInterval, "sweep", time.Second, "how often expired blocks are lifted")
	rootCmd.AddCommand(watchCmd, showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := commandfile.NewWatcher(args[0])
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", args[0], err)
	}
	commands := make(chan commandfile.Command, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- watcher.Run(ctx, func(c commandfile.Command) {
			select {
			case commands <- c:
			case <-ctx.Done():
			}
		})
	}()

	list := NewBlocklist()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return <-errCh
		case err := <-errCh:
			return err
		case c := <-commands:
			if err := c.Validate(); err != nil {
				slog.Warn("blockwatch: ignoring invalid command", "error", err)
				continue
			}
			if list.Apply(c) {
				slog.Info("blockwatch: command applied", "command", c.Command, "block_id", c.BlockID, "domains", c.Domains)
				publish(cmd, list)
			}
		case now := <-ticker.C:
			if lifted := list.Expire(now); len(lifted) > 0 {
				slog.Info("blockwatch: blocks expired", "domains", lifted)
				publish(cmd, list)
			}
		}
	}
}

// publish prints the current blocklist and refreshes the hosts file.
func publish(cmd *cobra.Command, list *Blocklist) {
	domains := list.Domains()
	if len(domains) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "blocked: (none)")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "blocked: %s\n", strings.Join(domains, ", "))
	}
	if hostsOut == "" {
		return
	}
	if err := writeHostsFile(hostsOut, list); err != nil {
		slog.Error("blockwatch: failed to write hosts file", "path", hostsOut, "error", err)
	}
}

func writeHostsFile(path string, list *Blocklist) error {
	var buf bytes.Buffer
	buf.WriteString("# managed by blockwatch\n")
	if err := list.WriteHosts(&buf); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func runShow(cmd *cobra.Command, args []string) error {
	c, err := commandfile.Read(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "command:   %s\n", c.Command)
	fmt.Fprintf(out, "block id:  %d\n", c.BlockID)
	fmt.Fprintf(out, "domains:   %s\n", strings.Join(c.Domains, ", "))
	if c.UnblockTimestamp != nil {
		fmt.Fprintf(out, "unblocks:  %s\n", time.Unix(*c.UnblockTimestamp, 0).Format(time.RFC3339))
	}
	fmt.Fprintf(out, "written:   %s\n", time.Unix(0, int64(c.Timestamp*float64(time.Second))).Format(time.RFC3339))
	return nil
}
