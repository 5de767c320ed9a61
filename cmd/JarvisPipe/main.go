package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/conversation"
	"github.com/BTreeMap/JarvisPipe/internal/genai"
	"github.com/BTreeMap/JarvisPipe/internal/lockfile"
	"github.com/BTreeMap/JarvisPipe/internal/pipeline"
	"github.com/BTreeMap/JarvisPipe/internal/store"
	"github.com/BTreeMap/JarvisPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/JarvisPipe/internal/util"
	"github.com/BTreeMap/JarvisPipe/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir holds the database, command file and lock
	DefaultStateDir = "./.jarvis"
	// DefaultDBFileName is the SQLite database created in the state directory
	DefaultDBFileName = "jarvis.db"
	// DefaultWhatsAppDBFileName is the whatsmeow device store in the state directory
	DefaultWhatsAppDBFileName = "whatsapp.db"
	// DefaultCommandFileName is the block command file the blocker watches
	DefaultCommandFileName   = "block-commands.json"
	DefaultSystemPromptFile  = "tools/system.txt"
	DefaultMemoryFile        = "tools/memory.txt"
	DefaultDataDir           = "data"
	DefaultLogRetentionFiles = 5
)

func main() {
	// Bootstrap logger; reconfigured once flags are known
	initializeLogger(os.Stderr, "info", "text")

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)

	logCloser, err := configureLogging(flags)
	if err != nil {
		slog.Error("Failed to configure logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping JarvisPipe")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"db_type", store.DetectDSNType(*flags.dbDSN),
		"model", *flags.model,
		"api_addr", *flags.apiAddr,
		"nats_enabled", *flags.natsURL != "")

	if err := run(context.Background(), flags); err != nil {
		var lockErr *lockfile.LockError
		if errors.As(err, &lockErr) {
			fmt.Fprintln(os.Stderr, lockErr.Error())
		}
		slog.Error("JarvisPipe failed to run", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
	slog.Info("JarvisPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	DBDSN            string
	OpenAIKey        string
	OpenAIBaseURL    string
	Model            string
	WakeWord         string
	WakeThreshold    int
	WakeMinLength    int
	RequireWakeWord  bool
	SystemPromptFile string
	MemoryFile       string
	DataDir          string
	CommandFile      string
	APIAddr          string
	NATSURL          string
	History          int
	Tick             time.Duration
	LogLevel         string
	LogFormat        string
	LogDir           string
	DesktopNotify    bool

	WhatsAppNotifyTo string
	WhatsAppDBDSN    string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioNotifyTo   string
}

// Flags holds command line flag values
type Flags struct {
	stateDir         *string
	dbDSN            *string
	openaiKey        *string
	openaiBaseURL    *string
	model            *string
	wakeWord         *string
	wakeThreshold    *int
	wakeMinLength    *int
	requireWakeWord  *bool
	systemPromptFile *string
	memoryFile       *string
	dataDir          *string
	commandFile      *string
	apiAddr          *string
	natsURL          *string
	history          *int
	tick             *time.Duration
	logDir           *string
	desktopNotify    *bool
	whatsappNotifyTo *string
	whatsappDBDSN    *string
	qrOutput         *string
	numeric          *bool

	// environment only
	logLevel  string
	logFormat string
	twilio    twilioConfig
}

type twilioConfig struct {
	accountSID string
	authToken  string
	from       string
	notifyTo   string
}

// initializeLogger installs a slog handler on w. format is "text" or "json".
func initializeLogger(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// configureLogging applies LOG_LEVEL and LOG_FORMAT. With --log-dir set, logs go only to a
// timestamped file there so the console carries just the conversation.
func configureLogging(flags Flags) (io.Closer, error) {
	if *flags.logDir == "" {
		initializeLogger(os.Stderr, flags.logLevel, flags.logFormat)
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(*flags.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.Create(logFilePath(*flags.logDir, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}
	initializeLogger(f, flags.logLevel, flags.logFormat)
	slog.Debug("Logging to file", "path", f.Name())
	return f, nil
}

func logFilePath(dir string, now time.Time) string {
	return filepath.Join(dir, now.Format("2006-01-02_15-04-05")+".txt")
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("JARVIS_STATE_DIR"),
		DBDSN:            os.Getenv("JARVIS_DB_DSN"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    envOr("OPENAI_BASE_URL", genai.DefaultBaseURL),
		Model:            envOr("JARVIS_MODEL", genai.DefaultModel),
		WakeWord:         envOr("JARVIS_WAKE_WORD", conversation.DefaultWakeWord),
		WakeThreshold:    util.ParseIntEnv("JARVIS_WAKE_THRESHOLD", conversation.DefaultThreshold),
		WakeMinLength:    util.ParseIntEnv("JARVIS_WAKE_MIN_LENGTH", conversation.DefaultMinTokenLength),
		RequireWakeWord:  util.ParseBoolEnv("JARVIS_REQUIRE_WAKE_WORD", true),
		SystemPromptFile: envOr("JARVIS_SYSTEM_PROMPT_FILE", DefaultSystemPromptFile),
		MemoryFile:       envOr("JARVIS_MEMORY_FILE", DefaultMemoryFile),
		DataDir:          envOr("JARVIS_DATA_DIR", DefaultDataDir),
		CommandFile:      os.Getenv("JARVIS_COMMAND_FILE"),
		APIAddr:          os.Getenv("API_ADDR"),
		NATSURL:          os.Getenv("NATS_URL"),
		History:          util.ParseIntEnv("JARVIS_HISTORY", 0),
		Tick:             util.ParseDurationEnv("JARVIS_TICK", pipeline.DefaultTick),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "text"),
		LogDir:           os.Getenv("JARVIS_LOG_DIR"),
		DesktopNotify:    util.ParseBoolEnv("JARVIS_DESKTOP_NOTIFY", true),
		WhatsAppNotifyTo: os.Getenv("WHATSAPP_NOTIFY_TO"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioNotifyTo:   os.Getenv("TWILIO_NOTIFY_TO"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No JARVIS_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"JARVIS_STATE_DIR", config.StateDir,
		"JARVIS_DB_DSN_SET", config.DBDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_BASE_URL", config.OpenAIBaseURL,
		"JARVIS_MODEL", config.Model,
		"API_ADDR", config.APIAddr,
		"NATS_URL_SET", config.NATSURL != "")

	return config
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseCommandLineFlags parses args into fs with environment values as defaults. Paths that
// default into the state directory follow --state-dir unless set explicitly.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		stateDir:         fs.String("state-dir", config.StateDir, "state directory for database, command file and lock (overrides $JARVIS_STATE_DIR)"),
		dbDSN:            fs.String("db-dsn", config.DBDSN, "SQLite path, postgres:// or redis:// DSN (overrides $JARVIS_DB_DSN)"),
		openaiKey:        fs.String("openai-api-key", config.OpenAIKey, "API key for the chat endpoint (overrides $OPENAI_API_KEY)"),
		openaiBaseURL:    fs.String("openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible base URL (overrides $OPENAI_BASE_URL)"),
		model:            fs.String("model", config.Model, "chat model name (overrides $JARVIS_MODEL)"),
		wakeWord:         fs.String("wake-word", config.WakeWord, "wake word (overrides $JARVIS_WAKE_WORD)"),
		wakeThreshold:    fs.Int("wake-threshold", config.WakeThreshold, "fuzzy match threshold 0-100 (overrides $JARVIS_WAKE_THRESHOLD)"),
		wakeMinLength:    fs.Int("wake-min-length", config.WakeMinLength, "shortest token compared with the wake word (overrides $JARVIS_WAKE_MIN_LENGTH)"),
		requireWakeWord:  fs.Bool("require-wake-word", config.RequireWakeWord, "only answer utterances near the wake word (overrides $JARVIS_REQUIRE_WAKE_WORD)"),
		systemPromptFile: fs.String("system-prompt-file", config.SystemPromptFile, "system prompt file (overrides $JARVIS_SYSTEM_PROMPT_FILE)"),
		memoryFile:       fs.String("memory-file", config.MemoryFile, "memory file appended to the system prompt (overrides $JARVIS_MEMORY_FILE)"),
		dataDir:          fs.String("data-dir", config.DataDir, "directory the file tools may access (overrides $JARVIS_DATA_DIR)"),
		commandFile:      fs.String("command-file", config.CommandFile, "block command file (overrides $JARVIS_COMMAND_FILE)"),
		apiAddr:          fs.String("api-addr", config.APIAddr, "HTTP API address, empty disables it (overrides $API_ADDR)"),
		natsURL:          fs.String("nats-url", config.NATSURL, "NATS server for event publishing (overrides $NATS_URL)"),
		history:          fs.Int("history", config.History, "messages restored from the store into the new session (overrides $JARVIS_HISTORY)"),
		tick:             fs.Duration("tick", config.Tick, "pipeline tick interval (overrides $JARVIS_TICK)"),
		logDir:           fs.String("log-dir", config.LogDir, "directory for timestamped log files"),
		desktopNotify:    fs.Bool("desktop-notify", config.DesktopNotify, "show desktop notifications and beep for alarms (overrides $JARVIS_DESKTOP_NOTIFY)"),
		whatsappNotifyTo: fs.String("whatsapp-notify-to", config.WhatsAppNotifyTo, "phone number that receives alarm pushes (overrides $WHATSAPP_NOTIFY_TO)"),
		whatsappDBDSN:    fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)"),
		qrOutput:         fs.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:          fs.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		logLevel:         config.LogLevel,
		logFormat:        config.LogFormat,
		twilio: twilioConfig{
			accountSID: config.TwilioAccountSID,
			authToken:  config.TwilioAuthToken,
			from:       config.TwilioFrom,
			notifyTo:   config.TwilioNotifyTo,
		},
	}

	if err := fs.Parse(args); err != nil {
		slog.Error("failed to parse flags", "error", err)
	}

	if *flags.dbDSN == "" {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}
	if *flags.commandFile == "" {
		*flags.commandFile = filepath.Join(*flags.stateDir, DefaultCommandFileName)
	}
	if *flags.whatsappDBDSN == "" {
		*flags.whatsappDBDSN = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_type", store.DetectDSNType(*flags.dbDSN),
		"commandFile", *flags.commandFile,
		"model", *flags.model,
		"requireWakeWord", *flags.requireWakeWord,
		"apiAddr", *flags.apiAddr,
		"history", *flags.history,
		"tick", *flags.tick)

	return flags
}

// ensureDirectoriesExist creates the state directory, the command file's directory and,
// for SQLite, the database directory.
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir, filepath.Dir(*flags.commandFile)}
	if store.DetectDSNType(*flags.dbDSN) == store.DSNSQLite {
		dirs = append(dirs, filepath.Dir(*flags.dbDSN))
	}
	for _, dir := range dirs {
		slog.Debug("Ensuring directory exists", "dir", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if store.DetectDSNType(*flags.dbDSN) == store.DSNRedis {
		storeOpts = append(storeOpts, store.WithRetention(store.DefaultRetention))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBaseURL))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	return genaiOpts
}

// buildGateConfig constructs the wake-word gate configuration
func buildGateConfig(flags Flags) conversation.GateConfig {
	cfg := conversation.DefaultGateConfig()
	if *flags.wakeWord != "" {
		cfg.WakeWord = *flags.wakeWord
	}
	if t := *flags.wakeThreshold; t >= 0 && t <= 100 {
		cfg.Threshold = t
	} else {
		slog.Warn("wake threshold out of range, using default", "threshold", t, "default", cfg.Threshold)
	}
	if *flags.wakeMinLength > 0 {
		cfg.MinTokenLength = *flags.wakeMinLength
	}
	cfg.RequireWakeWord = *flags.requireWakeWord
	return cfg
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.whatsappDBDSN)}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options; unset values fall back to
// the client's own environment lookup.
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if flags.twilio.accountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(flags.twilio.accountSID))
	}
	if flags.twilio.authToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(flags.twilio.authToken))
	}
	if flags.twilio.from != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(flags.twilio.from))
	}
	return opts
}

// loadSystemPrompt joins the system prompt file and the memory file. Missing files are
// logged and treated as empty.
func loadSystemPrompt(systemFile, memoryFile string) string {
	read := func(path, what string) string {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("could not read "+what, "path", path, "error", err)
			return ""
		}
		return strings.TrimSpace(string(data))
	}
	system := read(systemFile, "system prompt file")
	memory := read(memoryFile, "memory file")
	return system + "\n\nMEMORY:\n" + memory
}
