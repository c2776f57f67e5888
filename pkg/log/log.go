package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger every component derives its own child
// logger from via WithComponent/WithJobID/WithFileID/WithEndpoint.
var Logger zerolog.Logger

// Level names one of the values the configuration blob's log_level
// attribute (spec.md §6, parsed by worker/config.go) may carry.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// zerologLevel resolves l through zerolog's own level parser rather than a
// hand-rolled switch, so a config.xml log_level attribute zerolog
// recognizes (e.g. "trace") works even though Level only names the four
// levels the worker's CLI flags expose. An unrecognized value falls back to
// info: a misspelled log_level attribute must never keep a worker from
// starting.
func (l Level) zerologLevel() zerolog.Level {
	parsed, err := zerolog.ParseLevel(string(l))
	if err != nil {
		return zerolog.InfoLevel
	}
	return parsed
}

// Config holds the settings config.xml's log_level attribute and the
// jobflow CLI's --log-level/--log-json flags resolve into.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init sets the package-level Logger and zerolog's global level from cfg.
// Called once, at worker or CLI startup, before any component logger is
// derived from Logger.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerologLevel())

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// withField returns a child of Logger carrying one extra string field,
// shared by the With* helpers below instead of each repeating
// Logger.With().Str(...).Logger().
func withField(key, value string) zerolog.Logger {
	return Logger.With().Str(key, value).Logger()
}

// WithComponent returns a child logger tagged with which jobflow component
// (jobstore, recovery, worker, a specific backend, ...) emitted a record.
func WithComponent(component string) zerolog.Logger {
	return withField("component", component)
}

// WithJobID returns a child logger tagged with the job record a log line
// concerns.
func WithJobID(jobStoreID string) zerolog.Logger {
	return withField("job_store_id", jobStoreID)
}

// WithFileID returns a child logger tagged with the per-job or shared file
// a log line concerns.
func WithFileID(fileID string) zerolog.Logger {
	return withField("job_store_file_id", fileID)
}

// WithEndpoint returns a child logger tagged with the job-store endpoint a
// log line concerns.
func WithEndpoint(endpoint string) zerolog.Logger {
	return withField("job_store_endpoint", endpoint)
}
