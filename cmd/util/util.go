package util

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/backend/session"
	"github.com/ValentinKolb/sKV/lib/backend/sqlite"
	"github.com/ValentinKolb/sKV/lib/logging"
	"github.com/ValentinKolb/sKV/lib/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupGlobalFlags adds the backend and logging flags to the root command
func SetupGlobalFlags(cmd *cobra.Command) {
	key := "local-path"
	cmd.PersistentFlags().String(key, "skv.db", WrapString("SQLite file backing localStorage (empty disables localStorage)"))

	key = "session-file"
	cmd.PersistentFlags().String(key, "", WrapString("Snapshot file for sessionStorage, loaded on start and written on exit (empty keeps sessionStorage in memory only)"))

	key = "session-quota"
	cmd.PersistentFlags().Int64(key, 0, WrapString("Maximum size of sessionStorage in bytes (0 = unlimited)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("Log level (debug, info, warn, error)"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print the collected metrics in Prometheus text format after the command"))
}

// SetupStorageFlags adds the flags describing one storage instance
func SetupStorageFlags(cmd *cobra.Command) {
	key := "key"
	cmd.PersistentFlags().String(key, "", WrapString("Logical key of the storage instance (required)"))

	key = "type"
	cmd.PersistentFlags().String(key, string(storage.DefaultType), WrapString("Storage type (variable, sessionStorage, localStorage)"))

	key = "tag"
	cmd.PersistentFlags().String(key, "", WrapString("Version tag, persisted data with another tag is discarded"))

	key = "duration"
	cmd.PersistentFlags().Duration(key, 0, WrapString("How long the data stays valid after the last use (e.g. 10m, 0 = forever)"))

	key = "until"
	cmd.PersistentFlags().String(key, "", WrapString("Absolute deadline in RFC3339 format after which the data is discarded"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("skv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// InitLogging sets up the loggers with the configured level
func InitLogging() {
	if err := logging.InitLoggers(viper.GetString("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetRegistryOptions reads the registry options from viper
func GetRegistryOptions() *storage.Options {
	opts := storage.DefaultOptions()

	sessionOpts := session.DefaultOptions()
	sessionOpts.SnapshotPath = viper.GetString("session-file")
	sessionOpts.Quota = viper.GetInt64("session-quota")
	opts.Session = session.Factory(sessionOpts)

	if path := viper.GetString("local-path"); path != "" {
		opts.Local = sqlite.Factory(path)
	}
	return opts
}

// GetStorageConfig reads the storage instance config from viper
func GetStorageConfig() (storage.Config, error) {
	t, err := storage.ParseType(viper.GetString("type"))
	if err != nil {
		return storage.Config{}, err
	}

	conf := storage.Config{
		Key:      viper.GetString("key"),
		Type:     t,
		Tag:      viper.GetString("tag"),
		Duration: viper.GetDuration("duration"),
	}
	if conf.Key == "" {
		return storage.Config{}, fmt.Errorf("--key is required")
	}

	if until := viper.GetString("until"); until != "" {
		conf.Until, err = time.Parse(time.RFC3339, until)
		if err != nil {
			return storage.Config{}, fmt.Errorf("until must be in RFC3339 format: %w", err)
		}
	}
	return conf, nil
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

var (
	registryMu sync.Mutex
	registry   *storage.Registry
)

// OpenRegistry creates the registry from the configuration and installs it
// as the default one. Repeated calls return the same registry.
func OpenRegistry() *storage.Registry {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry == nil {
		registry = storage.NewRegistry(GetRegistryOptions())
		storage.SetDefault(registry)
	}
	return registry
}

// CloseRegistry closes the registry opened by OpenRegistry, if any. This
// writes the session snapshot.
func CloseRegistry() error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry == nil {
		return nil
	}
	err := registry.Close()
	registry = nil
	return err
}

// --------------------------------------------------------------------------
// Values
// --------------------------------------------------------------------------

// ParseValue decodes a command line value as JSON. Anything that is not
// valid JSON is used as a plain string.
func ParseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// FormatValue renders a value as JSON for printing
func FormatValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
