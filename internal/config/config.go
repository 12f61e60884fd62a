// Package config provides configuration loading and defaults for the embycord daemon.
//
// Configuration is loaded from a TOML file in the user's data directory.
// The package handles Discord and Emby connection settings, the watch list,
// privacy controls, placeholder assets, and daemon behavior with sensible
// defaults. Secrets are never stored in the file; it names the environment
// variables that hold them.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/embycord/internal/atomicfile"
	"tools.zach/dev/embycord/internal/media"
	"tools.zach/dev/embycord/internal/migrate"
	"tools.zach/dev/embycord/internal/paths"
)

// Default environment variable names for secrets and the parent channel.
const (
	DefaultTokenEnv   = "NOWPLAYING_DISCORD_BOT_TOKEN"
	DefaultChannelEnv = "EMBY_THREAD_CHANNEL"
	DefaultAPIKeyEnv  = "EMBY_API_BOT_KEY"
)

// DefaultDiscordAPI is the Discord REST base URL.
const DefaultDiscordAPI = "https://discord.com/api/v10"

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Discord holds Discord bot and thread settings.
	Discord DiscordConfig `toml:"discord"`
	// Emby holds media server connection settings.
	Emby EmbyConfig `toml:"emby"`
	// Watch holds the watch and ignore lists.
	Watch WatchConfig `toml:"watch"`
	// Privacy holds content suppression settings.
	Privacy PrivacyConfig `toml:"privacy"`
	// Behavior holds polling and reconciliation settings.
	Behavior BehaviorConfig `toml:"behavior"`
	// Assets holds placeholder image settings.
	Assets AssetsConfig `toml:"assets"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Metrics holds the Prometheus endpoint settings.
	Metrics MetricsConfig `toml:"metrics"`
}

// DiscordConfig holds Discord bot and thread settings.
type DiscordConfig struct {
	// TokenEnv names the environment variable holding the bot token.
	TokenEnv string `toml:"token_env"`
	// ChannelID is the parent text channel for the status thread.
	// When empty, the channel is read from ChannelEnv.
	ChannelID string `toml:"channel_id"`
	// ChannelEnv names the environment variable holding the parent channel ID.
	ChannelEnv string `toml:"channel_env"`
	// ThreadName is the private thread found or created under the parent channel.
	ThreadName string `toml:"thread_name"`
	// PurgeLimit is how many recent thread messages are scanned at startup
	// for stale messages authored by the bot.
	PurgeLimit int `toml:"purge_limit"`
	// APIURL is the Discord REST base URL.
	APIURL string `toml:"api_url"`
}

// EmbyConfig holds media server connection settings.
type EmbyConfig struct {
	// URL is the Emby server base URL.
	URL string `toml:"url"`
	// APIKeyEnv names the environment variable holding the Emby API key.
	APIKeyEnv string `toml:"api_key_env"`
	// ImageCache keeps fetched artwork on disk keyed by item and image tag.
	ImageCache bool `toml:"image_cache"`
}

// WatchConfig holds the watch and ignore lists.
type WatchConfig struct {
	// Users are the usernames mirrored to Discord (case-insensitive).
	Users []string `toml:"users"`
	// Ignore holds glob patterns; matching usernames are never mirrored.
	Ignore []string `toml:"ignore"`
}

// PrivacyConfig holds content suppression settings.
type PrivacyConfig struct {
	// RestrictedRatings lists official ratings whose movies are never shown.
	RestrictedRatings []string `toml:"restricted_ratings"`
}

// BehaviorConfig holds polling and reconciliation settings.
type BehaviorConfig struct {
	// PollIntervalSeconds is the time between reconciliation ticks.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	// DebounceSeconds suppresses re-renders of the same item within this window.
	DebounceSeconds int `toml:"debounce_seconds"`
	// CallTimeoutSeconds bounds every external call.
	CallTimeoutSeconds int `toml:"call_timeout_seconds"`
	// RefreshKinds lists media kinds re-rendered after the debounce window.
	RefreshKinds []string `toml:"refresh_kinds"`
	// MaxParallel caps concurrent per-user transitions within a tick.
	MaxParallel int `toml:"max_parallel"`
	// ClearOnExit deletes every owned message on shutdown.
	ClearOnExit bool `toml:"clear_on_exit"`
	// ConnectRetries is the number of startup attempts to reach Discord.
	ConnectRetries int `toml:"connect_retries"`
	// ReconnectIntervalSeconds is the wait between startup attempts.
	ReconnectIntervalSeconds int `toml:"reconnect_interval_seconds"`
}

// AssetsConfig holds placeholder image settings.
type AssetsConfig struct {
	// Dir is the placeholder image directory, relative to the data directory
	// unless absolute.
	Dir string `toml:"dir"`
	// IdleImage is shown while nobody is playing anything.
	IdleImage string `toml:"idle_image"`
	// MovieMissing is shown for movies without artwork.
	MovieMissing string `toml:"movie_missing"`
	// SeriesMissing is shown for episodes without a series folder image.
	SeriesMissing string `toml:"series_missing"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// Stderr copies every log line to standard error.
	Stderr bool `toml:"stderr"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	// ListenAddr serves /metrics and /healthz; empty disables the endpoint.
	ListenAddr string `toml:"listen_addr"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
// The watch list is empty, so the result does not pass [Config.Validate]
// until at least one user is added.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Discord: DiscordConfig{
			TokenEnv:   DefaultTokenEnv,
			ChannelEnv: DefaultChannelEnv,
			ThreadName: "Now Playing Updates",
			PurgeLimit: 200,
			APIURL:     DefaultDiscordAPI,
		},
		Emby: EmbyConfig{
			URL:        "http://127.0.0.1:8096",
			APIKeyEnv:  DefaultAPIKeyEnv,
			ImageCache: true,
		},
		Watch: WatchConfig{
			Users:  []string{},
			Ignore: []string{"adult"},
		},
		Privacy: PrivacyConfig{
			RestrictedRatings: []string{"Adult"},
		},
		Behavior: BehaviorConfig{
			PollIntervalSeconds:      10,
			DebounceSeconds:          10,
			CallTimeoutSeconds:       5,
			RefreshKinds:             []string{"audiobook"},
			MaxParallel:              4,
			ClearOnExit:              false,
			ConnectRetries:           10,
			ReconnectIntervalSeconds: 15,
		},
		Assets: AssetsConfig{
			Dir:           paths.AssetsDir,
			IdleImage:     paths.NothingPlayingAsset,
			MovieMissing:  paths.MovieMissingAsset,
			SeriesMissing: paths.SeriesMissingAsset,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Example Configuration
// ///////////////////////////////////////////////

// ExampleConfig returns a Config suitable for generating config.default.toml.
// It differs from the defaults only by a sample watch list.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.Watch.Users = []string{"alice", "bob"}
	return cfg
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig unvalidated; callers
// decide whether to write a template and stop.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	if version > migrate.Config.CurrentVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", version, migrate.Config.CurrentVersion)
	}

	migrated := migrate.Config.NeedsMigration(version)
	if migrated {
		if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		data, err = migrateTOML(data, version)
		if err != nil {
			return nil, fmt.Errorf("migrate config: %w", err)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if migrated {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}

	return cfg, nil
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slog.Warn("unknown config keys ignored", "keys", strings.Join(keys, " "))
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// migrateTOML runs the config migrations over a decoded document and
// re-encodes it.
func migrateTOML(data []byte, version int) ([]byte, error) {
	doc := migrate.Document{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if _, err := migrate.Config.Run(doc, version); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode migrated config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save atomically writes the config to path as TOML.
func (c *Config) Save(path string) error {
	return atomicfile.WriteFunc(path, 0o644, func(w io.Writer) error {
		if err := toml.NewEncoder(w).Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return nil
	})
}

// ///////////////////////////////////////////////
// Migrations
// ///////////////////////////////////////////////

func init() {
	migrate.Config.Register(migrate.Migration{
		Version:     2,
		Description: "split comma-separated watch lists into arrays",
		Upgrade: func(doc migrate.Document) error {
			watch, err := migrate.Table(doc, "watch")
			if err != nil {
				return err
			}
			for _, key := range []string{"users", "ignore"} {
				if s, ok := watch[key].(string); ok {
					watch[key] = splitList(s)
				}
			}
			return nil
		},
	})
}

// splitList splits "a, b,,c" into ["a", "b", "c"].
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	positive := []struct {
		key string
		val int
	}{
		{"behavior.poll_interval_seconds", c.Behavior.PollIntervalSeconds},
		{"behavior.call_timeout_seconds", c.Behavior.CallTimeoutSeconds},
		{"behavior.max_parallel", c.Behavior.MaxParallel},
		{"behavior.connect_retries", c.Behavior.ConnectRetries},
		{"behavior.reconnect_interval_seconds", c.Behavior.ReconnectIntervalSeconds},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("%s must be > 0, got %d", p.key, p.val)
		}
	}
	if c.Behavior.DebounceSeconds < 0 {
		return fmt.Errorf("behavior.debounce_seconds must be >= 0, got %d", c.Behavior.DebounceSeconds)
	}
	if c.Discord.PurgeLimit < 0 {
		return fmt.Errorf("discord.purge_limit must be >= 0, got %d", c.Discord.PurgeLimit)
	}

	for _, name := range c.Behavior.RefreshKinds {
		if _, ok := media.LookupKind(name); !ok {
			return fmt.Errorf("invalid behavior.refresh_kinds entry %q: must be one of %s", name, strings.Join(media.KindNames(), ", "))
		}
	}

	if err := validateURL("emby.url", c.Emby.URL); err != nil {
		return err
	}
	if err := validateURL("discord.api_url", c.Discord.APIURL); err != nil {
		return err
	}
	if c.Discord.TokenEnv == "" {
		return fmt.Errorf("discord.token_env must not be empty")
	}
	if c.Discord.ChannelID == "" && c.Discord.ChannelEnv == "" {
		return fmt.Errorf("one of discord.channel_id or discord.channel_env must be set")
	}
	if strings.TrimSpace(c.Discord.ThreadName) == "" {
		return fmt.Errorf("discord.thread_name must not be empty")
	}

	if len(c.Watch.Users) == 0 {
		return fmt.Errorf("watch.users must list at least one user")
	}
	for _, u := range c.Watch.Users {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("watch.users contains an empty name")
		}
	}
	for _, p := range c.Watch.Ignore {
		if !doublestar.ValidatePattern(strings.ToLower(p)) {
			return fmt.Errorf("invalid watch.ignore pattern %q", p)
		}
	}

	return nil
}

// validateURL requires an absolute http(s) URL with a host.
func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q: must be an http or https URL", key, raw)
	}
	return nil
}

// ///////////////////////////////////////////////
// Derived Settings
// ///////////////////////////////////////////////

// PollInterval returns the tick interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Behavior.PollIntervalSeconds) * time.Second
}

// Debounce returns the same-item re-render suppression window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Behavior.DebounceSeconds) * time.Second
}

// CallTimeout returns the per-call timeout for external requests.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Behavior.CallTimeoutSeconds) * time.Second
}

// ReconnectInterval returns the wait between startup connection attempts.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Behavior.ReconnectIntervalSeconds) * time.Second
}

// RefreshKinds returns the configured refresh kinds as a set.
// Unknown names are skipped; Validate rejects them earlier.
func (c *Config) RefreshKinds() map[media.Kind]bool {
	set := make(map[media.Kind]bool, len(c.Behavior.RefreshKinds))
	for _, name := range c.Behavior.RefreshKinds {
		if k, ok := media.LookupKind(name); ok {
			set[k] = true
		}
	}
	return set
}

// ///////////////////////////////////////////////
// Watch List
// ///////////////////////////////////////////////

// WatchList decides which session users are mirrored. Names and patterns are
// compared lowercased. Ignore wins over watch.
type WatchList struct {
	users  map[string]bool
	ignore []string
}

// WatchList builds the matcher for the configured watch and ignore lists.
func (c *Config) WatchList() *WatchList {
	w := &WatchList{users: make(map[string]bool, len(c.Watch.Users))}
	for _, u := range c.Watch.Users {
		w.users[strings.ToLower(strings.TrimSpace(u))] = true
	}
	for _, p := range c.Watch.Ignore {
		w.ignore = append(w.ignore, strings.ToLower(p))
	}
	return w
}

// Watched reports whether user is on the watch list and not ignored.
func (w *WatchList) Watched(user string) bool {
	user = strings.ToLower(user)
	if !w.users[user] {
		return false
	}
	return !w.ignored(user)
}

func (w *WatchList) ignored(user string) bool {
	for _, pattern := range w.ignore {
		matched, err := doublestar.Match(pattern, user)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// Len returns the number of distinct watched names before ignore filtering.
func (w *WatchList) Len() int { return len(w.users) }
