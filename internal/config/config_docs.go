package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "behavior.debounce_seconds")
// to their [FieldDoc] entries. Section paths ("discord") document the table header.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Discord ──────────────────────────────────────────────────
	"discord": {
		Comment: "Discord bot and status thread.",
	},
	"discord.token_env": {
		Comment: "Environment variable holding the bot token.\nA .env file in the data directory or working directory is loaded at startup.",
	},
	"discord.channel_id": {
		Comment: "Parent text channel for the status thread. Leave empty to read it from channel_env.",
		Alternatives: []string{
			`channel_id = "123456789012345678"`,
		},
	},
	"discord.channel_env": {
		Comment: "Environment variable holding the parent channel ID.",
	},
	"discord.thread_name": {
		Comment: "Private thread found or created under the parent channel.",
	},
	"discord.purge_limit": {
		Comment: "Recent thread messages scanned at startup; those authored by the bot are deleted.\nSet to 0 to skip the purge.",
	},
	"discord.api_url": {
		Comment: "Discord REST base URL.",
	},

	// ── Emby ─────────────────────────────────────────────────────
	"emby": {
		Comment: "Emby media server.",
	},
	"emby.url": {
		Comment: "Server base URL.",
		Alternatives: []string{
			`url = "https://emby.example.com"`,
		},
	},
	"emby.api_key_env": {
		Comment: "Environment variable holding the Emby API key.",
	},
	"emby.image_cache": {
		Comment: "Cache fetched artwork on disk, keyed by item and image tag.",
	},

	// ── Watch ────────────────────────────────────────────────────
	"watch": {
		Comment: "Which users are mirrored. Changes apply live without a restart.",
	},
	"watch.users": {
		Comment: "Usernames to mirror (case-insensitive).",
	},
	"watch.ignore": {
		Comment: "Glob patterns for usernames that are never mirrored. Ignore wins over users.",
		Alternatives: []string{
			`ignore = ["guest*", "kids-*"]`,
		},
	},

	// ── Privacy ──────────────────────────────────────────────────
	"privacy": {
		Comment: "Content suppression.",
	},
	"privacy.restricted_ratings": {
		Comment: "Movies with one of these official ratings are never shown (case-insensitive).",
		Alternatives: []string{
			`restricted_ratings = ["Adult", "NC-17", "XXX"]`,
		},
	},

	// ── Behavior ─────────────────────────────────────────────────
	"behavior": {
		Comment: "Polling and reconciliation.",
	},
	"behavior.poll_interval_seconds": {
		Comment: "Seconds between session polls.",
	},
	"behavior.debounce_seconds": {
		Comment: "Seconds during which the same item is never re-rendered.",
	},
	"behavior.call_timeout_seconds": {
		Comment: "Timeout for each Emby or Discord call.",
	},
	"behavior.refresh_kinds": {
		Comment: "Media kinds re-rendered after the debounce window while still playing.\nOptions: \"movie\", \"episode\", \"audio\", \"musicvideo\", \"audiobook\", \"generic\"",
		Alternatives: []string{
			`refresh_kinds = ["audiobook", "audio"]`,
		},
	},
	"behavior.max_parallel": {
		Comment: "Maximum users updated concurrently within one poll.",
	},
	"behavior.clear_on_exit": {
		Comment: "Delete every message the daemon owns when it shuts down.",
	},
	"behavior.connect_retries": {
		Comment: "Startup attempts to reach Discord before giving up.",
	},
	"behavior.reconnect_interval_seconds": {
		Comment: "Seconds between startup attempts.",
	},

	// ── Assets ───────────────────────────────────────────────────
	"assets": {
		Comment: "Placeholder images. Generate them with tools/generate-assets.",
	},
	"assets.dir": {
		Comment: "Directory holding the images, relative to the data directory unless absolute.",
	},
	"assets.idle_image": {
		Comment: "Shown while nobody is playing anything.",
	},
	"assets.movie_missing": {
		Comment: "Shown for movies without artwork.",
	},
	"assets.series_missing": {
		Comment: "Shown for episodes without a series folder.jpg.",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
	"log.stderr": {
		Comment: "Also write log lines to stderr (useful in containers).",
	},

	// ── Metrics ──────────────────────────────────────────────────
	"metrics": {
		Comment: "Prometheus endpoint.",
	},
	"metrics.listen_addr": {
		Comment: "Address serving /metrics and /healthz. Empty disables the endpoint.",
		Alternatives: []string{
			`listen_addr = "127.0.0.1:9310"`,
		},
	},
}
