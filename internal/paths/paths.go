// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "daemon.pid"
	ConfigFile = "config.toml"
	LogFile    = "daemon.log"
	EnvFile    = ".env"
	ArtworkDir = "artwork"
	AssetsDir  = "assets"
)

// Binary and data directory names.
const (
	BinaryName = "embycord"
	DataDirRel = ".embycord" // relative to $HOME
)

// Placeholder asset file names rendered by tools/generate-assets.
const (
	NothingPlayingAsset = "Nothing_Playing.png"
	MovieMissingAsset   = "Movie_Missing.png"
	SeriesMissingAsset  = "Series_Missing.png"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Env returns the full path to the optional .env secrets file.
func (d DataDir) Env() string { return filepath.Join(d.Root, EnvFile) }

// Artwork returns the full path to the artwork cache directory.
func (d DataDir) Artwork() string { return filepath.Join(d.Root, ArtworkDir) }

// Assets resolves the placeholder asset directory. Relative dirs are taken
// from the data directory; an empty dir means the default "assets" folder.
func (d DataDir) Assets(dir string) string {
	if dir == "" {
		dir = AssetsDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(d.Root, dir)
}
