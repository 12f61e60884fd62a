package paths

import (
	"path/filepath"
	"testing"
)

// ///////////////////////////////////////////////
// Constant Value Tests
// ///////////////////////////////////////////////

func TestConstantValues(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DataDirRel", DataDirRel, ".embycord"},
		{"PIDFile", PIDFile, "daemon.pid"},
		{"ConfigFile", ConfigFile, "config.toml"},
		{"LogFile", LogFile, "daemon.log"},
		{"EnvFile", EnvFile, ".env"},
		{"ArtworkDir", ArtworkDir, "artwork"},
		{"BinaryName", BinaryName, "embycord"},
		{"NothingPlayingAsset", NothingPlayingAsset, "Nothing_Playing.png"},
		{"MovieMissingAsset", MovieMissingAsset, "Movie_Missing.png"},
		{"SeriesMissingAsset", SeriesMissingAsset, "Series_Missing.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// DataDir Method Tests
// ///////////////////////////////////////////////

func TestDataDirMethods(t *testing.T) {
	root := filepath.Join("home", "user", ".embycord")
	d := DataDir{Root: root}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"PID", d.PID(), filepath.Join(root, "daemon.pid")},
		{"Config", d.Config(), filepath.Join(root, "config.toml")},
		{"Log", d.Log(), filepath.Join(root, "daemon.log")},
		{"Env", d.Env(), filepath.Join(root, ".env")},
		{"Artwork", d.Artwork(), filepath.Join(root, "artwork")},
		{"Assets default", d.Assets(""), filepath.Join(root, "assets")},
		{"Assets relative", d.Assets("img"), filepath.Join(root, "img")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestDataDirAssetsAbsolute(t *testing.T) {
	abs, err := filepath.Abs(filepath.Join("srv", "assets"))
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	d := DataDir{Root: "data"}
	if got := d.Assets(abs); got != abs {
		t.Errorf("Assets(%q) = %q, want unchanged", abs, got)
	}
}
