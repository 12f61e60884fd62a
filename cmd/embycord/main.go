// Package main implements the embycord daemon, which mirrors what watched
// Emby users are playing into a Discord thread.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	rootpkg "tools.zach/dev/embycord"
	"tools.zach/dev/embycord/internal/artwork"
	"tools.zach/dev/embycord/internal/config"
	"tools.zach/dev/embycord/internal/discord"
	"tools.zach/dev/embycord/internal/emby"
	"tools.zach/dev/embycord/internal/lifecycle"
	"tools.zach/dev/embycord/internal/logger"
	"tools.zach/dev/embycord/internal/media"
	"tools.zach/dev/embycord/internal/paths"
	"tools.zach/dev/embycord/internal/presence"
	"tools.zach/dev/embycord/internal/telemetry"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via -ldflags "-X main.version=...".
// Bare builds fall back to the embedded VCS revision.
var version = "dev"

// resolveVersion returns the ldflags version, or "dev+<hash>" from the
// build info when none was set.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// DataPaths builds file paths inside the data directory.
type DataPaths = paths.DataDir

// dataDirEnv overrides the default data directory.
const dataDirEnv = "EMBYCORD_DATA_DIR"

// defaultDataDir returns $EMBYCORD_DATA_DIR, else ~/.embycord, else
// ./.embycord when the home directory is unknown.
func defaultDataDir() string {
	if dir := os.Getenv(dataDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for config, logs, and artwork")
	logLines := flag.Int("logs", 0, "Print the last N lines of the daemon log and exit")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(paths.BinaryName, resolveVersion())
		return
	}

	dataPaths := DataPaths{Root: *dataDir}

	if *logLines > 0 {
		tail, err := logger.ReadTail(dataPaths.Log(), *logLines)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read log: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(tail)
		return
	}

	if err := os.MkdirAll(dataPaths.Root, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create data dir: %v\n", err)
		os.Exit(1)
	}

	if alive, pid := checkStalePID(dataPaths); alive {
		fmt.Fprintf(os.Stderr, "daemon already running (pid %d)\n", pid)
		os.Exit(1)
	}

	if wrote, err := writeDefaultConfig(dataPaths); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: write default config: %v\n", err)
		os.Exit(1)
	} else if wrote {
		fmt.Fprintf(os.Stderr, "wrote %s\nedit [watch] users, set %s, %s, and %s, then start again\n",
			dataPaths.Config(), config.DefaultTokenEnv, config.DefaultAPIKeyEnv, config.DefaultChannelEnv)
		return
	}

	envFiles, envErr := config.LoadEnv(dataPaths.Env(), paths.EnvFile)

	cfg, err := config.Load(dataPaths.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config: %v\n", err)
		os.Exit(1)
	}

	var tee io.Writer
	if cfg.Log.Stderr {
		tee = os.Stderr
	}
	log, logCloser, err := logger.NewLogger(dataPaths.Log(), logger.ParseLevel(cfg.Log.Level), cfg.Log.MaxSizeMB, tee)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: init logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	slog.Info("embycord starting", "version", ver, "data_dir", dataPaths.Root)
	if envErr != nil {
		slog.Warn("failed to load env file", "error", envErr)
	}
	if len(envFiles) > 0 {
		slog.Debug("loaded env files", "files", envFiles)
	}

	token := pidToken()
	pidFile, err := writePID(dataPaths, token)
	if err != nil {
		slog.Error("failed to write PID file", "error", err)
		os.Exit(1)
	}
	defer removePID(dataPaths, token, pidFile)

	if err := daemon(cfg, dataPaths, ver); err != nil {
		logger.Fail(slog.Default(), "daemon stopped", logger.Err(err))
		removePID(dataPaths, token, pidFile)
		os.Exit(1)
	}
}

// writeDefaultConfig writes the embedded template when no config exists.
func writeDefaultConfig(dataPaths DataPaths) (bool, error) {
	if _, err := os.Stat(dataPaths.Config()); !os.IsNotExist(err) {
		return false, nil
	}
	if err := os.WriteFile(dataPaths.Config(), rootpkg.DefaultConfigTOML, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// daemon wires the components together and runs until a signal arrives.
func daemon(cfg *config.Config, dataPaths DataPaths, ver string) error {
	secrets, err := cfg.ResolveSecrets()
	if err != nil {
		return err
	}

	stopTracing, err := telemetry.InitTracing(paths.BinaryName, ver)
	if err != nil {
		slog.Warn("tracing unavailable", "error", err)
		stopTracing = func() {}
	}
	defer stopTracing()

	metrics := telemetry.NewRecorder()
	var health *telemetry.Server
	if cfg.Metrics.ListenAddr != "" {
		health = telemetry.NewServer(cfg.Metrics.ListenAddr)
		if _, err := health.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			health.Shutdown(ctx)
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := signalChannel()
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	dc := discord.New(secrets.BotToken,
		discord.WithBaseURL(cfg.Discord.APIURL),
		discord.WithUserAgent(ver),
	)
	bot, err := connectWithRetry(ctx, dc, cfg.Behavior.ConnectRetries, cfg.ReconnectInterval())
	if err != nil {
		return err
	}
	slog.Info("connected to Discord", "bot", bot.Username, "id", bot.ID)

	thread, err := setupThread(ctx, dc, bot, secrets.ChannelID, cfg.Discord.ThreadName, cfg.Discord.PurgeLimit)
	if err != nil {
		return err
	}

	ec := emby.New(cfg.Emby.URL, secrets.EmbyAPIKey)
	artOpts := []artwork.Option{
		artwork.WithAssetsDir(dataPaths.Assets(cfg.Assets.Dir)),
		artwork.WithTimeout(cfg.CallTimeout()),
		artwork.WithFallbackHook(metrics.ArtworkFallback),
	}
	if cfg.Emby.ImageCache {
		artOpts = append(artOpts, artwork.WithCacheDir(dataPaths.Artwork()))
	}
	art := artwork.New(ec, artOpts...)

	mgr := lifecycle.New(dc, thread.ID,
		lifecycle.WithTimeout(cfg.CallTimeout()),
		lifecycle.WithObserver(metrics.TransportCall),
	)
	rec := presence.NewReconciler(ec, mgr, art, reconcilerOptions(cfg, metrics))

	watcher, err := config.NewWatcher(dataPaths.Config())
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()
	if watcher.Polling() {
		slog.Info("using polling mode for config watching")
	}

	if health != nil {
		health.SetReady(true)
	}
	slog.Info("watching sessions", "thread", thread.ID, "users", cfg.WatchList().Len(), "interval", cfg.PollInterval().String())

	l := &loop{rec: rec, art: art, dataDir: dataPaths.Root, hup: reloadChannel()}
	l.run(ctx, watcher.Events(), cfg.PollInterval())

	sctx, scancel := context.WithTimeout(context.Background(), 2*cfg.CallTimeout()+5*time.Second)
	defer scancel()
	rec.Shutdown(sctx)
	slog.Info("embycord stopped")
	return nil
}

// reconcilerOptions maps configuration onto the reconciler.
func reconcilerOptions(cfg *config.Config, metrics presence.Metrics) presence.Options {
	return presence.Options{
		Watch:        cfg.WatchList().Watched,
		Debounce:     cfg.Debounce(),
		RefreshKinds: cfg.RefreshKinds(),
		Renderer: &media.Renderer{
			RestrictedRatings: cfg.Privacy.RestrictedRatings,
			MovieMissing:      cfg.Assets.MovieMissing,
			SeriesMissing:     cfg.Assets.SeriesMissing,
		},
		MaxParallel: cfg.Behavior.MaxParallel,
		CallTimeout: cfg.CallTimeout(),
		IdleAsset:   cfg.Assets.IdleImage,
		ClearOnExit: cfg.Behavior.ClearOnExit,
		Metrics:     metrics,
		Tracer:      telemetry.Tracer("tools.zach/dev/embycord/internal/presence"),
	}
}

// ///////////////////////////////////////////////
// Event Loop
// ///////////////////////////////////////////////

const (
	artworkPruneInterval = time.Hour
	artworkMaxAge        = 30 * 24 * time.Hour
)

// ticker is the reconciler surface the loop drives.
type ticker interface {
	Tick(ctx context.Context) error
	SetWatch(fn func(user string) bool)
}

// pruner trims the artwork cache.
type pruner interface {
	Prune(maxAge time.Duration) (int, error)
}

// loop carries state across iterations of the event loop.
type loop struct {
	rec     ticker
	art     pruner
	dataDir string
	// hup requests a config reload; nil when the platform has none.
	hup <-chan os.Signal

	// lastPrune rate-limits artwork cache pruning.
	lastPrune time.Time
}

// run ticks immediately and then on every interval, reloading the watch
// list when the config file changes or SIGHUP arrives. Ticks run on this
// goroutine so they never overlap. Returns when ctx is cancelled.
func (l *loop) run(ctx context.Context, configEvents <-chan struct{}, interval time.Duration) {
	pollTicker := time.NewTicker(interval)
	defer pollTicker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return

		case <-configEvents:
			l.reload()

		case <-l.hup:
			slog.Info("reload requested by signal")
			l.reload()

		case <-pollTicker.C:
			l.tick(ctx)
			l.prune()
		}
	}
}

func (l *loop) tick(ctx context.Context) {
	start := time.Now()
	if err := l.rec.Tick(ctx); err != nil {
		slog.Debug("tick skipped", logger.Err(err))
		return
	}
	logger.Trace(slog.Default(), "tick done", "elapsed", time.Since(start).String())
}

// reload re-reads config.toml and applies the watch list. An invalid file
// keeps the previous settings.
func (l *loop) reload() {
	cfg, err := config.Load(l.dataDir)
	if err != nil {
		slog.Warn("config reload failed, keeping previous settings", "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		slog.Warn("config reload rejected, keeping previous settings", "error", err)
		return
	}
	watch := cfg.WatchList()
	l.rec.SetWatch(watch.Watched)
	slog.Info("watch list reloaded", "users", watch.Len(), "ignore", len(cfg.Watch.Ignore))
}

// prune removes old artwork cache entries at most once per interval.
func (l *loop) prune() {
	if l.art == nil || time.Since(l.lastPrune) < artworkPruneInterval {
		return
	}
	l.lastPrune = time.Now()
	n, err := l.art.Prune(artworkMaxAge)
	if err != nil {
		slog.Debug("artwork prune failed", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("pruned artwork cache", "removed", n)
	}
}
