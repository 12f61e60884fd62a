package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tools.zach/dev/embycord/internal/discord"
)

// discordAPI is the Discord surface used before the loop starts.
type discordAPI interface {
	CurrentUser(ctx context.Context) (discord.User, error)
	ResolveThread(ctx context.Context, parentID, name string) (discord.Channel, bool, error)
	ListRecent(ctx context.Context, channelID string, limit int) ([]discord.Recent, error)
	Delete(ctx context.Context, h discord.Handle) error
}

// ///////////////////////////////////////////////
// Connect with Retry
// ///////////////////////////////////////////////

// connectWithRetry checks the bot token by fetching the bot's own user,
// trying up to attempts times with interval between failures.
func connectWithRetry(ctx context.Context, api discordAPI, attempts int, interval time.Duration) (discord.User, error) {
	attempts = max(attempts, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		user, err := api.CurrentUser(ctx)
		if err == nil {
			return user, nil
		}
		lastErr = err
		slog.Warn("Discord connect attempt failed", "attempt", i+1, "error", err)
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return discord.User{}, ctx.Err()
		case <-time.After(interval):
		}
	}
	return discord.User{}, fmt.Errorf("failed to connect after %d attempts: %w", attempts, lastErr)
}

// ///////////////////////////////////////////////
// Thread Setup
// ///////////////////////////////////////////////

// setupThread finds or creates the status thread and clears messages a
// previous run left behind.
func setupThread(ctx context.Context, api discordAPI, bot discord.User, parentID, name string, purgeLimit int) (discord.Channel, error) {
	thread, created, err := api.ResolveThread(ctx, parentID, name)
	if err != nil {
		return discord.Channel{}, fmt.Errorf("resolve thread %q: %w", name, err)
	}
	if created {
		slog.Info("created status thread", "thread", thread.ID, "name", thread.Name)
		return thread, nil
	}
	slog.Info("using existing status thread", "thread", thread.ID, "name", thread.Name)

	removed, err := purgeOwnMessages(ctx, api, thread.ID, bot.ID, purgeLimit)
	if err != nil {
		slog.Warn("startup purge incomplete", "removed", removed, "error", err)
	} else if removed > 0 {
		slog.Info("purged stale messages", "count", removed)
	}
	return thread, nil
}

// purgeOwnMessages deletes messages authored by botID among the last limit
// messages of channelID. Individual delete failures are logged and skipped.
func purgeOwnMessages(ctx context.Context, api discordAPI, channelID, botID string, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	recent, err := api.ListRecent(ctx, channelID, limit)
	if err != nil {
		return 0, fmt.Errorf("list recent messages: %w", err)
	}
	removed := 0
	for _, m := range recent {
		if m.Author.ID != botID {
			continue
		}
		if err := api.Delete(ctx, discord.Handle{ChannelID: channelID, MessageID: m.ID}); err != nil {
			slog.Debug("failed to purge message", "message", m.ID, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
