package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads KEY=VALUE files into the process environment. Missing files
// are skipped. Variables already set in the environment are never
// overwritten, and earlier files win over later ones.
func LoadEnv(files ...string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("load env file %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// Secrets holds credentials resolved from the environment.
type Secrets struct {
	// BotToken authenticates the Discord bot.
	BotToken string
	// EmbyAPIKey authenticates Emby API calls.
	EmbyAPIKey string
	// ChannelID is the parent channel, from config or environment.
	ChannelID string
}

// ResolveSecrets reads the environment variables named by the config.
// A missing bot token, API key, or channel is an error.
func (c *Config) ResolveSecrets() (Secrets, error) {
	s := Secrets{
		BotToken:   strings.TrimSpace(os.Getenv(c.Discord.TokenEnv)),
		EmbyAPIKey: strings.TrimSpace(os.Getenv(c.Emby.APIKeyEnv)),
		ChannelID:  strings.TrimSpace(c.Discord.ChannelID),
	}
	if s.ChannelID == "" && c.Discord.ChannelEnv != "" {
		s.ChannelID = strings.TrimSpace(os.Getenv(c.Discord.ChannelEnv))
	}

	var missing []string
	if s.BotToken == "" {
		missing = append(missing, c.Discord.TokenEnv)
	}
	if s.EmbyAPIKey == "" {
		missing = append(missing, c.Emby.APIKeyEnv)
	}
	if s.ChannelID == "" {
		missing = append(missing, "discord.channel_id or "+c.Discord.ChannelEnv)
	}
	if len(missing) > 0 {
		return s, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return s, nil
}
