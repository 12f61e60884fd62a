package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// activeThreads is the body of GET /guilds/{id}/threads/active.
type activeThreads struct {
	Threads []Channel `json:"threads"`
}

// archivedThreads is the body of the archived thread listings.
type archivedThreads struct {
	Threads []Channel `json:"threads"`
	HasMore bool      `json:"has_more"`
}

// createThread is the body of POST /channels/{id}/threads.
type createThread struct {
	Name                string `json:"name"`
	Type                int    `json:"type"`
	AutoArchiveDuration int    `json:"auto_archive_duration"`
	Invitable           bool   `json:"invitable"`
}

// GetChannel fetches a channel or thread by ID.
func (c *Client) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	var ch Channel
	err := c.doJSON(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID), nil, &ch)
	return ch, err
}

// ResolveThread finds the thread called name under parentID, or creates it
// as a private thread. Active threads are searched first, then archived
// private threads, which are unarchived when matched. Names compare
// case-insensitively. The bool reports whether the thread was created.
func (c *Client) ResolveThread(ctx context.Context, parentID, name string) (Channel, bool, error) {
	parent, err := c.GetChannel(ctx, parentID)
	if err != nil {
		return Channel{}, false, fmt.Errorf("fetching parent channel %s: %w", parentID, err)
	}
	if parent.IsThread() {
		return Channel{}, false, fmt.Errorf("parent channel %s is itself a thread", parentID)
	}

	var active activeThreads
	path := "/guilds/" + url.PathEscape(parent.GuildID) + "/threads/active"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &active); err != nil {
		return Channel{}, false, fmt.Errorf("listing active threads: %w", err)
	}
	if th, ok := matchThread(active.Threads, parentID, name); ok {
		return th, false, nil
	}

	var archived archivedThreads
	path = "/channels/" + url.PathEscape(parentID) + "/threads/archived/private?limit=100"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &archived); err == nil {
		if th, ok := matchThread(archived.Threads, parentID, name); ok {
			if err := c.unarchive(ctx, th.ID); err != nil {
				return Channel{}, false, fmt.Errorf("unarchiving thread %s: %w", th.ID, err)
			}
			return th, false, nil
		}
	}

	var created Channel
	body := createThread{
		Name:                name,
		Type:                ChannelTypePrivateThread,
		AutoArchiveDuration: 10080,
		Invitable:           false,
	}
	path = "/channels/" + url.PathEscape(parentID) + "/threads"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &created); err != nil {
		return Channel{}, false, fmt.Errorf("creating thread %q: %w", name, err)
	}
	return created, true, nil
}

func (c *Client) unarchive(ctx context.Context, threadID string) error {
	body := map[string]bool{"archived": false}
	return c.doJSON(ctx, http.MethodPatch, "/channels/"+url.PathEscape(threadID), body, nil)
}

// matchThread returns the first thread under parentID named name.
func matchThread(threads []Channel, parentID, name string) (Channel, bool) {
	for _, th := range threads {
		if th.ParentID == parentID && strings.EqualFold(th.Name, name) {
			return th, true
		}
	}
	return Channel{}, false
}
