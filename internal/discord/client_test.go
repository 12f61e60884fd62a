// Tests for the REST [Client] against an httptest server: JSON and
// multipart sends, edits, deletes, error mapping, history paging, and
// thread resolution.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// newTestClient returns a Client pointed at handler with fast retries.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("tok", WithBaseURL(srv.URL+"/"), WithRetries(2, time.Millisecond, 5*time.Millisecond))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ///////////////////////////////////////////////
// Send / Edit / Delete
// ///////////////////////////////////////////////

func TestSend_JSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/channels/T/messages" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot tok" {
			t.Errorf("Authorization = %q", got)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "DiscordBot (") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		var body wireMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Embeds) != 1 || body.Embeds[0].Title != "Heat (1995)" {
			t.Errorf("embeds = %+v", body.Embeds)
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "m1", "channel_id": "T"})
	}))

	h, err := c.Send(context.Background(), "T", &Message{Embeds: []Embed{{Title: "Heat (1995)", Color: 0x3498db}}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if h != (Handle{ChannelID: "T", MessageID: "m1"}) {
		t.Errorf("handle = %+v", h)
	}
}

func TestSend_Multipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		var payload wireMessage
		if err := json.Unmarshal([]byte(r.FormValue("payload_json")), &payload); err != nil {
			t.Fatalf("payload_json: %v", err)
		}
		if len(payload.Attachments) != 1 || payload.Attachments[0].Filename != "poster.jpg" {
			t.Errorf("attachments = %+v", payload.Attachments)
		}
		if payload.Embeds[0].Image == nil || payload.Embeds[0].Image.URL != "attachment://poster.jpg" {
			t.Errorf("embed image = %+v", payload.Embeds[0].Image)
		}
		f, hdr, err := r.FormFile("files[0]")
		if err != nil {
			t.Fatalf("files[0]: %v", err)
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "poster.jpg" || string(data) != "jpegbytes" {
			t.Errorf("file = %s %q", hdr.Filename, data)
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "m2", "channel_id": "T"})
	}))

	msg := &Message{
		Embeds: []Embed{{Title: "x", Image: &EmbedImage{URL: AttachmentURL("poster.jpg")}}},
		Files:  []File{{Name: "poster.jpg", ContentType: "image/jpeg", Data: []byte("jpegbytes")}},
	}
	h, err := c.Send(context.Background(), "T", msg)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if h.MessageID != "m2" {
		t.Errorf("MessageID = %q, want m2", h.MessageID)
	}
}

func TestEdit(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/channels/T/messages/m1" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "m1"})
	}))

	if err := c.Edit(context.Background(), Handle{"T", "m1"}, &Message{Content: "x"}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
}

func TestDelete(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		switch r.URL.Path {
		case "/channels/T/messages/ok":
			w.WriteHeader(http.StatusNoContent)
		case "/channels/T/messages/gone":
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Unknown Message", "code": 10008})
		default:
			writeJSON(w, http.StatusForbidden, map[string]any{"message": "Missing Access", "code": 50001})
		}
	}))

	if err := c.Delete(context.Background(), Handle{"T", "ok"}); err != nil {
		t.Fatalf("Delete ok: %v", err)
	}

	err := c.Delete(context.Background(), Handle{"T", "gone"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete gone = %v, want ErrNotFound", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 10008 || apiErr.Message != "Unknown Message" {
		t.Errorf("APIError = %+v", apiErr)
	}

	err = c.Delete(context.Background(), Handle{"T", "locked"})
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete locked = %v, want non-NotFound error", err)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error text = %q, want status", err)
	}
}

func TestRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "You are being rate limited.", "retry_after": 0})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := c.Delete(context.Background(), Handle{"T", "m"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestAPIError_PlainStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	_, err := c.CurrentUser(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != 400 || apiErr.Message != "Bad Request" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

// ///////////////////////////////////////////////
// History / Identity
// ///////////////////////////////////////////////

func TestListRecent_Paginates(t *testing.T) {
	// 150 messages with IDs 150..1, newest first.
	var befores []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		start := 150
		if b := q.Get("before"); b != "" {
			befores = append(befores, b)
			start, _ = strconv.Atoi(b)
			start--
		}
		var out []Recent
		for id := start; id >= 1 && len(out) < limit; id-- {
			out = append(out, Recent{ID: strconv.Itoa(id), Author: User{ID: "bot"}})
		}
		writeJSON(w, http.StatusOK, out)
	}))

	msgs, err := c.ListRecent(context.Background(), "T", 200)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(msgs) != 150 {
		t.Fatalf("len = %d, want 150", len(msgs))
	}
	if fmt.Sprint(befores) != "[51]" {
		t.Errorf("before cursors = %v, want [51]", befores)
	}
	if msgs[0].Handle() != (Handle{"T", "150"}) {
		t.Errorf("first handle = %+v", msgs[0].Handle())
	}
}

func TestListRecent_RespectsLimit(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %s, want 5", got)
		}
		writeJSON(w, http.StatusOK, make([]Recent, 5))
	}))

	msgs, err := c.ListRecent(context.Background(), "T", 5)
	if err != nil || len(msgs) != 5 {
		t.Fatalf("ListRecent = %d, %v", len(msgs), err)
	}
}

func TestCurrentUser(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/@me" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, User{ID: "42", Username: "nowplaying", Bot: true})
	}))

	u, err := c.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if u.ID != "42" || !u.Bot {
		t.Errorf("user = %+v", u)
	}
}

// ///////////////////////////////////////////////
// ResolveThread
// ///////////////////////////////////////////////

// threadServer fakes the endpoints ResolveThread touches.
type threadServer struct {
	active    []Channel
	archived  []Channel
	created   atomic.Int32
	unarchive atomic.Int32
}

func (s *threadServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/channels/P":
		writeJSON(w, http.StatusOK, Channel{ID: "P", Type: ChannelTypeGuildText, GuildID: "G"})
	case r.Method == http.MethodGet && r.URL.Path == "/guilds/G/threads/active":
		writeJSON(w, http.StatusOK, activeThreads{Threads: s.active})
	case r.Method == http.MethodGet && r.URL.Path == "/channels/P/threads/archived/private":
		writeJSON(w, http.StatusOK, archivedThreads{Threads: s.archived})
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/channels/"):
		s.unarchive.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{})
	case r.Method == http.MethodPost && r.URL.Path == "/channels/P/threads":
		s.created.Add(1)
		var body createThread
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusCreated, Channel{ID: "NEW", Type: body.Type, ParentID: "P", Name: body.Name})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Unknown Channel", "code": 10003})
	}
}

func TestResolveThread(t *testing.T) {
	tests := []struct {
		name          string
		srv           *threadServer
		wantID        string
		wantCreated   bool
		wantUnarchive int32
	}{
		{
			name: "active match",
			srv: &threadServer{active: []Channel{
				{ID: "OTHER", ParentID: "X", Name: "Now Playing Updates"},
				{ID: "T1", ParentID: "P", Name: "now playing updates"},
			}},
			wantID: "T1",
		},
		{
			name:          "archived match is unarchived",
			srv:           &threadServer{archived: []Channel{{ID: "T2", ParentID: "P", Name: "Now Playing Updates"}}},
			wantID:        "T2",
			wantUnarchive: 1,
		},
		{
			name:        "created when missing",
			srv:         &threadServer{},
			wantID:      "NEW",
			wantCreated: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.srv)
			th, created, err := c.ResolveThread(context.Background(), "P", "Now Playing Updates")
			if err != nil {
				t.Fatalf("ResolveThread: %v", err)
			}
			if th.ID != tt.wantID || created != tt.wantCreated {
				t.Errorf("got %s created=%v, want %s created=%v", th.ID, created, tt.wantID, tt.wantCreated)
			}
			if tt.srv.unarchive.Load() != tt.wantUnarchive {
				t.Errorf("unarchive calls = %d, want %d", tt.srv.unarchive.Load(), tt.wantUnarchive)
			}
			if tt.wantCreated && th.Type != ChannelTypePrivateThread {
				t.Errorf("created type = %d, want private thread", th.Type)
			}
		})
	}
}

func TestResolveThread_UnknownParent(t *testing.T) {
	c := newTestClient(t, &threadServer{})
	_, _, err := c.ResolveThread(context.Background(), "MISSING", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
