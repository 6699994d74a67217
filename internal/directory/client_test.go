package directory

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(server.URL, 600, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestFetchProfile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events/evt-1/attendees/usr-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"first_name": "Grace",
			"last_name": "Hopper",
			"title": "Rear Admiral",
			"company": "US Navy",
			"email": "grace@example.com",
			"bio": "<p>Wrote the <b>first compiler</b>.</p>"
		}`))
	})

	card, err := client.FetchProfile(context.Background(), domain.Scope{EventID: "evt-1", UserID: "usr-1"})
	require.NoError(t, err)
	require.NotNil(t, card)

	assert.Equal(t, "usr-1", card.ID)
	assert.Equal(t, "Grace", card.FirstName)
	assert.Equal(t, "Rear Admiral", card.Title)
	assert.Contains(t, card.Notes, "**first compiler**", "HTML bio converted to markdown")
	assert.NotContains(t, card.Notes, "<p>")
}

func TestFetchProfile_NoProfile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	card, err := client.FetchProfile(context.Background(), domain.Scope{EventID: "evt-1", UserID: "usr-1"})
	assert.NoError(t, err, "missing profile is not an error")
	assert.Nil(t, card)
}

func TestFetchProfile_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.FetchProfile(context.Background(), domain.Scope{EventID: "evt-1", UserID: "usr-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
}

func TestFetchProfile_PlainTextBioUnchanged(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"first_name": "Ada", "last_name": "Lovelace", "bio": "Just plain text."}`))
	})

	card, err := client.FetchProfile(context.Background(), domain.Scope{EventID: "evt-1", UserID: "usr-1"})
	require.NoError(t, err)
	assert.Equal(t, "Just plain text.", card.Notes)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", 30, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestContainsHTML(t *testing.T) {
	assert.True(t, containsHTML("<p>hello</p>"))
	assert.True(t, containsHTML("line<br/>break"))
	assert.False(t, containsHTML("2 < 3 and 4 > 1"))
	assert.False(t, containsHTML("plain text"))
}
