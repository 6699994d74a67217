package api

import (
	"bytes"
	"encoding/json/v2"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlinkapp/cardlink-server/internal/auth"
	"github.com/cardlinkapp/cardlink-server/internal/http/response"
	"github.com/cardlinkapp/cardlink-server/internal/media/images"
	"github.com/cardlinkapp/cardlink-server/internal/mirror"
	"github.com/cardlinkapp/cardlink-server/internal/search"
	"github.com/cardlinkapp/cardlink-server/internal/service"
	"github.com/cardlinkapp/cardlink-server/internal/sse"
	"github.com/cardlinkapp/cardlink-server/internal/store"
)

const testKeyHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// setupTestServer creates a test server with all dependencies on temp storage.
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	tmpDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.New(filepath.Join(tmpDir, "snapshots"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m, err := mirror.Open(filepath.Join(tmpDir, "mirror.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	index, err := search.NewContactIndex(search.Options{
		DataPath: filepath.Join(tmpDir, "search"),
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	storage, err := images.NewStorage(tmpDir, "avatars")
	require.NoError(t, err)
	avatarService := images.NewAvatarService(storage, logger)

	tokenService, err := auth.NewTokenService(testKeyHex, 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	manager := sse.NewManager(logger)
	sseHandler := sse.NewHandler(manager, SSEIdentity(tokenService), logger)

	exchangeService := service.NewExchangeService(st, m, manager, nil, logger)
	exchangeService.SetIndexer(index)

	instanceService := service.NewInstanceService(st, logger)
	sessionService := service.NewSessionService(st, tokenService, logger)
	authService := service.NewAuthService(st, sessionService, instanceService, exchangeService, logger)

	return NewServer(st, instanceService, authService, sessionService, exchangeService, index, avatarService, tokenService, sseHandler, logger)
}

// doJSON performs a request with an optional bearer token and JSON body.
func doJSON(t *testing.T, server *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

// envelopeData unmarshals the response envelope and returns its data map.
func envelopeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var result response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.True(t, result.Success, "expected success envelope, got error: %s", result.Error)

	data, ok := result.Data.(map[string]any)
	require.True(t, ok, "expected object data")
	return data
}

// account bundles a test user's identity and token.
type account struct {
	UserID string
	Token  string
}

// setupRoot runs first-time setup and returns the root account.
func setupRoot(t *testing.T, server *Server) account {
	t.Helper()

	w := doJSON(t, server, http.MethodPost, "/api/v1/auth/setup", "", map[string]any{
		"email":      "root@example.com",
		"password":   "a-strong-password",
		"first_name": "Root",
		"last_name":  "Admin",
		"event_name": "GopherConf",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := envelopeData(t, w)
	user, ok := data["user"].(map[string]any)
	require.True(t, ok)

	return account{
		UserID: user["id"].(string),
		Token:  data["access_token"].(string),
	}
}

// registerAttendee creates an attendee account after setup has completed.
func registerAttendee(t *testing.T, server *Server, email, first, last string) account {
	t.Helper()

	w := doJSON(t, server, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":      email,
		"password":   "another-password",
		"first_name": first,
		"last_name":  last,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := envelopeData(t, w)
	user, ok := data["user"].(map[string]any)
	require.True(t, ok)

	return account{
		UserID: user["id"].(string),
		Token:  data["access_token"].(string),
	}
}

func TestHealthCheck(t *testing.T) {
	server := setupTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := envelopeData(t, w)
	assert.Equal(t, "healthy", data["status"])
}

func TestGetInstance_SetupRequired(t *testing.T) {
	server := setupTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/api/v1/instance", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := envelopeData(t, w)
	assert.Equal(t, true, data["setup_required"])
	assert.NotEmpty(t, data["event_id"])
}

func TestSetupFlow(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)

	t.Run("setup completes instance", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/instance", "", nil)
		data := envelopeData(t, w)
		assert.Equal(t, false, data["setup_required"])
		assert.Equal(t, "GopherConf", data["event_name"])
	})

	t.Run("token authenticates", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/users/me", root.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := envelopeData(t, w)
		assert.Equal(t, "root@example.com", data["email"])
	})

	t.Run("second setup rejected", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/api/v1/auth/setup", "", map[string]any{
			"email":      "other@example.com",
			"password":   "a-strong-password",
			"first_name": "Other",
			"last_name":  "Admin",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestCardEndpoints_RequireAuth(t *testing.T) {
	server := setupTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/cards/"},
		{http.MethodPost, "/api/v1/cards/scan"},
		{http.MethodGet, "/api/v1/cards/export"},
		{http.MethodPost, "/api/v1/exchange/session"},
		{http.MethodGet, "/api/v1/users/me/card"},
	}

	for _, tc := range paths {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := doJSON(t, server, tc.method, tc.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestScanCard(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)

	card := map[string]any{
		"id":         "usr-scanned-1",
		"first_name": "Grace",
		"last_name":  "Hopper",
		"company":    "Navy",
	}

	w := doJSON(t, server, http.MethodPost, "/api/v1/cards/scan", root.Token, card)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("card appears in list", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/cards/", root.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var result response.Envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		cards, ok := result.Data.([]any)
		require.True(t, ok)
		require.Len(t, cards, 1)
		first := cards[0].(map[string]any)
		assert.Equal(t, "usr-scanned-1", first["id"])
	})

	t.Run("duplicate scan rejected", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/api/v1/cards/scan", root.Token, card)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("nameless card rejected", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/api/v1/cards/scan", root.Token, map[string]any{
			"id": "usr-anonymous",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing ID rejected", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPost, "/api/v1/cards/scan", root.Token, map[string]any{
			"first_name": "No",
			"last_name":  "Badge",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateAndDeleteCard(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)

	doJSON(t, server, http.MethodPost, "/api/v1/cards/scan", root.Token, map[string]any{
		"id":         "usr-contact",
		"first_name": "Dennis",
		"last_name":  "Ritchie",
	})

	t.Run("update notes", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPatch, "/api/v1/cards/usr-contact", root.Token, map[string]any{
			"first_name": "Dennis",
			"last_name":  "Ritchie",
			"notes":      "met at the coffee stand",
		})
		require.Equal(t, http.StatusOK, w.Code)

		list := doJSON(t, server, http.MethodGet, "/api/v1/cards/", root.Token, nil)
		var result response.Envelope
		require.NoError(t, json.Unmarshal(list.Body.Bytes(), &result))
		cards := result.Data.([]any)
		require.Len(t, cards, 1)
		assert.Equal(t, "met at the coffee stand", cards[0].(map[string]any)["notes"])
	})

	t.Run("update unknown card is 404", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPatch, "/api/v1/cards/usr-nobody", root.Token, map[string]any{
			"first_name": "No",
			"last_name":  "Body",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete removes card", func(t *testing.T) {
		w := doJSON(t, server, http.MethodDelete, "/api/v1/cards/usr-contact", root.Token, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		list := doJSON(t, server, http.MethodGet, "/api/v1/cards/", root.Token, nil)
		var result response.Envelope
		require.NoError(t, json.Unmarshal(list.Body.Bytes(), &result))
		cards := result.Data.([]any)
		assert.Empty(t, cards)
	})

	t.Run("delete unknown card is 404", func(t *testing.T) {
		w := doJSON(t, server, http.MethodDelete, "/api/v1/cards/usr-contact", root.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestExportCards(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)

	doJSON(t, server, http.MethodPost, "/api/v1/cards/scan", root.Token, map[string]any{
		"id":         "usr-export",
		"first_name": "Barbara",
		"last_name":  "Liskov",
		"title":      "Professor",
		"mobile":     "555-0100",
	})

	w := doJSON(t, server, http.MethodGet, "/api/v1/cards/export", root.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	body := w.Body.String()
	assert.Contains(t, body, "Barbara Liskov\n")
	assert.Contains(t, body, "Professor\n")
	assert.Contains(t, body, "mobile: 555-0100\n")
}

func TestOwnCard(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)

	t.Run("seeded from account", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/users/me/card", root.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := envelopeData(t, w)
		assert.Equal(t, root.UserID, data["id"])
		assert.Equal(t, "Root", data["first_name"])
	})

	t.Run("edit replaces card", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPut, "/api/v1/users/me/card", root.Token, map[string]any{
			"first_name": "Root",
			"last_name":  "Admin",
			"company":    "CardLink",
			"linkedin":   "root-admin",
		})
		require.Equal(t, http.StatusOK, w.Code)
		data := envelopeData(t, w)
		assert.Equal(t, "CardLink", data["company"])
		assert.Equal(t, root.UserID, data["id"])
	})

	t.Run("nameless edit rejected", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPut, "/api/v1/users/me/card", root.Token, map[string]any{
			"company": "Anonymous Inc",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPreferences(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)

	t.Run("defaults to enabled", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/users/me/preferences", root.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := envelopeData(t, w)
		assert.Equal(t, true, data["send_on_scan"])
	})

	t.Run("round trips", func(t *testing.T) {
		w := doJSON(t, server, http.MethodPut, "/api/v1/users/me/preferences", root.Token, map[string]any{
			"send_on_scan": false,
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, server, http.MethodGet, "/api/v1/users/me/preferences", root.Token, nil)
		data := envelopeData(t, w)
		assert.Equal(t, false, data["send_on_scan"])
	})
}

func TestReciprocalExchange(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)
	attendee := registerAttendee(t, server, "ada@example.com", "Ada", "Lovelace")

	// Root scans the attendee's badge.
	w := doJSON(t, server, http.MethodPost, "/api/v1/cards/scan", root.Token, map[string]any{
		"id":         attendee.UserID,
		"first_name": "Ada",
		"last_name":  "Lovelace",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The attendee's next session drains the reciprocal share.
	w = doJSON(t, server, http.MethodPost, "/api/v1/exchange/session", attendee.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := envelopeData(t, w)
	assert.Equal(t, float64(1), data["processed_messages"])

	list := doJSON(t, server, http.MethodGet, "/api/v1/cards/", attendee.Token, nil)
	var result response.Envelope
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &result))
	cards := result.Data.([]any)
	require.Len(t, cards, 1)
	got := cards[0].(map[string]any)
	assert.Equal(t, root.UserID, got["id"], "reciprocal card keyed by sender")
	assert.Equal(t, "Root", got["first_name"])
}

func TestSearchCards(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)

	doJSON(t, server, http.MethodPost, "/api/v1/cards/scan", root.Token, map[string]any{
		"id":         "usr-search",
		"first_name": "Grace",
		"last_name":  "Hopper",
		"notes":      "compiler pioneer, met at the espresso machine",
	})

	w := doJSON(t, server, http.MethodGet, "/api/v1/cards/search?q=espresso", root.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := envelopeData(t, w)
	hits, ok := data["hits"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, hits)
	assert.Equal(t, "usr-search", hits[0].(map[string]any)["card_id"])
}

func TestConnectionCount_AdminOnly(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)
	attendee := registerAttendee(t, server, "ada@example.com", "Ada", "Lovelace")

	doJSON(t, server, http.MethodPost, "/api/v1/cards/scan", root.Token, map[string]any{
		"id":         "usr-tally",
		"first_name": "Tally",
		"last_name":  "Target",
	})

	t.Run("admin sees tally", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/connections/count", root.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := envelopeData(t, w)
		assert.Equal(t, float64(1), data["total"])
	})

	t.Run("attendee forbidden", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/connections/count", attendee.Token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestAvatars(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)

	img := testPNGBytes(t, 64, 64)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/users/me/avatar", bytes.NewReader(img))
	req.Header.Set("Authorization", "Bearer "+root.Token)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := envelopeData(t, w)
	avatarURL, ok := data["avatar_url"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(avatarURL, "/avatar"))
	assert.NotEmpty(t, data["avatar_blurhash"])

	t.Run("card carries the reference", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/users/me/card", root.Token, nil)
		card := envelopeData(t, w)
		assert.Equal(t, avatarURL, card["avatar_url"])
	})

	t.Run("served with ETag", func(t *testing.T) {
		w := doJSON(t, server, http.MethodGet, "/api/v1/users/"+root.UserID+"/avatar", root.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, img, w.Body.Bytes())

		etag := w.Header().Get("ETag")
		require.NotEmpty(t, etag)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/"+root.UserID+"/avatar", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+root.Token)
		req.Header.Set("If-None-Match", etag)
		cached := httptest.NewRecorder()
		server.ServeHTTP(cached, req)
		assert.Equal(t, http.StatusNotModified, cached.Code)
	})

	t.Run("garbage upload rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/me/avatar", strings.NewReader("not an image"))
		req.Header.Set("Authorization", "Bearer "+root.Token)
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete clears avatar", func(t *testing.T) {
		w := doJSON(t, server, http.MethodDelete, "/api/v1/users/me/avatar", root.Token, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(t, server, http.MethodGet, "/api/v1/users/"+root.UserID+"/avatar", root.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSortedCardList(t *testing.T) {
	server := setupTestServer(t)
	root := setupRoot(t, server)

	for _, c := range []map[string]any{
		{"id": "usr-z", "first_name": "Zoe", "last_name": "Zimmer"},
		{"id": "usr-a", "first_name": "Alan", "last_name": "Aho"},
	} {
		w := doJSON(t, server, http.MethodPost, "/api/v1/cards/scan", root.Token, c)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, server, http.MethodGet, "/api/v1/cards/?sort=name", root.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	cards := result.Data.([]any)
	require.Len(t, cards, 2)
	assert.Equal(t, "usr-a", cards[0].(map[string]any)["id"])
	assert.Equal(t, "usr-z", cards[1].(map[string]any)["id"])
}

// testPNGBytes encodes a small gradient PNG.
func testPNGBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 200, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
