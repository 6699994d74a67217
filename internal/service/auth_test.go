package service_test

import (
	"context"
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlinkapp/cardlink-server/internal/auth"
	"github.com/cardlinkapp/cardlink-server/internal/domain"
	domainerrors "github.com/cardlinkapp/cardlink-server/internal/errors"
	"github.com/cardlinkapp/cardlink-server/internal/mirror"
	"github.com/cardlinkapp/cardlink-server/internal/service"
	"github.com/cardlinkapp/cardlink-server/internal/store"
)

type authFixture struct {
	auth     *service.AuthService
	sessions *service.SessionService
	instance *service.InstanceService
	exchange *service.ExchangeService
	store    *store.Store
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	dir := t.TempDir()

	st, err := store.New(filepath.Join(dir, "badger"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m, err := mirror.Open(filepath.Join(dir, "mirror.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	key, err := auth.LoadOrGenerateKey(dir)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(hex.EncodeToString(key), 15*time.Minute, 30*24*time.Hour)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	sessions := service.NewSessionService(st, tokens, logger)
	instance := service.NewInstanceService(st, logger)
	exchange := service.NewExchangeService(st, m, service.NoopEmitter{}, nil, logger)
	authSvc := service.NewAuthService(st, sessions, instance, exchange, logger)

	return &authFixture{
		auth:     authSvc,
		sessions: sessions,
		instance: instance,
		exchange: exchange,
		store:    st,
	}
}

func setupRoot(t *testing.T, f *authFixture) *service.AuthResponse {
	t.Helper()
	resp, err := f.auth.Setup(context.Background(), service.SetupRequest{
		Email:     "root@example.com",
		Password:  "correct horse battery staple",
		FirstName: "Root",
		LastName:  "Admin",
		EventName: "GopherConf",
	})
	require.NoError(t, err)
	return resp
}

func TestSetup_CreatesRootUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	required, err := f.instance.IsSetupRequired(ctx)
	require.NoError(t, err)
	assert.True(t, required)

	resp := setupRoot(t, f)

	assert.True(t, resp.User.IsRoot)
	assert.Equal(t, domain.RoleAdmin, resp.User.Role)
	assert.Empty(t, resp.User.PasswordHash, "hash never leaves the server")
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)

	required, err = f.instance.IsSetupRequired(ctx)
	require.NoError(t, err)
	assert.False(t, required)

	inst, err := f.instance.GetInstance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GopherConf", inst.EventName)
}

func TestSetup_OnlyOnce(t *testing.T) {
	f := newAuthFixture(t)
	setupRoot(t, f)

	_, err := f.auth.Setup(context.Background(), service.SetupRequest{
		Email:     "second@example.com",
		Password:  "another long password",
		FirstName: "Second",
		LastName:  "Root",
	})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyConfigured)
}

func TestSetup_ValidatesRequest(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.auth.Setup(context.Background(), service.SetupRequest{
		Email:     "not-an-email",
		Password:  "short",
		FirstName: "",
		LastName:  "",
	})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestSetup_SeedsOwnCard(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp := setupRoot(t, f)

	inst, err := f.instance.GetInstance(ctx)
	require.NoError(t, err)

	snap, err := f.exchange.Snapshot(ctx, domain.Scope{EventID: inst.EventID, UserID: resp.User.ID})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, snap.MyCard.ID)
	assert.Equal(t, "Root", snap.MyCard.FirstName)
	assert.Equal(t, "Admin", snap.MyCard.LastName)
	assert.Equal(t, "root@example.com", snap.MyCard.Email)
}

func TestRegister_RequiresSetup(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.auth.Register(context.Background(), service.RegisterRequest{
		Email:     "ada@example.com",
		Password:  "correct horse battery staple",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
}

func TestRegister_CreatesAttendee(t *testing.T) {
	f := newAuthFixture(t)
	setupRoot(t, f)

	resp, err := f.auth.Register(context.Background(), service.RegisterRequest{
		Email:     "Ada@Example.com",
		Password:  "correct horse battery staple",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)

	assert.False(t, resp.User.IsRoot)
	assert.Equal(t, domain.RoleAttendee, resp.User.Role)
	assert.Equal(t, "ada@example.com", resp.User.Email, "email is normalized")
	assert.NotEmpty(t, resp.AccessToken)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	setupRoot(t, f)

	req := service.RegisterRequest{
		Email:     "ada@example.com",
		Password:  "correct horse battery staple",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
	_, err := f.auth.Register(context.Background(), req)
	require.NoError(t, err)

	_, err = f.auth.Register(context.Background(), req)
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	setupRoot(t, f)
	ctx := context.Background()

	resp, err := f.auth.Login(ctx, service.LoginRequest{
		Email:    "root@example.com",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.False(t, resp.User.LastLoginAt.IsZero())

	_, err = f.auth.Login(ctx, service.LoginRequest{
		Email:    "root@example.com",
		Password: "wrong password",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = f.auth.Login(ctx, service.LoginRequest{
		Email:    "nobody@example.com",
		Password: "correct horse battery staple",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials,
		"unknown email indistinguishable from bad password")
}

func TestRefresh_RotatesTokens(t *testing.T) {
	f := newAuthFixture(t)
	first := setupRoot(t, f)
	ctx := context.Background()

	refreshed, err := f.auth.Refresh(ctx, service.RefreshRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, refreshed.SessionID, "same session survives refresh")
	assert.NotEqual(t, first.RefreshToken, refreshed.RefreshToken, "refresh token rotates")

	// The old token is dead after rotation
	_, err = f.auth.Refresh(ctx, service.RefreshRequest{RefreshToken: first.RefreshToken})
	assert.ErrorIs(t, err, domainerrors.ErrTokenExpired)
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	resp := setupRoot(t, f)
	ctx := context.Background()

	require.NoError(t, f.auth.Logout(ctx, resp.RefreshToken))

	_, err := f.auth.Refresh(ctx, service.RefreshRequest{RefreshToken: resp.RefreshToken})
	assert.ErrorIs(t, err, domainerrors.ErrTokenExpired)

	assert.NoError(t, f.auth.Logout(ctx, resp.RefreshToken), "logout is idempotent")
}

func TestSendOnScanPreference(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	scope := domain.Scope{EventID: "evt-1", UserID: "usr-me"}

	enabled, err := f.exchange.SendOnScanEnabled(ctx, scope)
	require.NoError(t, err)
	assert.True(t, enabled, "sharing defaults to on")

	require.NoError(t, f.exchange.SetSendOnScan(ctx, scope, false))
	enabled, err = f.exchange.SendOnScanEnabled(ctx, scope)
	require.NoError(t, err)
	assert.False(t, enabled)
}
