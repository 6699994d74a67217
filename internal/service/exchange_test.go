package service_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
	domainerrors "github.com/cardlinkapp/cardlink-server/internal/errors"
	"github.com/cardlinkapp/cardlink-server/internal/mirror"
	"github.com/cardlinkapp/cardlink-server/internal/service"
	"github.com/cardlinkapp/cardlink-server/internal/store"
)

type exchangeFixture struct {
	svc    *service.ExchangeService
	store  *store.Store
	mirror *mirror.Mirror
	scope  domain.Scope
}

func newExchangeFixture(t *testing.T) *exchangeFixture {
	t.Helper()

	dir := t.TempDir()

	st, err := store.New(filepath.Join(dir, "badger"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m, err := mirror.Open(filepath.Join(dir, "mirror.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	logger := slog.New(slog.DiscardHandler)
	svc := service.NewExchangeService(st, m, service.NoopEmitter{}, nil, logger)

	return &exchangeFixture{
		svc:    svc,
		store:  st,
		mirror: m,
		scope:  domain.Scope{EventID: "evt-1", UserID: "usr-me"},
	}
}

func validCard(id string) domain.Card {
	return domain.Card{ID: id, FirstName: "First" + id, LastName: "Last" + id}
}

func TestAddCard_MissingNameRejected(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	for _, card := range []domain.Card{
		{ID: "usr-a", LastName: "Solo"},
		{ID: "usr-b", FirstName: "Han"},
		{ID: "usr-c", FirstName: "  ", LastName: "Solo"},
	} {
		err := f.svc.AddCard(ctx, f.scope, card, false)
		assert.ErrorIs(t, err, domainerrors.ErrValidation, "card %s", card.ID)
	}

	snap, err := f.svc.Snapshot(ctx, f.scope)
	require.NoError(t, err)
	assert.Empty(t, snap.Cards, "rejected cards must not change the list")
}

func TestAddCard_MissingNameReciprocalDroppedSilently(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	err := f.svc.AddCard(ctx, f.scope, domain.Card{ID: "usr-a"}, true)
	assert.NoError(t, err, "invalid reciprocal payloads are tolerated")

	snap, err := f.svc.Snapshot(ctx, f.scope)
	require.NoError(t, err)
	assert.Empty(t, snap.Cards)
}

func TestAddCard_DuplicateRules(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard("usr-a"), false))

	// Direct rescans are loud
	err := f.svc.AddCard(ctx, f.scope, validCard("usr-a"), false)
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)

	// Duplicate reciprocal deliveries are silent
	assert.NoError(t, f.svc.AddCard(ctx, f.scope, validCard("usr-a"), true))

	snap, err := f.svc.Snapshot(ctx, f.scope)
	require.NoError(t, err)
	assert.Len(t, snap.Cards, 1)
}

func TestAddCard_AppendsInOrderAndPersists(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard("usr-a"), false))
	require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard("usr-b"), false))

	snap, err := f.svc.Snapshot(ctx, f.scope)
	require.NoError(t, err)
	require.Len(t, snap.Cards, 2)
	assert.Equal(t, "usr-a", snap.Cards[0].ID)
	assert.Equal(t, "usr-b", snap.Cards[1].ID)

	// Written through to both stores
	local, found, err := f.store.LoadSnapshot(ctx, f.scope)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, local.Cards, 2)

	remote, err := f.mirror.GetContacts(ctx, f.scope)
	require.NoError(t, err)
	assert.Len(t, remote, 2)

	total, err := f.svc.ConnectionCount(ctx, f.scope.EventID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
}

func TestAddCard_MirrorFailureDoesNotBlockScan(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard("usr-a"), false))

	// Kill the mirror sink. Closing a sql.DB twice is harmless, so the
	// fixture cleanup still runs.
	require.NoError(t, f.mirror.Close())

	err := f.svc.AddCard(ctx, f.scope, validCard("usr-b"), false)
	require.NoError(t, err, "a dead mirror must not fail a scan")

	// The local snapshot holds the full list
	local, found, err := f.store.LoadSnapshot(ctx, f.scope)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, local.Cards, 2)
	assert.Equal(t, "usr-b", local.Cards[1].ID)

	// The next session start reconciles from the surviving sink
	logger := slog.New(slog.DiscardHandler)
	reloaded := service.NewExchangeService(f.store, f.mirror, service.NoopEmitter{}, nil, logger)

	snap, err := reloaded.StartSession(ctx, f.scope)
	require.NoError(t, err)
	assert.Len(t, snap.Cards, 2)
}

func TestAddCard_SnapshotFailureDoesNotBlockScan(t *testing.T) {
	dir := t.TempDir()

	// Built by hand rather than through the fixture: the store is closed
	// mid-test to make the local sink fail.
	st, err := store.New(filepath.Join(dir, "badger"), nil)
	require.NoError(t, err)

	m, err := mirror.Open(filepath.Join(dir, "mirror.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	logger := slog.New(slog.DiscardHandler)
	svc := service.NewExchangeService(st, m, service.NoopEmitter{}, nil, logger)
	scope := domain.Scope{EventID: "evt-1", UserID: "usr-me"}
	ctx := context.Background()

	// Warm the in-memory session state, then kill the local sink
	_, err = svc.Snapshot(ctx, scope)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	err = svc.AddCard(ctx, scope, validCard("usr-a"), false)
	require.NoError(t, err, "a dead snapshot store must not fail a scan")

	// The mirror holds the list even though the snapshot write failed
	remote, err := m.GetContacts(ctx, scope)
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, "usr-a", remote[0].ID)

	// A later session on a healthy store reconciles from the mirror
	st2, err := store.New(filepath.Join(dir, "badger2"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st2.Close() })

	reloaded := service.NewExchangeService(st2, m, service.NoopEmitter{}, nil, logger)
	snap, err := reloaded.StartSession(ctx, scope)
	require.NoError(t, err)
	require.Len(t, snap.Cards, 1)
	assert.Equal(t, "usr-a", snap.Cards[0].ID)
}

func TestAddCard_ReciprocalShareFollowsPreference(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EditOwnCard(ctx, f.scope, domain.Card{
		FirstName: "Me", LastName: "Myself",
	}))

	// Preference on (default): scanning enqueues the own card for the scanned party
	require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard("usr-a"), false))

	msgs, err := f.mirror.ListMessages(ctx, f.scope.EventID, "usr-a")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "usr-me", msgs[0].SenderID)
	assert.Equal(t, "Me", msgs[0].Card.FirstName)

	// Preference off: no enqueue
	require.NoError(t, f.store.SetSendOnScan(ctx, f.scope, false))
	require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard("usr-b"), false))

	msgs, err = f.mirror.ListMessages(ctx, f.scope.EventID, "usr-b")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Reciprocal merges never trigger a counter-share
	require.NoError(t, f.store.SetSendOnScan(ctx, f.scope, true))
	require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard("usr-c"), true))

	msgs, err = f.mirror.ListMessages(ctx, f.scope.EventID, "usr-c")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestProcessInboundMessages_EmptiesInbox(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	// Seed the list so one inbound message is a duplicate
	require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard("usr-dup"), false))

	push := func(id string, card domain.Card) {
		t.Helper()
		require.NoError(t, f.mirror.PushMessage(ctx, f.scope.EventID, &domain.ShareMessage{
			ID:          id,
			SenderID:    card.ID,
			RecipientID: f.scope.UserID,
			Card:        card,
		}))
	}
	push("msg-1", validCard("usr-new"))
	push("msg-2", validCard("usr-dup"))
	push("msg-3", domain.Card{ID: "usr-nameless"})

	handled, err := f.svc.ProcessInboundMessages(ctx, f.scope)
	require.NoError(t, err)
	assert.Equal(t, 3, handled)

	// The inbox is empty regardless of each message's outcome
	remaining, err := f.mirror.ListMessages(ctx, f.scope.EventID, f.scope.UserID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// Only the valid new card landed
	snap, err := f.svc.Snapshot(ctx, f.scope)
	require.NoError(t, err)
	assert.Len(t, snap.Cards, 2)
	assert.True(t, snap.Cards.Contains("usr-new"))
}

func TestProcessInboundMessages_CardKeyedBySender(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	// A sender's payload may carry a stale card ID; the sender ID wins.
	card := validCard("stale-id")
	require.NoError(t, f.mirror.PushMessage(ctx, f.scope.EventID, &domain.ShareMessage{
		ID:          "msg-1",
		SenderID:    "usr-sender",
		RecipientID: f.scope.UserID,
		Card:        card,
	}))

	_, err := f.svc.ProcessInboundMessages(ctx, f.scope)
	require.NoError(t, err)

	snap, err := f.svc.Snapshot(ctx, f.scope)
	require.NoError(t, err)
	require.Len(t, snap.Cards, 1)
	assert.Equal(t, "usr-sender", snap.Cards[0].ID)
}

func TestUpdateCard(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard("usr-a"), false))

	edited := validCard("usr-a")
	edited.Notes = "met at the booth"
	require.NoError(t, f.svc.UpdateCard(ctx, f.scope, edited))

	snap, err := f.svc.Snapshot(ctx, f.scope)
	require.NoError(t, err)
	require.Len(t, snap.Cards, 1)
	assert.Equal(t, "met at the booth", snap.Cards[0].Notes)

	err = f.svc.UpdateCard(ctx, f.scope, validCard("usr-missing"))
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestDeleteCard_PreservesOrder(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	for _, id := range []string{"usr-a", "usr-b", "usr-c"} {
		require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard(id), false))
	}

	require.NoError(t, f.svc.DeleteCard(ctx, f.scope, "usr-b"))

	snap, err := f.svc.Snapshot(ctx, f.scope)
	require.NoError(t, err)
	require.Len(t, snap.Cards, 2)
	assert.Equal(t, "usr-a", snap.Cards[0].ID)
	assert.Equal(t, "usr-c", snap.Cards[1].ID)

	err = f.svc.DeleteCard(ctx, f.scope, "usr-b")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestEditOwnCard_Validates(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	err := f.svc.EditOwnCard(ctx, f.scope, domain.Card{FirstName: "OnlyFirst"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	require.NoError(t, f.svc.EditOwnCard(ctx, f.scope, domain.Card{
		FirstName: "Me", LastName: "Myself", Title: "Engineer",
	}))

	// ID defaults to the scope's user
	snap, err := f.svc.Snapshot(ctx, f.scope)
	require.NoError(t, err)
	assert.Equal(t, "usr-me", snap.MyCard.ID)

	// Written through to the mirror
	remote, err := f.mirror.GetOwnCard(ctx, f.scope)
	require.NoError(t, err)
	assert.Equal(t, "Engineer", remote.Title)
}

func TestExportFormat(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	full := domain.Card{
		ID: "usr-a", FirstName: "Grace", LastName: "Hopper",
		Title: "RADM", Company: "Navy", Mobile: "555-1234",
		Email: "grace@example.com", LinkedIn: "gracehopper",
		Twitter: "@grace", Notes: "compilers",
	}
	sparse := domain.Card{ID: "usr-b", FirstName: "Alan", LastName: "Turing"}

	require.NoError(t, f.svc.AddCard(ctx, f.scope, full, false))
	require.NoError(t, f.svc.AddCard(ctx, f.scope, sparse, false))

	text, err := f.svc.Export(ctx, f.scope)
	require.NoError(t, err)

	want := "Grace Hopper\n" +
		"RADM\n" +
		"Navy\n" +
		"mobile: 555-1234\n" +
		"email : grace@example.com\n" +
		"linkedin : gracehopper\n" +
		"twitter : @grace\n" +
		"notes : compilers\n" +
		"\n\n" +
		"Alan Turing\n"
	assert.Equal(t, want, text)
}

func TestSessionRoundTrip(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EditOwnCard(ctx, f.scope, domain.Card{FirstName: "Me", LastName: "Myself"}))
	for _, id := range []string{"usr-a", "usr-b"} {
		require.NoError(t, f.svc.AddCard(ctx, f.scope, validCard(id), false))
	}

	before, err := f.svc.Snapshot(ctx, f.scope)
	require.NoError(t, err)

	// A fresh service against the same stores reloads the same bundle
	logger := slog.New(slog.DiscardHandler)
	reloaded := service.NewExchangeService(f.store, f.mirror, service.NoopEmitter{}, nil, logger)

	after, err := reloaded.Snapshot(ctx, f.scope)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStartSession_LocalWinsOverMirror(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	// Local snapshot has one card, mirror has a diverged list
	require.NoError(t, f.store.SaveSnapshot(ctx, f.scope, &domain.Snapshot{
		MyCard: domain.Card{ID: "usr-me", FirstName: "Local", LastName: "Copy"},
		Cards:  domain.ContactList{validCard("usr-local")},
	}))
	require.NoError(t, f.mirror.SetContacts(ctx, f.scope, domain.ContactList{validCard("usr-remote")}))

	snap, err := f.svc.StartSession(ctx, f.scope)
	require.NoError(t, err)
	require.Len(t, snap.Cards, 1)
	assert.Equal(t, "usr-local", snap.Cards[0].ID)
	assert.Equal(t, "Local", snap.MyCard.FirstName)
}

func TestStartSession_FallsBackToMirror(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mirror.SetOwnCard(ctx, f.scope, &domain.Card{
		ID: "usr-me", FirstName: "Remote", LastName: "Copy",
	}))
	require.NoError(t, f.mirror.SetContacts(ctx, f.scope, domain.ContactList{validCard("usr-remote")}))

	snap, err := f.svc.StartSession(ctx, f.scope)
	require.NoError(t, err)
	require.Len(t, snap.Cards, 1)
	assert.Equal(t, "usr-remote", snap.Cards[0].ID)
	assert.Equal(t, "Remote", snap.MyCard.FirstName)
}

type staticProfiles struct {
	card *domain.Card
}

func (p staticProfiles) FetchProfile(_ context.Context, _ domain.Scope) (*domain.Card, error) {
	return p.card, nil
}

func TestStartSession_ProfileFillsOnlyUnsetFields(t *testing.T) {
	f := newExchangeFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveSnapshot(ctx, f.scope, &domain.Snapshot{
		MyCard: domain.Card{ID: "usr-me", FirstName: "Kept", LastName: "Name"},
	}))

	logger := slog.New(slog.DiscardHandler)
	profiles := staticProfiles{card: &domain.Card{
		FirstName: "Directory", LastName: "Value", Company: "Acme",
	}}
	svc := service.NewExchangeService(f.store, f.mirror, service.NoopEmitter{}, profiles, logger)

	snap, err := svc.StartSession(ctx, f.scope)
	require.NoError(t, err)
	assert.Equal(t, "Kept", snap.MyCard.FirstName, "existing values win")
	assert.Equal(t, "Acme", snap.MyCard.Company, "unset fields are filled")
}
