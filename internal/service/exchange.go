// Package service contains the application services that sit between the
// HTTP handlers and the persistence layers.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
	domainerrors "github.com/cardlinkapp/cardlink-server/internal/errors"
	"github.com/cardlinkapp/cardlink-server/internal/id"
	"github.com/cardlinkapp/cardlink-server/internal/mirror"
	"github.com/cardlinkapp/cardlink-server/internal/sse"
	"github.com/cardlinkapp/cardlink-server/internal/store"
)

// EventEmitter is the interface for pushing SSE events.
// The exchange service uses it to notify clients without depending on the
// transport.
type EventEmitter interface {
	Emit(event sse.Event)
	EmitToUser(userID string, event sse.Event)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ sse.Event) {}

// EmitToUser implements EventEmitter.EmitToUser as a no-op.
func (NoopEmitter) EmitToUser(_ string, _ sse.Event) {}

// ContactIndexer keeps a search index in step with the contact list.
// A nil indexer disables search without touching the exchange flow.
type ContactIndexer interface {
	IndexCard(scope domain.Scope, card *domain.Card) error
	IndexContacts(scope domain.Scope, cards domain.ContactList) error
	DeleteCard(scope domain.Scope, cardID string) error
}

// ProfileSource fetches a published directory profile for a user, used to
// enrich the own card at session start. Implementations may hit the network;
// a nil result with nil error means "no profile".
type ProfileSource interface {
	FetchProfile(ctx context.Context, scope domain.Scope) (*domain.Card, error)
}

// ExchangeService is the reconciliation engine for contact exchanges.
//
// For each (event, user) scope it keeps the session's contact list and own
// card in memory, guarded by a per-scope mutex, and writes through to the
// mirror and the local snapshot store on every mutation. Storage failures
// on the write-through path are logged and tolerated; the in-memory copy is
// the source of truth until the next session start reconciles.
type ExchangeService struct {
	store    *store.Store
	mirror   *mirror.Mirror
	events   EventEmitter
	profiles ProfileSource
	index    ContactIndexer
	logger   *slog.Logger

	mu     sync.Mutex
	scopes map[string]*exchangeState
}

// exchangeState holds one scope's in-memory session state.
type exchangeState struct {
	mu       sync.Mutex
	loaded   bool
	snapshot domain.Snapshot
}

// NewExchangeService creates the reconciliation engine.
// profiles may be nil when directory enrichment is disabled.
func NewExchangeService(
	st *store.Store,
	m *mirror.Mirror,
	events EventEmitter,
	profiles ProfileSource,
	logger *slog.Logger,
) *ExchangeService {
	return &ExchangeService{
		store:    st,
		mirror:   m,
		events:   events,
		profiles: profiles,
		logger:   logger,
		scopes:   make(map[string]*exchangeState),
	}
}

// SetIndexer attaches a search indexer. Must be called before the service
// handles requests.
func (s *ExchangeService) SetIndexer(index ContactIndexer) {
	s.index = index
}

// state returns the session state for a scope, creating it if needed.
func (s *ExchangeService) state(scope domain.Scope) *exchangeState {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.String()
	st, ok := s.scopes[key]
	if !ok {
		st = &exchangeState{}
		s.scopes[key] = st
	}
	return st
}

// ensureLoaded populates the in-memory snapshot from storage.
// The local snapshot wins when present; the mirror is only consulted on a
// local miss. Mirror failures degrade to an empty exchange rather than
// blocking the session. Caller must hold st.mu.
func (s *ExchangeService) ensureLoaded(ctx context.Context, scope domain.Scope, st *exchangeState) error {
	if st.loaded {
		return nil
	}

	snapshot, found, err := s.store.LoadSnapshot(ctx, scope)
	if err != nil {
		return err
	}

	if !found {
		if card, err := s.mirror.GetOwnCard(ctx, scope); err == nil {
			snapshot.MyCard = *card
		} else if !domainerrors.Is(err, mirror.ErrNotFound) {
			s.logger.Warn("mirror own card load failed", "scope", scope.String(), "error", err)
		}

		if cards, err := s.mirror.GetContacts(ctx, scope); err == nil {
			snapshot.Cards = cards
		} else {
			s.logger.Warn("mirror contacts load failed", "scope", scope.String(), "error", err)
		}
	}

	if snapshot.MyCard.ID == "" {
		snapshot.MyCard.ID = scope.UserID
	}

	st.snapshot = *snapshot
	st.loaded = true
	return nil
}

// StartSession loads the scope's exchange state and enriches the own card
// from the directory profile. Profile fields never overwrite values already
// present. The merged result is persisted so later sessions start warm.
func (s *ExchangeService) StartSession(ctx context.Context, scope domain.Scope) (*domain.Snapshot, error) {
	if !scope.Valid() {
		return nil, domainerrors.Validation("event and user are required")
	}

	st := s.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := s.ensureLoaded(ctx, scope, st); err != nil {
		return nil, err
	}

	if s.profiles != nil {
		profile, err := s.profiles.FetchProfile(ctx, scope)
		switch {
		case err != nil:
			// Enrichment is best-effort. Local and manual fields win anyway.
			s.logger.Warn("directory profile fetch failed", "scope", scope.String(), "error", err)
		case profile != nil:
			st.snapshot.MyCard.FillFrom(profile)
		}
	}

	s.persistOwnCard(ctx, scope, st)
	s.persistSnapshot(ctx, scope, st)

	if s.index != nil {
		if err := s.index.IndexContacts(scope, st.snapshot.Cards); err != nil {
			s.logger.Warn("search reindex failed", "scope", scope.String(), "error", err)
		}
	}

	return s.snapshotCopy(st), nil
}

// Snapshot returns a copy of the scope's current exchange state.
func (s *ExchangeService) Snapshot(ctx context.Context, scope domain.Scope) (*domain.Snapshot, error) {
	st := s.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := s.ensureLoaded(ctx, scope, st); err != nil {
		return nil, err
	}
	return s.snapshotCopy(st), nil
}

// snapshotCopy returns a detached copy of the state. Caller must hold st.mu.
func (s *ExchangeService) snapshotCopy(st *exchangeState) *domain.Snapshot {
	return &domain.Snapshot{
		MyCard: st.snapshot.MyCard,
		Cards:  st.snapshot.Cards.Clone(),
	}
}

// AddCard merges a scanned or reciprocally delivered card into the contact
// list.
//
// Dedup comes first: a card already present is rejected, loudly for a direct
// scan and silently for a reciprocal delivery (duplicate deliveries are
// expected on retry). Validation requires both names; an invalid reciprocal
// payload is dropped with a log line rather than surfaced, since the sender
// validated their own card at creation time.
//
// On acceptance the new list is written to the mirror and then the snapshot
// store, the event-wide connection tally is incremented, and, for a direct
// scan with the send-on-scan preference enabled, the own card is enqueued
// into the scanned party's inbox.
func (s *ExchangeService) AddCard(ctx context.Context, scope domain.Scope, card domain.Card, isReciprocal bool) error {
	st := s.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := s.ensureLoaded(ctx, scope, st); err != nil {
		return err
	}

	if st.snapshot.Cards.Contains(card.ID) {
		if isReciprocal {
			return nil
		}
		return domainerrors.AlreadyExists("card already scanned")
	}

	if !card.HasFullName() {
		if isReciprocal {
			s.logger.Warn("dropping reciprocal card without full name",
				"scope", scope.String(), "card_id", card.ID)
			return nil
		}
		return domainerrors.Validation("scanned card is missing a name")
	}

	st.snapshot.Cards = append(st.snapshot.Cards.Clone(), card)

	if err := s.mirror.RecordConnection(ctx, scope.EventID, time.Now().UnixMilli()); err != nil {
		s.logger.Warn("connection tally write failed", "scope", scope.String(), "error", err)
	} else if total, err := s.mirror.CountConnections(ctx, scope.EventID); err == nil {
		s.events.Emit(sse.NewConnectionTallyEvent(total))
	}

	s.persistList(ctx, scope, st)
	s.indexCard(scope, &card)
	s.events.EmitToUser(scope.UserID, sse.NewCardAddedEvent(scope.UserID, &card))

	if !isReciprocal {
		if err := s.sendReciprocal(ctx, scope, st, card.ID); err != nil {
			s.logger.Warn("reciprocal share failed",
				"scope", scope.String(), "recipient", card.ID, "error", err)
		}
	}

	return nil
}

// sendReciprocal enqueues the own card into the scanned party's inbox when
// the send-on-scan preference allows it. Caller must hold st.mu.
func (s *ExchangeService) sendReciprocal(ctx context.Context, scope domain.Scope, st *exchangeState, recipientID string) error {
	enabled, err := s.store.GetSendOnScan(ctx, scope)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	msgID, err := id.Generate("msg")
	if err != nil {
		return err
	}

	msg := &domain.ShareMessage{
		ID:          msgID,
		SenderID:    scope.UserID,
		RecipientID: recipientID,
		Card:        st.snapshot.MyCard,
		CreatedAt:   time.Now(),
	}

	if err := s.mirror.PushMessage(ctx, scope.EventID, msg); err != nil {
		return err
	}

	s.events.EmitToUser(recipientID, sse.NewMessageReceivedEvent(msg))
	return nil
}

// ProcessInboundMessages drains the scope's inbox in arrival order.
// Each message is merged via the reciprocal AddCard path and then deleted,
// whether or not the merge accepted the card. Returns the number of
// messages handled.
func (s *ExchangeService) ProcessInboundMessages(ctx context.Context, scope domain.Scope) (int, error) {
	messages, err := s.mirror.ListMessages(ctx, scope.EventID, scope.UserID)
	if err != nil {
		return 0, err
	}

	for _, msg := range messages {
		card := msg.Card
		card.ID = msg.SenderID // The sender's card is keyed by who sent it

		if err := s.AddCard(ctx, scope, card, true); err != nil {
			s.logger.Warn("reciprocal merge failed",
				"scope", scope.String(), "message_id", msg.ID, "error", err)
		}

		// The message is handled once processed, accepted or not.
		if err := s.mirror.DeleteMessage(ctx, msg.ID); err != nil {
			s.logger.Warn("inbox delete failed",
				"scope", scope.String(), "message_id", msg.ID, "error", err)
		}
	}

	return len(messages), nil
}

// UpdateCard replaces a saved card, matched by ID. Used for post-scan note
// edits.
func (s *ExchangeService) UpdateCard(ctx context.Context, scope domain.Scope, card domain.Card) error {
	st := s.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := s.ensureLoaded(ctx, scope, st); err != nil {
		return err
	}

	idx := st.snapshot.Cards.IndexOf(card.ID)
	if idx < 0 {
		return domainerrors.NotFound("card not found")
	}

	cards := st.snapshot.Cards.Clone()
	cards[idx] = card
	st.snapshot.Cards = cards

	s.persistList(ctx, scope, st)
	s.indexCard(scope, &card)
	s.events.EmitToUser(scope.UserID, sse.NewCardUpdatedEvent(scope.UserID, &card))
	return nil
}

// DeleteCard removes a saved card by ID, preserving the order of the rest.
func (s *ExchangeService) DeleteCard(ctx context.Context, scope domain.Scope, cardID string) error {
	st := s.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := s.ensureLoaded(ctx, scope, st); err != nil {
		return err
	}

	idx := st.snapshot.Cards.IndexOf(cardID)
	if idx < 0 {
		return domainerrors.NotFound("card not found")
	}

	cards := st.snapshot.Cards.Clone()
	st.snapshot.Cards = append(cards[:idx], cards[idx+1:]...)

	s.persistList(ctx, scope, st)
	if s.index != nil {
		if err := s.index.DeleteCard(scope, cardID); err != nil {
			s.logger.Warn("search index delete failed", "scope", scope.String(), "card_id", cardID, "error", err)
		}
	}
	s.events.EmitToUser(scope.UserID, sse.NewCardDeletedEvent(scope.UserID, cardID))
	return nil
}

// EditOwnCard replaces the own card after an explicit user edit.
func (s *ExchangeService) EditOwnCard(ctx context.Context, scope domain.Scope, card domain.Card) error {
	if !card.HasFullName() {
		return domainerrors.Validation("first and last name are required")
	}

	st := s.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := s.ensureLoaded(ctx, scope, st); err != nil {
		return err
	}

	if card.ID == "" {
		card.ID = scope.UserID
	}
	st.snapshot.MyCard = card

	s.persistOwnCard(ctx, scope, st)
	s.persistSnapshot(ctx, scope, st)
	s.events.EmitToUser(scope.UserID, sse.NewOwnCardUpdatedEvent(scope.UserID, &card))
	return nil
}

// Export renders the contact list as shareable text. Per card: the name
// line, then each optional field on its own line, blank line between cards.
func (s *ExchangeService) Export(ctx context.Context, scope domain.Scope) (string, error) {
	st := s.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := s.ensureLoaded(ctx, scope, st); err != nil {
		return "", err
	}

	entries := make([]string, 0, len(st.snapshot.Cards))
	for i := range st.snapshot.Cards {
		entries = append(entries, exportCard(&st.snapshot.Cards[i]))
	}
	return strings.Join(entries, "\n\n"), nil
}

// exportCard renders one card in the fixed export field order.
func exportCard(card *domain.Card) string {
	var b strings.Builder
	b.WriteString(card.FirstName + " " + card.LastName + "\n")
	if card.Title != "" {
		b.WriteString(card.Title + "\n")
	}
	if card.Company != "" {
		b.WriteString(card.Company + "\n")
	}
	if card.Mobile != "" {
		b.WriteString("mobile: " + card.Mobile + "\n")
	}
	if card.Email != "" {
		b.WriteString("email : " + card.Email + "\n")
	}
	if card.LinkedIn != "" {
		b.WriteString("linkedin : " + card.LinkedIn + "\n")
	}
	if card.Twitter != "" {
		b.WriteString("twitter : " + card.Twitter + "\n")
	}
	if card.Notes != "" {
		b.WriteString("notes : " + card.Notes + "\n")
	}
	return b.String()
}

// indexCard pushes one card into the search index, if one is attached.
func (s *ExchangeService) indexCard(scope domain.Scope, card *domain.Card) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexCard(scope, card); err != nil {
		s.logger.Warn("search index write failed", "scope", scope.String(), "card_id", card.ID, "error", err)
	}
}

// ConnectionCount returns the event-wide tally of successful scans.
func (s *ExchangeService) ConnectionCount(ctx context.Context, eventID string) (int, error) {
	return s.mirror.CountConnections(ctx, eventID)
}

// persistList writes the contact list through to the mirror and the local
// snapshot. Both writes are best-effort: a failure is logged and the
// in-memory state stands. Caller must hold st.mu.
func (s *ExchangeService) persistList(ctx context.Context, scope domain.Scope, st *exchangeState) {
	if err := s.mirror.SetContacts(ctx, scope, st.snapshot.Cards); err != nil {
		s.logger.Warn("mirror contacts write failed", "scope", scope.String(), "error", err)
	}
	s.persistSnapshot(ctx, scope, st)
}

// persistOwnCard writes the own card to the mirror. Caller must hold st.mu.
func (s *ExchangeService) persistOwnCard(ctx context.Context, scope domain.Scope, st *exchangeState) {
	if err := s.mirror.SetOwnCard(ctx, scope, &st.snapshot.MyCard); err != nil {
		s.logger.Warn("mirror own card write failed", "scope", scope.String(), "error", err)
	}
}

// persistSnapshot writes the combined bundle to the local store. Caller must
// hold st.mu.
func (s *ExchangeService) persistSnapshot(ctx context.Context, scope domain.Scope, st *exchangeState) {
	if err := s.store.SaveSnapshot(ctx, scope, &st.snapshot); err != nil {
		s.logger.Warn("snapshot write failed", "scope", scope.String(), "error", err)
	}
}
