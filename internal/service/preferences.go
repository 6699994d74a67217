package service

import (
	"context"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
	domainerrors "github.com/cardlinkapp/cardlink-server/internal/errors"
	"github.com/cardlinkapp/cardlink-server/internal/sse"
)

// SendOnScanEnabled reports whether the scope reciprocally shares its own
// card on a direct scan. Defaults to enabled when never set.
func (s *ExchangeService) SendOnScanEnabled(ctx context.Context, scope domain.Scope) (bool, error) {
	if !scope.Valid() {
		return false, domainerrors.Validation("event and user are required")
	}
	return s.store.GetSendOnScan(ctx, scope)
}

// SetSendOnScan updates the reciprocal-share preference for a scope.
func (s *ExchangeService) SetSendOnScan(ctx context.Context, scope domain.Scope, enabled bool) error {
	if !scope.Valid() {
		return domainerrors.Validation("event and user are required")
	}
	if err := s.store.SetSendOnScan(ctx, scope, enabled); err != nil {
		return err
	}
	s.events.EmitToUser(scope.UserID, sse.NewPreferenceUpdatedEvent(scope.UserID, enabled))
	return nil
}
