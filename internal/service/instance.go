package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
	"github.com/cardlinkapp/cardlink-server/internal/store"
)

// InstanceService manages the singleton server instance configuration.
type InstanceService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewInstanceService creates a new instance configuration service.
func NewInstanceService(store *store.Store, logger *slog.Logger) *InstanceService {
	return &InstanceService{
		store:  store,
		logger: logger,
	}
}

// GetInstance returns the instance configuration, creating it on first call.
func (s *InstanceService) GetInstance(ctx context.Context) (*domain.Instance, error) {
	return s.store.InitializeInstance(ctx)
}

// IsSetupRequired reports whether the server still needs its root user.
func (s *InstanceService) IsSetupRequired(ctx context.Context) (bool, error) {
	instance, err := s.GetInstance(ctx)
	if err != nil {
		return false, err
	}
	return instance.IsSetupRequired(), nil
}

// SetRootUser marks setup as complete after the root user is created.
func (s *InstanceService) SetRootUser(ctx context.Context, userID string) error {
	instance, err := s.GetInstance(ctx)
	if err != nil {
		return err
	}

	instance.HasRootUser = true
	if err := s.store.UpdateInstance(ctx, instance); err != nil {
		return fmt.Errorf("mark root user: %w", err)
	}

	s.logger.Info("Root user configured", "user_id", userID)
	return nil
}

// SetEventName updates the display name of the hosted event.
func (s *InstanceService) SetEventName(ctx context.Context, name string) error {
	instance, err := s.GetInstance(ctx)
	if err != nil {
		return err
	}

	instance.EventName = name
	return s.store.UpdateInstance(ctx, instance)
}
