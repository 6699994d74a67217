package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cardlinkapp/cardlink-server/internal/auth"
	"github.com/cardlinkapp/cardlink-server/internal/domain"
	domainerrors "github.com/cardlinkapp/cardlink-server/internal/errors"
	"github.com/cardlinkapp/cardlink-server/internal/id"
	"github.com/cardlinkapp/cardlink-server/internal/store"
	"github.com/cardlinkapp/cardlink-server/internal/validation"
)

// validate is shared by the service request DTOs.
var validate = validation.New()

// AuthService handles account creation and authentication.
type AuthService struct {
	store           *store.Store
	sessionService  *SessionService
	instanceService *InstanceService
	exchangeService *ExchangeService
	logger          *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	store *store.Store,
	sessionService *SessionService,
	instanceService *InstanceService,
	exchangeService *ExchangeService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:           store,
		sessionService:  sessionService,
		instanceService: instanceService,
		exchangeService: exchangeService,
		logger:          logger,
	}
}

// SetupRequest creates the root user during first-run setup.
type SetupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=1024"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	EventName string `json:"event_name,omitempty"`
}

// RegisterRequest creates an attendee account.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=1024"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

// LoginRequest authenticates an existing user.
type LoginRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required"`
	DeviceInfo auth.DeviceInfo `json:"device_info"`
	IPAddress  string          `json:"-"`
}

// RefreshRequest exchanges a refresh token for new tokens.
type RefreshRequest struct {
	RefreshToken string          `json:"refresh_token" validate:"required"`
	DeviceInfo   auth.DeviceInfo `json:"device_info"`
	IPAddress    string          `json:"-"`
}

// AuthResponse bundles the authenticated user with their session tokens.
type AuthResponse struct {
	User *domain.User `json:"user"`
	SessionResponse
}

// Setup creates the root admin account. Only allowed once per instance.
func (s *AuthService) Setup(ctx context.Context, req SetupRequest) (*AuthResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	required, err := s.instanceService.IsSetupRequired(ctx)
	if err != nil {
		return nil, err
	}
	if !required {
		return nil, domainerrors.AlreadyConfigured("server already has a root user")
	}

	user, err := s.createUser(ctx, req.Email, req.Password, req.FirstName, req.LastName, true)
	if err != nil {
		return nil, err
	}

	if err := s.instanceService.SetRootUser(ctx, user.ID); err != nil {
		return nil, err
	}
	if req.EventName != "" {
		if err := s.instanceService.SetEventName(ctx, req.EventName); err != nil {
			s.logger.Warn("Failed to set event name during setup", "error", err)
		}
	}

	s.seedOwnCard(ctx, user)

	session, err := s.sessionService.CreateSession(ctx, user, auth.DeviceInfo{
		DeviceType: "web",
		Platform:   "web",
		ClientName: "setup",
	}, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("Root user created", "user_id", user.ID, "email", user.Email)
	return &AuthResponse{User: sanitizeUser(user), SessionResponse: *session}, nil
}

// Register creates a standard attendee account. Registration is open; any
// attendee with the server address can create an account.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	required, err := s.instanceService.IsSetupRequired(ctx)
	if err != nil {
		return nil, err
	}
	if required {
		return nil, domainerrors.Forbidden("server setup is not complete")
	}

	user, err := s.createUser(ctx, req.Email, req.Password, req.FirstName, req.LastName, false)
	if err != nil {
		return nil, err
	}

	s.seedOwnCard(ctx, user)

	session, err := s.sessionService.CreateSession(ctx, user, auth.DeviceInfo{}, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("Attendee registered", "user_id", user.ID, "email", user.Email)
	return &AuthResponse{User: sanitizeUser(user), SessionResponse: *session}, nil
}

// Login authenticates a user with email and password.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		// Same error for unknown email and bad password
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}

	user.LastLoginAt = time.Now()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		s.logger.Warn("Failed to record login time", "user_id", user.ID, "error", err)
	}

	session, err := s.sessionService.CreateSession(ctx, user, req.DeviceInfo, req.IPAddress)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in", "user_id", user.ID)
	return &AuthResponse{User: sanitizeUser(user), SessionResponse: *session}, nil
}

// Refresh exchanges a valid refresh token for a fresh token pair.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest) (*AuthResponse, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	session, user, err := s.sessionService.RefreshSession(ctx, req.RefreshToken, req.DeviceInfo, req.IPAddress)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{User: sanitizeUser(user), SessionResponse: *session}, nil
}

// Logout invalidates the session associated with a refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.sessionService.Logout(ctx, refreshToken)
}

// GetUser fetches a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, domainerrors.NotFound("user not found").WithCause(err)
	}
	return sanitizeUser(user), nil
}

// createUser hashes the password and stores a new account.
func (s *AuthService) createUser(ctx context.Context, email, password, firstName, lastName string, isRoot bool) (*domain.User, error) {
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID, err := id.Generate("usr")
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	role := domain.RoleAttendee
	if isRoot {
		role = domain.RoleAdmin
	}

	user := &domain.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		IsRoot:       isRoot,
		Role:         role,
		DisplayName:  firstName + " " + lastName,
		FirstName:    firstName,
		LastName:     lastName,
	}
	user.ID = userID
	user.InitTimestamps()

	if err := s.store.CreateUser(ctx, user); err != nil {
		if domainerrors.Is(err, store.ErrEmailTaken) {
			return nil, domainerrors.AlreadyExists("an account with this email already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// seedOwnCard writes the starting own card so the first session has identity
// fields prefilled. Best-effort; the user can edit their card regardless.
func (s *AuthService) seedOwnCard(ctx context.Context, user *domain.User) {
	instance, err := s.instanceService.GetInstance(ctx)
	if err != nil {
		s.logger.Warn("Failed to load instance for card seed", "user_id", user.ID, "error", err)
		return
	}

	scope := domain.Scope{EventID: instance.EventID, UserID: user.ID}
	if err := s.exchangeService.EditOwnCard(ctx, scope, user.SeedCard()); err != nil {
		s.logger.Warn("Failed to seed own card", "user_id", user.ID, "error", err)
	}
}

// sanitizeUser strips fields that must never leave the server.
func sanitizeUser(user *domain.User) *domain.User {
	clean := *user
	clean.PasswordHash = ""
	return &clean
}
