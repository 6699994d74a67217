package images

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
)

// maxAvatarBytes caps uploaded avatar size at 5 MiB.
const maxAvatarBytes = 5 << 20

// AvatarService stores uploaded avatars and computes their BlurHash
// placeholders. The hash travels on the card so a scanned contact shows a
// colored placeholder while the image loads.
type AvatarService struct {
	storage *Storage
	logger  *slog.Logger
}

// NewAvatarService creates a new AvatarService.
func NewAvatarService(storage *Storage, logger *slog.Logger) *AvatarService {
	return &AvatarService{
		storage: storage,
		logger:  logger,
	}
}

// Save validates and stores an uploaded avatar for a user.
// Returns the BlurHash placeholder string for the stored image.
func (a *AvatarService) Save(userID string, imgData []byte) (string, error) {
	if len(imgData) == 0 {
		return "", fmt.Errorf("avatar data cannot be empty")
	}
	if len(imgData) > maxAvatarBytes {
		return "", fmt.Errorf("avatar exceeds %d byte limit", maxAvatarBytes)
	}

	// Reject non-image uploads before they hit disk
	if _, format, err := image.Decode(bytes.NewReader(imgData)); err != nil {
		return "", fmt.Errorf("unsupported image format: %w", err)
	} else {
		a.logger.Debug("decoded avatar upload", "user_id", userID, "format", format)
	}

	if err := a.storage.Save(userID, imgData); err != nil {
		return "", fmt.Errorf("save avatar: %w", err)
	}

	hash, err := ComputeBlurHash(imgData)
	if err != nil {
		// The stored image is still usable without a placeholder
		a.logger.Warn("blurhash computation failed", "user_id", userID, "error", err)
		return "", nil
	}

	return hash, nil
}

// Get returns the stored avatar bytes for a user.
func (a *AvatarService) Get(userID string) ([]byte, error) {
	return a.storage.Get(userID)
}

// Exists reports whether a user has an uploaded avatar.
func (a *AvatarService) Exists(userID string) bool {
	return a.storage.Exists(userID)
}

// Delete removes a user's avatar.
func (a *AvatarService) Delete(userID string) error {
	return a.storage.Delete(userID)
}

// ETag returns the content hash of a stored avatar for cache validation.
func (a *AvatarService) ETag(userID string) (string, error) {
	return a.storage.Hash(userID)
}
