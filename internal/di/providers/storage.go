package providers

import (
	"github.com/samber/do/v2"

	"github.com/cardlinkapp/cardlink-server/internal/config"
	"github.com/cardlinkapp/cardlink-server/internal/logger"
	"github.com/cardlinkapp/cardlink-server/internal/media/images"
)

// ProvideAvatarService provides avatar storage with BlurHash support.
func ProvideAvatarService(i do.Injector) (*images.AvatarService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	storage, err := images.NewStorage(cfg.Data.BasePath, "avatars")
	if err != nil {
		return nil, err
	}

	return images.NewAvatarService(storage, log.Logger), nil
}
