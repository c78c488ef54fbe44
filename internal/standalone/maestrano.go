package standalone

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/robalb/mnodemo/internal/envconf"
	"github.com/robalb/mnodemo/internal/maestrano"
)

// AutoConfigurer fetches marketplace configurations for a property set.
// *maestrano.Client satisfies it.
type AutoConfigurer interface {
	AutoConfigure(ctx context.Context, props maestrano.Properties) (map[string]*maestrano.Marketplace, error)
}

// configureMaestrano auto-configures against the developer platform when
// both developer platform variables are set, and skips it otherwise.
// A nil map with a nil error means auto-configuration was not activated.
func configureMaestrano(
	ctx context.Context,
	logger *zap.Logger,
	getenv func(string) string,
	ac AutoConfigurer,
) (map[string]*maestrano.Marketplace, error) {
	if !envconf.HasAll(getenv, devPlatformEnvironmentVariables...) {
		logger.Info("Marketplace autoConfigure not activated. Environment variable not found",
			zap.Strings("variables", devPlatformEnvironmentVariables))
		return nil, nil
	}

	props := maestrano.Properties{maestrano.PropHost: devPlatformHost}
	marketplaces, err := ac.AutoConfigure(ctx, props)
	if err != nil {
		return nil, fmt.Errorf("maestrano auto-configuration failed: %w", err)
	}
	logger.Info("Marketplaces Configurations Found", zap.Strings("marketplaces", maestrano.Names(marketplaces)))
	return marketplaces, nil
}
