// Package app assembles stores and ledgers from configuration for the points commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MarkoPoloResearchLab/points/internal/config"
	"github.com/MarkoPoloResearchLab/points/internal/database"
	"github.com/MarkoPoloResearchLab/points/internal/identity"
	"github.com/MarkoPoloResearchLab/points/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/points/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is what ledgers and username lookups need from persistence.
type Store interface {
	points.VariableStore
	points.ChatUserRecorder
}

// Stores holds the opened persistence layer.
type Stores struct {
	Variables Store
	Audit     *gormstore.AuditLogger
	Driver    string
	closers   []func() error
}

// OpenStores opens the configured database. GORM always owns the schema and the audit table;
// with the pgx driver balances and chat users go through a pgx pool instead.
func OpenStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	target, err := database.ResolveDriver(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db, closeDB, err := database.OpenGORM(ctx, target)
	if err != nil {
		return nil, err
	}
	stores := &Stores{Driver: cfg.StoreDriver, closers: []func() error{closeDB}}

	gormStore := gormstore.New(db)
	if err := gormStore.AutoMigrate(ctx); err != nil {
		_ = stores.Close()
		return nil, err
	}
	stores.Audit = newAuditLogger(db, logger)
	stores.Variables = gormStore

	if cfg.StoreDriver == config.StoreDriverPGX {
		pool, err := database.OpenPool(ctx, target)
		if err != nil {
			_ = stores.Close()
			return nil, err
		}
		stores.closers = append(stores.closers, func() error {
			pool.Close()
			return nil
		})
		stores.Variables = pgstore.New(pool)
	}
	logger.Info("store opened", zap.String("database", target.Driver), zap.String("store_driver", stores.Driver))
	return stores, nil
}

func newAuditLogger(db *gorm.DB, logger *zap.Logger) *gormstore.AuditLogger {
	return gormstore.NewAuditLogger(db, func(err error) {
		logger.Warn("audit write failed", zap.Error(err))
	})
}

// Close releases every connection, most recently opened first.
func (stores *Stores) Close() error {
	var errSet []error
	for index := len(stores.closers) - 1; index >= 0; index-- {
		if err := stores.closers[index](); err != nil {
			errSet = append(errSet, err)
		}
	}
	stores.closers = nil
	return errors.Join(errSet...)
}

// IdentityResolvers picks a username resolver per platform. Twitch asks Helix when an app token
// is configured and otherwise matches remembered logins. YouTube matches remembered logins and
// falls back to the Data API handle lookup when an API key is configured. Trovo has no resolver.
func IdentityResolvers(ctx context.Context, cfg config.Config, store identity.VariableLister, httpClient *http.Client) (map[points.Platform]points.IdentityResolver, error) {
	resolvers := map[points.Platform]points.IdentityResolver{
		points.PlatformTwitch: identity.NewKnownLoginResolver(store, points.PlatformTwitch),
	}
	if cfg.TwitchClientID != "" {
		client, err := identity.NewHelixClient(cfg.TwitchClientID, cfg.TwitchAppToken, httpClient)
		if err != nil {
			return nil, err
		}
		resolvers[points.PlatformTwitch] = identity.NewTwitchResolver(client)
	}

	var channels identity.ChannelLookup
	if cfg.YouTubeAPIKey != "" {
		youTube, err := identity.NewYouTubeChannels(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			return nil, err
		}
		channels = youTube
	}
	resolvers[points.PlatformYouTube] = identity.NewYouTubeResolver(store, channels)
	return resolvers, nil
}

// BuildLedgers creates one ledger per configured profile, all sharing the store and resolvers.
func BuildLedgers(cfg config.Config, store points.VariableStore, resolvers map[points.Platform]points.IdentityResolver, operationLogger points.OperationLogger) (*points.Registry, error) {
	registry, err := points.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, profile := range cfg.Ledgers {
		name, err := points.NewLedgerName(profile.Name)
		if err != nil {
			return nil, fmt.Errorf("ledger %q: %w", profile.Name, err)
		}
		options := []points.LedgerOption{points.WithOperationLogger(operationLogger)}
		for platform, resolver := range resolvers {
			options = append(options, points.WithIdentityResolver(platform, resolver))
		}
		ledger, err := points.NewLedger(name, store, options...)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(ledger); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
