// Package handlers runs the named per-event handlers the host invokes.
package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/MarkoPoloResearchLab/points/internal/config"
	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"go.uber.org/zap"
)

// Handler names accepted by Handle.
const (
	HandlerSetTriggeringPlatform       = "setTriggeringPlatform"
	HandlerSendPlatformMessage         = "sendPlatformMessage"
	HandlerSendPlatformMessageIfNotBot = "sendPlatformMessageIfNotBot"
	HandlerSetIsBotAccount             = "setIsBotAccount"
	HandlerSendUserPoints              = "sendUserPoints"
	HandlerSendUserCommands            = "sendUserCommands"
	HandlerSetPoints                   = "setPoints"
	HandlerAddPoints                   = "addPoints"
	HandlerResetAllPoints              = "resetAllPoints"
	HandlerAddWatchPoints              = "addWatchPoints"
	HandlerAddPointsToTriggeringUser   = "addPointsToTriggeringUser"
	HandlerRedeem                      = "redeem"
	HandlerRandomRedeem                = "randomRedeem"
)

// CatalogSource looks catalogs up by name.
type CatalogSource interface {
	Get(name string) (points.Catalog, error)
}

// Request is one host event addressed to a handler.
type Request struct {
	Ledger  string
	Catalog string
	Event   points.Event
}

// Dependencies are the collaborators every handler draws from.
type Dependencies struct {
	Platforms points.PlatformSet
	Ledgers   *points.Registry
	Profiles  []config.LedgerConfig
	Catalogs  CatalogSource
	Gateway   *points.Gateway
	Engine    *points.Engine
	Awarder   *points.Awarder
	Bots      points.BotAccounts
	ChatUsers points.ChatUserRecorder
	Logger    *zap.Logger
}

type handlerFunc func(ctx context.Context, service *Service, call *call) error

// Service dispatches host events to handlers.
type Service struct {
	resolver  points.PlatformResolver
	ledgers   *points.Registry
	profiles  []config.LedgerConfig
	catalogs  CatalogSource
	gateway   *points.Gateway
	engine    *points.Engine
	awarder   *points.Awarder
	bots      points.BotAccounts
	chatUsers points.ChatUserRecorder
	logger    *zap.Logger
	handlers  map[string]handlerFunc
}

// New validates dependencies and registers the built-in handlers.
func New(dependencies Dependencies) (*Service, error) {
	switch {
	case dependencies.Ledgers == nil:
		return nil, fmt.Errorf("%w: ledger registry is nil", ErrInvalidDependency)
	case dependencies.Gateway == nil:
		return nil, fmt.Errorf("%w: gateway is nil", ErrInvalidDependency)
	case dependencies.Engine == nil:
		return nil, fmt.Errorf("%w: redemption engine is nil", ErrInvalidDependency)
	case dependencies.Catalogs == nil:
		return nil, fmt.Errorf("%w: catalog source is nil", ErrInvalidDependency)
	case len(dependencies.Profiles) == 0:
		return nil, fmt.Errorf("%w: no ledger profiles", ErrInvalidDependency)
	}
	platforms := dependencies.Platforms
	if len(platforms.All()) == 0 {
		platforms = points.DefaultPlatforms()
	}
	service := &Service{
		resolver:  points.NewPlatformResolver(platforms),
		ledgers:   dependencies.Ledgers,
		profiles:  dependencies.Profiles,
		catalogs:  dependencies.Catalogs,
		gateway:   dependencies.Gateway,
		engine:    dependencies.Engine,
		awarder:   dependencies.Awarder,
		bots:      dependencies.Bots,
		chatUsers: dependencies.ChatUsers,
		logger:    dependencies.Logger,
	}
	if service.awarder == nil {
		service.awarder = points.NewAwarder(nil)
	}
	if service.bots == nil {
		service.bots = points.DefaultBotAccounts()
	}
	if service.logger == nil {
		service.logger = zap.NewNop()
	}
	service.handlers = map[string]handlerFunc{
		HandlerSetTriggeringPlatform:       handleSetTriggeringPlatform,
		HandlerSendPlatformMessage:         handleSendPlatformMessage,
		HandlerSendPlatformMessageIfNotBot: handleSendPlatformMessageIfNotBot,
		HandlerSetIsBotAccount:             handleSetIsBotAccount,
		HandlerSendUserPoints:              handleSendUserPoints,
		HandlerSendUserCommands:            handleSendUserCommands,
		HandlerSetPoints:                   handleSetPoints,
		HandlerAddPoints:                   handleAddPoints,
		HandlerResetAllPoints:              handleResetAllPoints,
		HandlerAddWatchPoints:              handleAddWatchPoints,
		HandlerAddPointsToTriggeringUser:   handleAddPointsToTriggeringUser,
		HandlerRedeem:                      handleRedeem,
		HandlerRandomRedeem:                handleRandomRedeem,
	}
	return service, nil
}

// Names returns the registered handler names in sorted order.
func (service *Service) Names() []string {
	names := make([]string, 0, len(service.handlers))
	for name := range service.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a registered handler.
func (service *Service) Has(name string) bool {
	_, ok := service.handlers[name]
	return ok
}

// Handle runs the named handler. The returned arguments are populated even when the handler fails
// part way, so the host sees whatever was set before the failure.
func (service *Service) Handle(ctx context.Context, name string, request Request) (*points.Arguments, error) {
	arguments := points.NewArguments()
	handler, ok := service.handlers[name]
	if !ok {
		return arguments, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
	current := &call{name: name, request: request, event: request.Event, arguments: arguments}
	service.rememberChatUser(ctx, current)
	if err := handler(ctx, service, current); err != nil {
		service.logger.Info("handler refused event",
			zap.String("handler", name),
			zap.String("ledger", request.Ledger),
			zap.String("code", ErrorCode(err)),
			zap.Error(err))
		return arguments, err
	}
	return arguments, nil
}

// rememberChatUser records the caller's login for later username lookups. Failures only log.
func (service *Service) rememberChatUser(ctx context.Context, current *call) {
	if service.chatUsers == nil {
		return
	}
	userID, hasID := current.event.String(points.AttributeUserID)
	login, hasLogin := current.event.String(points.AttributeUserName)
	if !hasLogin {
		login, hasLogin = current.event.String(points.AttributeUser)
	}
	if !hasID || !hasLogin || strings.TrimSpace(login) == "" {
		return
	}
	platform, err := service.resolver.Resolve(current.event)
	if err != nil {
		return
	}
	ref, err := points.NewUserRef(platform, userID)
	if err != nil {
		return
	}
	if err := service.chatUsers.RememberChatUser(ctx, ref, strings.TrimSpace(login)); err != nil {
		service.logger.Warn("remember chat user failed", zap.String("user", ref.String()), zap.Error(err))
	}
}

func (service *Service) ledger(name string) (*points.Ledger, config.LedgerConfig, error) {
	if strings.TrimSpace(name) == "" {
		name = service.profiles[0].Name
	}
	ledger, err := service.ledgers.Ledger(name)
	if err != nil {
		return nil, config.LedgerConfig{}, err
	}
	for _, profile := range service.profiles {
		if profile.Name == ledger.Name().String() {
			return ledger, profile, nil
		}
	}
	return ledger, config.LedgerConfig{Name: ledger.Name().String(), Unit: "points"}, nil
}
