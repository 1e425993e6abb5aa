package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"go.uber.org/zap"
)

func handleSetTriggeringPlatform(_ context.Context, service *Service, current *call) error {
	platform, err := current.resolvePlatform(service.resolver)
	if err != nil {
		return err
	}
	current.arguments.SetArgument(ArgumentTriggeringPlatform, platform.String())
	return nil
}

func handleSendPlatformMessage(ctx context.Context, service *Service, current *call) error {
	return sendPlatformMessage(ctx, service, current, false)
}

func handleSendPlatformMessageIfNotBot(ctx context.Context, service *Service, current *call) error {
	return sendPlatformMessage(ctx, service, current, true)
}

func sendPlatformMessage(ctx context.Context, service *Service, current *call, skipBot bool) error {
	message, err := current.requireString(ArgumentPlatformMessage)
	if err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		return points.ErrEmptyMessage
	}
	platform, err := current.resolvePlatform(service.resolver)
	if err != nil {
		return err
	}
	skipped := skipBot && service.bots.IsBot(platform, current.userName())
	if skipBot {
		current.arguments.SetArgument(ArgumentSkipped, skipped)
	}
	if skipped {
		service.logger.Debug("message suppressed for bot account",
			zap.String("platform", platform.String()),
			zap.String("user", current.userName()))
		return nil
	}
	return service.gateway.Send(ctx, platform, message, current.botPreference())
}

func handleSetIsBotAccount(_ context.Context, service *Service, current *call) error {
	isBot := false
	if platform, err := current.resolvePlatform(service.resolver); err == nil {
		isBot = service.bots.IsBot(platform, current.userName())
	}
	current.arguments.SetArgument(ArgumentIsBotAccount, isBot)
	return nil
}

func handleSendUserPoints(ctx context.Context, service *Service, current *call) error {
	ledger, profile, err := service.ledger(current.request.Ledger)
	if err != nil {
		return err
	}
	platform, err := current.resolvePlatform(service.resolver)
	if err != nil {
		return err
	}
	ref, err := current.userRef(platform)
	if err != nil {
		return err
	}
	balance, err := ledger.GetBalance(ctx, ref)
	if err != nil {
		return err
	}
	if !balance.Known() {
		return fmt.Errorf("%w: %s", points.ErrUnknownBalance, ref)
	}
	userName := current.userName()
	if userName == "" {
		return fmt.Errorf("%w: %s", ErrMissingArgument, points.AttributeUserName)
	}
	message := fmt.Sprintf("%s, you have %d %s!  Use %s to see how to spend them!", userName, balance.Int64(), profile.Unit, profile.HelpCommand())
	return service.gateway.Send(ctx, platform, message, current.botPreference())
}

func handleSendUserCommands(ctx context.Context, service *Service, current *call) error {
	platform, err := current.resolvePlatform(service.resolver)
	if err != nil {
		return err
	}
	clauses := make([]string, 0, len(service.profiles))
	for _, profile := range service.profiles {
		clauses = append(clauses, fmt.Sprintf("use %s to spend %s", profile.HelpCommand(), profile.Unit))
	}
	message := strings.Join(clauses, " and ") + "."
	message = strings.ToUpper(message[:1]) + message[1:]
	return service.gateway.Send(ctx, platform, message, current.botPreference())
}

func handleSetPoints(ctx context.Context, service *Service, current *call) error {
	amount, err := current.requireInt64(points.InputName(0))
	if err != nil {
		return err
	}
	if amount < 0 {
		return fmt.Errorf("%w: points to set must not be negative, got %d", ErrInvalidArgument, amount)
	}
	ledger, _, err := service.ledger(current.request.Ledger)
	if err != nil {
		return err
	}
	platform, err := current.resolvePlatform(service.resolver)
	if err != nil {
		return err
	}
	target, err := current.targetUsername(platform)
	if err != nil {
		return err
	}
	updated, err := ledger.SetBalanceByUsername(ctx, platform, target, amount, current.actor())
	if err != nil {
		return err
	}
	current.arguments.SetArgument(ArgumentPointsToSet, amount)
	current.arguments.SetArgument(ArgumentPointsTargetUsername, target)
	service.logger.Info("points set",
		zap.String("ledger", ledger.Name().String()),
		zap.String("platform", platform.String()),
		zap.String("target", target),
		zap.Int("users", len(updated)),
		zap.Int64("points", amount))
	return nil
}

func handleAddPoints(ctx context.Context, service *Service, current *call) error {
	amount, err := current.requireInt64(points.InputName(0))
	if err != nil {
		return err
	}
	ledger, _, err := service.ledger(current.request.Ledger)
	if err != nil {
		return err
	}
	platform, err := current.resolvePlatform(service.resolver)
	if err != nil {
		return err
	}
	target, err := current.targetUsername(platform)
	if err != nil {
		return err
	}
	results, err := ledger.AddBalanceByUsername(ctx, platform, target, amount, current.actor())
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: %s on %s", points.ErrUserNotFound, target, platform)
	}
	last := results[len(results)-1]
	current.arguments.SetArgument(ArgumentOldPoints, balanceArgument(last.Old))
	current.arguments.SetArgument(ArgumentNewPoints, last.New)
	current.arguments.SetArgument(ArgumentPointsToAdd, amount)
	current.arguments.SetArgument(ArgumentPointsTargetUsername, target)
	service.logger.Info("points added",
		zap.String("ledger", ledger.Name().String()),
		zap.String("platform", platform.String()),
		zap.String("target", target),
		zap.Int("users", len(results)),
		zap.Int64("points", amount))
	return nil
}

func handleResetAllPoints(ctx context.Context, service *Service, current *call) error {
	ledger, _, err := service.ledger(current.request.Ledger)
	if err != nil {
		return err
	}
	removed, err := ledger.ClearAll(ctx, current.actor(), service.resolver.Platforms().All()...)
	current.arguments.SetArgument(ArgumentPointsCleared, removed)
	if err != nil {
		return err
	}
	service.logger.Info("points cleared", zap.String("ledger", ledger.Name().String()), zap.Int64("removed", removed))
	return nil
}

func handleAddWatchPoints(ctx context.Context, service *Service, current *call) error {
	live, ok := current.event.Bool(points.AttributeIsLive)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingArgument, points.AttributeIsLive)
	}
	if !live {
		current.arguments.SetArgument(ArgumentViewersAwarded, 0)
		return nil
	}
	source, err := current.requireString(points.AttributeEventSource)
	if err != nil {
		return err
	}
	platform, err := service.resolver.Platforms().Parse(source)
	if err != nil {
		return err
	}
	users, ok := current.event.Users(points.AttributeUsers)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingArgument, points.AttributeUsers)
	}
	amount, err := current.int64Or(ArgumentPointsGivenPerTick, points.DefaultPointsPerTick)
	if err != nil {
		return err
	}
	ledger, _, err := service.ledger(current.request.Ledger)
	if err != nil {
		return err
	}
	viewerIDs := make([]string, 0, len(users))
	for _, user := range users {
		viewerIDs = append(viewerIDs, viewerID(user))
	}
	summary, err := service.awarder.AwardPresentViewers(ctx, ledger, points.WatchTick{
		Platform:  platform,
		Live:      true,
		ViewerIDs: viewerIDs,
		Amount:    amount,
	})
	current.arguments.SetArgument(ArgumentViewersAwarded, summary.Awarded)
	service.logger.Info("watch points awarded",
		zap.String("ledger", ledger.Name().String()),
		zap.String("platform", platform.String()),
		zap.Int64("points", amount),
		zap.Int("awarded", summary.Awarded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return err
}

func viewerID(user map[string]any) string {
	if user == nil {
		return ""
	}
	rendered, _ := points.FormatAttribute(user[viewerIDField])
	return rendered
}

func handleAddPointsToTriggeringUser(ctx context.Context, service *Service, current *call) error {
	amount, err := current.int64Or(ArgumentPointsToGive, defaultPointsToGive)
	if err != nil {
		return err
	}
	ledger, _, err := service.ledger(current.request.Ledger)
	if err != nil {
		return err
	}
	platform, err := current.resolvePlatform(service.resolver)
	if err != nil {
		return err
	}
	ref, err := current.userRef(platform)
	if err != nil {
		return err
	}
	result, err := ledger.AddBalance(ctx, ref, amount, current.actor())
	if err != nil {
		return err
	}
	current.arguments.SetArgument(ArgumentOldPoints, balanceArgument(result.Old))
	current.arguments.SetArgument(ArgumentNewPoints, result.New)
	current.arguments.SetArgument(ArgumentPointsToAdd, amount)
	return nil
}

func handleRedeem(ctx context.Context, service *Service, current *call) error {
	catalog, err := service.catalog(current)
	if err != nil {
		return err
	}
	ledger, _, err := service.ledger(current.request.Ledger)
	if err != nil {
		return err
	}
	platform, err := current.resolvePlatform(service.resolver)
	if err != nil {
		return err
	}
	ref, err := current.userRef(platform)
	if err != nil {
		return err
	}
	key, _ := current.event.Input(0)
	_, err = service.engine.TryRedeem(ctx, ledger, catalog, points.RedeemRequest{
		User:          ref,
		UserName:      current.userName(),
		Key:           key,
		Moderator:     current.event.BoolOr(points.AttributeIsModerator, false),
		UseBotAccount: current.botPreference(),
		Arguments:     current.arguments,
	})
	return err
}

func handleRandomRedeem(ctx context.Context, service *Service, current *call) error {
	catalog, err := service.catalog(current)
	if err != nil {
		return err
	}
	_, err = service.engine.RunRandomEnabled(ctx, catalog, current.arguments)
	return err
}

func (service *Service) catalog(current *call) (points.Catalog, error) {
	if strings.TrimSpace(current.request.Catalog) == "" {
		return points.Catalog{}, fmt.Errorf("%w: catalog", ErrMissingArgument)
	}
	return service.catalogs.Get(current.request.Catalog)
}
