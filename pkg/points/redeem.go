package points

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// RedeemActionArgument is the outbound argument naming the action a redemption triggered.
const RedeemActionArgument = "redeemActionName"

// DefaultRedeemerName is used in replies when the event carries no user name.
const DefaultRedeemerName = "Redeemer"

// Notifier delivers user-facing chat replies.
type Notifier interface {
	Send(ctx context.Context, platform Platform, text string, useBotAccount bool) error
	SendParts(ctx context.Context, platform Platform, useBotAccount bool, parts ...string) error
}

// EngineOption configures an Engine instance.
type EngineOption func(*Engine)

// WithRandomSource replaces the uniform pick over enabled entries; pick returns a value in [0, n).
func WithRandomSource(pick func(n int) int) EngineOption {
	return func(engine *Engine) {
		if pick != nil {
			engine.pick = pick
		}
	}
}

// WithActionTimeout bounds every call to the action registry.
func WithActionTimeout(timeout time.Duration) EngineOption {
	return func(engine *Engine) {
		engine.timeout = timeout
	}
}

// WithRedeemLogger wires a logger that receives one record per redemption attempt.
func WithRedeemLogger(logger OperationLogger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// RedeemRequest describes one user's attempt to spend points on a catalog.
type RedeemRequest struct {
	User          UserRef
	UserName      string
	Key           string
	Moderator     bool
	UseBotAccount bool
	Arguments     ArgumentSink
}

// Redemption reports a successful redemption.
type Redemption struct {
	Entry   CatalogEntry
	Balance Balance
	New     int64
	Free    bool
}

// Engine spends points on catalog entries and triggers the matching host actions.
type Engine struct {
	actions  ActionRegistry
	notifier Notifier
	pick     func(n int) int
	timeout  time.Duration
	logger   OperationLogger
}

// NewEngine wires an Engine over the host action registry and a chat notifier.
func NewEngine(actions ActionRegistry, notifier Notifier, options ...EngineOption) (*Engine, error) {
	if actions == nil {
		return nil, fmt.Errorf("%w: action registry is nil", ErrInvalidServiceConfig)
	}
	if notifier == nil {
		return nil, fmt.Errorf("%w: notifier is nil", ErrInvalidServiceConfig)
	}
	engine := &Engine{
		actions:  actions,
		notifier: notifier,
		pick:     rand.IntN,
	}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	return engine, nil
}

// TryRedeem charges the requesting user and runs the requested, or a random, enabled action.
// Every refusal is announced in chat and returned as a sentinel error.
func (engine *Engine) TryRedeem(ctx context.Context, ledger *Ledger, catalog Catalog, request RedeemRequest) (Redemption, error) {
	if ledger == nil {
		return Redemption{}, fmt.Errorf("%w: ledger is nil", ErrInvalidServiceConfig)
	}
	enabled, err := engine.enabledEntries(ctx, catalog)
	if err != nil {
		return Redemption{}, engine.finish(ctx, ledger, request, CatalogEntry{}, err)
	}
	if len(enabled) == 0 {
		err = engine.refuse(ctx, request, ErrNoEnabledActions, fmt.Sprintf("%s currently has no enabled actions!", catalog.Label()))
		return Redemption{}, engine.finish(ctx, ledger, request, CatalogEntry{}, err)
	}

	key := strings.TrimSpace(request.Key)
	random := key == ""
	if !random && strings.EqualFold(key, randomRedeemKey) {
		if _, listed := catalog.Lookup(key); !listed {
			random = true
		}
	}

	var (
		entry CatalogEntry
		cost  = catalog.FlatCost()
	)
	switch {
	case random && catalog.Weighted():
		err = engine.refuseParts(ctx, request, ErrRedeemKeyRequired, usageMessage(catalog, enabled)...)
		return Redemption{}, engine.finish(ctx, ledger, request, CatalogEntry{}, err)
	case !random:
		var found bool
		entry, found = catalog.Lookup(key)
		if !found {
			err = engine.refuseParts(ctx, request, ErrUnknownRedeemKey, usageMessage(catalog, enabled)...)
			return Redemption{}, engine.finish(ctx, ledger, request, CatalogEntry{}, err)
		}
		if !containsEntry(enabled, entry) {
			message := fmt.Sprintf("%s is not currently active. Try one of these instead: %s.", key, joinKeys(enabled))
			err = engine.refuse(ctx, request, ErrActionDisabled, message)
			return Redemption{}, engine.finish(ctx, ledger, request, entry, err)
		}
		cost = entry.Cost
	}

	redemption := Redemption{}
	spent, err := ledger.TrySpend(ctx, request.User, cost, request.actor())
	switch {
	case errors.Is(err, ErrInsufficientFunds) && request.Moderator:
		redemption = Redemption{Balance: spent.Balance, New: spent.New, Free: true}
	case errors.Is(err, ErrInsufficientFunds):
		message := fmt.Sprintf("%s, %s requires %d, but you only have %d.", request.displayName(), catalog.Label(), cost, spent.Balance.Int64())
		err = engine.refuse(ctx, request, ErrInsufficientFunds, message)
		return Redemption{}, engine.finish(ctx, ledger, request, entry, err)
	case err != nil:
		return Redemption{}, engine.finish(ctx, ledger, request, entry, err)
	default:
		redemption = Redemption{Balance: spent.Balance, New: spent.New}
	}

	if random {
		entry = enabled[engine.pick(len(enabled))]
	}
	redemption.Entry = entry
	request.arguments().SetArgument(RedeemActionArgument, entry.ActionName)
	if err := engine.run(ctx, entry.ActionName); err != nil {
		return Redemption{}, engine.finish(ctx, ledger, request, entry, err)
	}
	return redemption, engine.finish(ctx, ledger, request, entry, nil)
}

// RunRandomEnabled runs one enabled catalog action chosen uniformly at random, without charging anyone.
func (engine *Engine) RunRandomEnabled(ctx context.Context, catalog Catalog, arguments ArgumentSink) (CatalogEntry, error) {
	enabled, err := engine.enabledEntries(ctx, catalog)
	if err != nil {
		return CatalogEntry{}, err
	}
	if len(enabled) == 0 {
		return CatalogEntry{}, fmt.Errorf("%w: %s", ErrNoEnabledActions, catalog.Name())
	}
	entry := enabled[engine.pick(len(enabled))]
	if arguments == nil {
		arguments = discardArguments{}
	}
	arguments.SetArgument(RedeemActionArgument, entry.ActionName)
	if err := engine.run(ctx, entry.ActionName); err != nil {
		return CatalogEntry{}, err
	}
	return entry, nil
}

// enabledEntries resolves the catalog against the live action list; nothing is cached between calls.
func (engine *Engine) enabledEntries(ctx context.Context, catalog Catalog) ([]CatalogEntry, error) {
	callCtx, cancel := engine.callContext(ctx)
	defer cancel()
	actions, err := engine.actions.ListActions(callCtx)
	if err != nil {
		return nil, WrapError(errorOperationRedeem, errorSubjectAction, errorCodeList, err)
	}
	enabledByName := make(map[string]bool, len(actions))
	for _, action := range actions {
		enabledByName[action.Name] = enabledByName[action.Name] || action.Enabled
	}
	enabled := make([]CatalogEntry, 0, len(actions))
	for _, entry := range catalog.Entries() {
		if enabledByName[entry.ActionName] {
			enabled = append(enabled, entry)
		}
	}
	return enabled, nil
}

func (engine *Engine) run(ctx context.Context, actionName string) error {
	callCtx, cancel := engine.callContext(ctx)
	defer cancel()
	if err := engine.actions.RunAction(callCtx, actionName, false); err != nil {
		return WrapError(errorOperationRedeem, errorSubjectAction, errorCodeRun, fmt.Errorf("%w: %s: %w", ErrActionFailed, actionName, err))
	}
	return nil
}

func (engine *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if engine.timeout > 0 {
		return context.WithTimeout(ctx, engine.timeout)
	}
	return ctx, func() {}
}

func (engine *Engine) refuse(ctx context.Context, request RedeemRequest, reason error, message string) error {
	return engine.refuseParts(ctx, request, reason, message)
}

func (engine *Engine) refuseParts(ctx context.Context, request RedeemRequest, reason error, parts ...string) error {
	if err := engine.notifier.SendParts(ctx, request.User.Platform, request.UseBotAccount, parts...); err != nil {
		return errors.Join(reason, err)
	}
	return reason
}

func (engine *Engine) finish(ctx context.Context, ledger *Ledger, request RedeemRequest, entry CatalogEntry, err error) error {
	emitOperation(ctx, engine.logger, OperationLog{
		Operation: operationRedeem,
		Ledger:    ledger.Name(),
		Platform:  request.User.Platform,
		UserID:    request.User.UserID,
		Actor:     request.actor(),
		Amount:    entry.Cost,
		Action:    entry.ActionName,
		Error:     err,
	})
	return err
}

func (request RedeemRequest) displayName() string {
	name := strings.TrimSpace(request.UserName)
	if name == "" {
		return DefaultRedeemerName
	}
	return name
}

func (request RedeemRequest) actor() string {
	if name := strings.TrimSpace(request.UserName); name != "" {
		return name
	}
	return request.User.String()
}

func (request RedeemRequest) arguments() ArgumentSink {
	if request.Arguments == nil {
		return discardArguments{}
	}
	return request.Arguments
}

func usageMessage(catalog Catalog, enabled []CatalogEntry) []string {
	if catalog.Weighted() {
		priced := make([]string, 0, len(enabled))
		for _, entry := range enabled {
			priced = append(priced, fmt.Sprintf("%s (%d)", entry.Key, entry.Cost))
		}
		return []string{
			fmt.Sprintf("%s needs one of its redeems to be named.", catalog.Label()),
			fmt.Sprintf("You can specify one of these: %s.", strings.Join(priced, keyListSeparator)),
		}
	}
	return []string{
		fmt.Sprintf("%s costs %d points and when used by itself picks a random redeem.", catalog.Label(), catalog.FlatCost()),
		fmt.Sprintf("You can also specify one of these: %s.", joinKeys(enabled)),
	}
}

func joinKeys(entries []CatalogEntry) string {
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.Key)
	}
	return strings.Join(keys, keyListSeparator)
}

func containsEntry(entries []CatalogEntry, target CatalogEntry) bool {
	for _, entry := range entries {
		if strings.EqualFold(entry.Key, target.Key) {
			return true
		}
	}
	return false
}
