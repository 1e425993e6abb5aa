package points

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
)

// LedgerOption configures a Ledger instance.
type LedgerOption func(*Ledger)

// WithOperationLogger wires a logger that receives callbacks for every mutation.
func WithOperationLogger(logger OperationLogger) LedgerOption {
	return func(ledger *Ledger) {
		ledger.logger = logger
	}
}

// WithIdentityResolver registers the username lookup used for one platform.
func WithIdentityResolver(platform Platform, resolver IdentityResolver) LedgerOption {
	return func(ledger *Ledger) {
		if resolver == nil {
			delete(ledger.resolvers, platform)
			return
		}
		ledger.resolvers[platform] = resolver
	}
}

// AddResult reports the balance before and after an add.
type AddResult struct {
	UserID UserID
	Old    Balance
	New    int64
}

// SpendResult reports the balance seen by a spend and whether it was charged.
type SpendResult struct {
	Balance Balance
	Charged bool
	New     int64
}

// UserBalance pairs a resolved user with their balance.
type UserBalance struct {
	UserID  UserID
	Balance Balance
}

// Ledger keeps balances for one named point economy.
type Ledger struct {
	name      LedgerName
	store     VariableStore
	logger    OperationLogger
	resolvers map[Platform]IdentityResolver
	locks     *keyedMutex
}

// NewLedger wires a Ledger over a VariableStore.
func NewLedger(name LedgerName, store VariableStore, options ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if name.String() == "" {
		return nil, fmt.Errorf("%w: ledger name is empty", ErrInvalidServiceConfig)
	}
	ledger := &Ledger{
		name:      name,
		store:     store,
		resolvers: map[Platform]IdentityResolver{},
		locks:     newKeyedMutex(),
	}
	for _, option := range options {
		if option != nil {
			option(ledger)
		}
	}
	return ledger, nil
}

// Name returns the ledger name.
func (ledger *Ledger) Name() LedgerName {
	return ledger.name
}

// GetBalance returns the stored balance; Known is false when the user was never awarded points.
func (ledger *Ledger) GetBalance(ctx context.Context, ref UserRef) (Balance, error) {
	value, found, err := ledger.store.GetUserVariable(ctx, ledger.key(ref))
	if err != nil {
		return Balance{}, WrapError(errorOperationLedger, errorSubjectBalance, errorCodeGet, err)
	}
	if !found {
		return UnknownBalance(), nil
	}
	return KnownBalance(value), nil
}

// SetBalance overwrites the balance. Negative values are allowed for administrative correction.
func (ledger *Ledger) SetBalance(ctx context.Context, ref UserRef, amount int64, actor string) error {
	unlock := ledger.locks.lock(ledger.key(ref))
	defer unlock()

	old, err := ledger.GetBalance(ctx, ref)
	if err == nil {
		err = ledger.write(ctx, ref, amount)
	}
	emitOperation(ctx, ledger.logger, OperationLog{
		Operation:  operationSet,
		Ledger:     ledger.name,
		Platform:   ref.Platform,
		UserID:     ref.UserID,
		Actor:      actor,
		Amount:     amount,
		OldBalance: old,
		NewBalance: KnownBalance(amount),
		Error:      err,
	})
	return err
}

// AddBalance adds delta to the balance, treating unknown as zero and flooring the result at zero.
func (ledger *Ledger) AddBalance(ctx context.Context, ref UserRef, delta int64, actor string) (AddResult, error) {
	unlock := ledger.locks.lock(ledger.key(ref))
	defer unlock()

	result := AddResult{UserID: ref.UserID}
	old, err := ledger.GetBalance(ctx, ref)
	if err == nil {
		result.Old = old
		result.New = addFloored(old.Int64(), delta)
		err = ledger.write(ctx, ref, result.New)
	}
	emitOperation(ctx, ledger.logger, OperationLog{
		Operation:  operationAdd,
		Ledger:     ledger.name,
		Platform:   ref.Platform,
		UserID:     ref.UserID,
		Actor:      actor,
		Amount:     delta,
		OldBalance: result.Old,
		NewBalance: KnownBalance(result.New),
		Error:      err,
	})
	if err != nil {
		return AddResult{}, err
	}
	return result, nil
}

// TrySpend deducts cost when the balance covers it. An insufficient balance is reported with
// ErrInsufficientFunds and the observed balance; nothing is written in that case.
func (ledger *Ledger) TrySpend(ctx context.Context, ref UserRef, cost int64, actor string) (SpendResult, error) {
	if cost < 0 {
		return SpendResult{}, fmt.Errorf("%w: %d", ErrInvalidCost, cost)
	}
	unlock := ledger.locks.lock(ledger.key(ref))
	defer unlock()

	balance, err := ledger.GetBalance(ctx, ref)
	if err != nil {
		return SpendResult{}, err
	}
	result := SpendResult{Balance: balance, New: balance.Int64()}
	if balance.Int64() < cost {
		return result, ErrInsufficientFunds
	}
	result.New = balance.Int64() - cost
	writeErr := ledger.write(ctx, ref, result.New)
	emitOperation(ctx, ledger.logger, OperationLog{
		Operation:  operationSpend,
		Ledger:     ledger.name,
		Platform:   ref.Platform,
		UserID:     ref.UserID,
		Actor:      actor,
		Amount:     cost,
		OldBalance: balance,
		NewBalance: KnownBalance(result.New),
		Error:      writeErr,
	})
	if writeErr != nil {
		return SpendResult{Balance: balance, New: balance.Int64()}, writeErr
	}
	result.Charged = true
	return result, nil
}

// ClearAll removes every stored balance of this ledger on the given platforms.
func (ledger *Ledger) ClearAll(ctx context.Context, actor string, platforms ...Platform) (int64, error) {
	var (
		total  int64
		errSet []error
	)
	for _, platform := range platforms {
		removed, err := ledger.store.ClearUserVariables(ctx, ledger.name, platform)
		if err != nil {
			err = WrapError(errorOperationLedger, errorSubjectBalance, errorCodeClear, err)
			errSet = append(errSet, err)
		}
		total += removed
		emitOperation(ctx, ledger.logger, OperationLog{
			Operation: operationClear,
			Ledger:    ledger.name,
			Platform:  platform,
			Actor:     actor,
			Amount:    removed,
			Error:     err,
		})
	}
	return total, errors.Join(errSet...)
}

// ListBalances returns every stored balance of this ledger on one platform.
func (ledger *Ledger) ListBalances(ctx context.Context, platform Platform) ([]UserVariable, error) {
	variables, err := ledger.store.ListUserVariables(ctx, ledger.name, platform)
	if err != nil {
		return nil, WrapError(errorOperationLedger, errorSubjectBalance, errorCodeGet, err)
	}
	return variables, nil
}

// ResolveUsername maps a username to user ids through the platform's resolver.
// Zero matches is reported as ErrUserNotFound.
func (ledger *Ledger) ResolveUsername(ctx context.Context, platform Platform, username string) ([]UserID, error) {
	normalized := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidUsername)
	}
	resolver, ok := ledger.resolvers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no username lookup for %s", ErrUnsupportedPlatform, platform)
	}
	userIDs, err := resolver.ResolveUserIDs(ctx, ledger.name, normalized)
	if err != nil {
		return nil, WrapError(errorOperationLedger, errorSubjectIdentity, errorCodeResolve, err)
	}
	unique := dedupeUserIDs(userIDs)
	if len(unique) == 0 {
		return nil, WrapError(errorOperationLedger, errorSubjectIdentity, errorCodeUnresolvedUser, fmt.Errorf("%w: %s on %s", ErrUserNotFound, normalized, platform))
	}
	return unique, nil
}

// GetBalanceByUsername returns the balance of every user matching the username.
func (ledger *Ledger) GetBalanceByUsername(ctx context.Context, platform Platform, username string) ([]UserBalance, error) {
	userIDs, err := ledger.ResolveUsername(ctx, platform, username)
	if err != nil {
		return nil, err
	}
	balances := make([]UserBalance, 0, len(userIDs))
	for _, userID := range userIDs {
		balance, err := ledger.GetBalance(ctx, UserRef{Platform: platform, UserID: userID})
		if err != nil {
			return nil, err
		}
		balances = append(balances, UserBalance{UserID: userID, Balance: balance})
	}
	return balances, nil
}

// SetBalanceByUsername sets the balance of every user matching the username.
func (ledger *Ledger) SetBalanceByUsername(ctx context.Context, platform Platform, username string, amount int64, actor string) ([]UserID, error) {
	userIDs, err := ledger.ResolveUsername(ctx, platform, username)
	if err != nil {
		return nil, err
	}
	updated := make([]UserID, 0, len(userIDs))
	for _, userID := range userIDs {
		if err := ledger.SetBalance(ctx, UserRef{Platform: platform, UserID: userID}, amount, actor); err != nil {
			return updated, err
		}
		updated = append(updated, userID)
	}
	return updated, nil
}

// AddBalanceByUsername adds delta to every user matching the username.
func (ledger *Ledger) AddBalanceByUsername(ctx context.Context, platform Platform, username string, delta int64, actor string) ([]AddResult, error) {
	userIDs, err := ledger.ResolveUsername(ctx, platform, username)
	if err != nil {
		return nil, err
	}
	results := make([]AddResult, 0, len(userIDs))
	for _, userID := range userIDs {
		result, err := ledger.AddBalance(ctx, UserRef{Platform: platform, UserID: userID}, delta, actor)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (ledger *Ledger) key(ref UserRef) VariableKey {
	return VariableKey{Ledger: ledger.name, Platform: ref.Platform, UserID: ref.UserID}
}

func (ledger *Ledger) write(ctx context.Context, ref UserRef, value int64) error {
	if err := ledger.store.SetUserVariable(ctx, ledger.key(ref), value); err != nil {
		return WrapError(errorOperationLedger, errorSubjectBalance, errorCodeSet, err)
	}
	return nil
}

func addFloored(current int64, delta int64) int64 {
	if delta > 0 && current > math.MaxInt64-delta {
		return math.MaxInt64
	}
	if delta < 0 && current < math.MinInt64-delta {
		return 0
	}
	sum := current + delta
	if sum < 0 {
		return 0
	}
	return sum
}

func dedupeUserIDs(userIDs []UserID) []UserID {
	seen := make(map[UserID]struct{}, len(userIDs))
	unique := make([]UserID, 0, len(userIDs))
	for _, userID := range userIDs {
		if userID.IsZero() {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		unique = append(unique, userID)
	}
	return unique
}

// keyedMutex serializes read-modify-write sequences per stored key.
type keyedMutex struct {
	mutex   sync.Mutex
	entries map[VariableKey]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mutex   sync.Mutex
	holders int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: map[VariableKey]*keyedMutexEntry{}}
}

func (locks *keyedMutex) lock(key VariableKey) func() {
	locks.mutex.Lock()
	entry, ok := locks.entries[key]
	if !ok {
		entry = &keyedMutexEntry{}
		locks.entries[key] = entry
	}
	entry.holders++
	locks.mutex.Unlock()

	entry.mutex.Lock()
	return func() {
		entry.mutex.Unlock()
		locks.mutex.Lock()
		entry.holders--
		if entry.holders == 0 {
			delete(locks.entries, key)
		}
		locks.mutex.Unlock()
	}
}
