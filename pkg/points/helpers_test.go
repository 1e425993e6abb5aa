package points

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

const errorMismatchMessage = "expected error %v, got %v"

// passthroughIdentity treats the username as the user id.
var passthroughIdentity = IdentityResolverFunc(func(_ context.Context, _ LedgerName, username string) ([]UserID, error) {
	userID, err := NewUserID(username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	return []UserID{userID}, nil
})

type memoryStore struct {
	mutex     sync.Mutex
	values    map[VariableKey]int64
	logins    map[VariableKey]string
	failGet   error
	failSet   error
	failClear error
	setCalls  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[VariableKey]int64{}, logins: map[VariableKey]string{}}
}

func (store *memoryStore) GetUserVariable(_ context.Context, key VariableKey) (int64, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.failGet != nil {
		return 0, false, store.failGet
	}
	value, ok := store.values[key]
	return value, ok, nil
}

func (store *memoryStore) SetUserVariable(_ context.Context, key VariableKey, value int64) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.setCalls++
	if store.failSet != nil {
		return store.failSet
	}
	store.values[key] = value
	return nil
}

func (store *memoryStore) ClearUserVariables(_ context.Context, ledger LedgerName, platform Platform) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.failClear != nil {
		return 0, store.failClear
	}
	var removed int64
	for key := range store.values {
		if key.Ledger == ledger && key.Platform == platform {
			delete(store.values, key)
			removed++
		}
	}
	return removed, nil
}

func (store *memoryStore) ListUserVariables(_ context.Context, ledger LedgerName, platform Platform) ([]UserVariable, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	variables := []UserVariable{}
	for key, value := range store.values {
		if key.Ledger == ledger && key.Platform == platform {
			variables = append(variables, UserVariable{Key: key, UserLogin: store.logins[key], Value: value})
		}
	}
	return variables, nil
}

func (store *memoryStore) put(test *testing.T, ledger LedgerName, platform Platform, userID string, value int64) {
	test.Helper()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.values[VariableKey{Ledger: ledger, Platform: platform, UserID: mustUserID(test, userID)}] = value
}

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) snapshot() []OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	return append([]OperationLog(nil), logger.entries...)
}

type sentMessage struct {
	platform Platform
	text     string
	bot      bool
}

type recordingSender struct {
	mutex    sync.Mutex
	messages []sentMessage
	fail     error
}

func (sender *recordingSender) SendChatMessage(_ context.Context, platform Platform, text string, useBotAccount bool) error {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	if sender.fail != nil {
		return sender.fail
	}
	sender.messages = append(sender.messages, sentMessage{platform: platform, text: text, bot: useBotAccount})
	return nil
}

func (sender *recordingSender) texts() []string {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	texts := make([]string, 0, len(sender.messages))
	for _, message := range sender.messages {
		texts = append(texts, message.text)
	}
	return texts
}

type stubActions struct {
	mutex   sync.Mutex
	actions []Action
	listErr error
	runErr  error
	runs    []string
	waits   []bool
}

func (registry *stubActions) ListActions(context.Context) ([]Action, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.listErr != nil {
		return nil, registry.listErr
	}
	return append([]Action(nil), registry.actions...), nil
}

func (registry *stubActions) RunAction(_ context.Context, name string, waitForCompletion bool) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	registry.runs = append(registry.runs, name)
	registry.waits = append(registry.waits, waitForCompletion)
	return registry.runErr
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustLedgerName(test *testing.T, raw string) LedgerName {
	test.Helper()
	name, err := NewLedgerName(raw)
	if err != nil {
		test.Fatalf("ledger name: %v", err)
	}
	return name
}

func mustUserRef(test *testing.T, platform Platform, raw string) UserRef {
	test.Helper()
	ref, err := NewUserRef(platform, raw)
	if err != nil {
		test.Fatalf("user ref: %v", err)
	}
	return ref
}

func mustLedger(test *testing.T, store VariableStore, options ...LedgerOption) *Ledger {
	test.Helper()
	ledger, err := NewLedger(mustLedgerName(test, "vp"), store, options...)
	if err != nil {
		test.Fatalf("ledger: %v", err)
	}
	return ledger
}

func mustGateway(test *testing.T, sender ChatSender, options ...GatewayOption) *Gateway {
	test.Helper()
	base := []GatewayOption{WithSleeper(func(context.Context, time.Duration) error { return nil })}
	gateway, err := NewGateway(sender, append(base, options...)...)
	if err != nil {
		test.Fatalf("gateway: %v", err)
	}
	return gateway
}

func mustFlatCatalog(test *testing.T, cost int64, actions map[string]string) Catalog {
	test.Helper()
	catalog, err := NewFlatCatalog("smash", "Smash", cost, actions)
	if err != nil {
		test.Fatalf("catalog: %v", err)
	}
	return catalog
}

func mustBalance(test *testing.T, ledger *Ledger, ref UserRef) Balance {
	test.Helper()
	balance, err := ledger.GetBalance(context.Background(), ref)
	if err != nil {
		test.Fatalf("get balance: %v", err)
	}
	return balance
}

var errStoreDown = errors.New("store down")
