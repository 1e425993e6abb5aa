package points

import (
	"context"
	"fmt"
	"strings"
)

// UserID identifies a chat user within one platform.
type UserID struct {
	value string
}

// LedgerName distinguishes independent point economies.
type LedgerName struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// NewLedgerName validates and normalizes a ledger name.
func NewLedgerName(raw string) (LedgerName, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return LedgerName{}, fmt.Errorf("%w: empty value", ErrInvalidLedgerName)
	}
	return LedgerName{value: trimmed}, nil
}

// String returns the normalized name.
func (name LedgerName) String() string {
	return name.value
}

// UserRef addresses one user on one platform.
type UserRef struct {
	Platform Platform
	UserID   UserID
}

// NewUserRef validates both halves of a user reference.
func NewUserRef(platform Platform, rawUserID string) (UserRef, error) {
	if platform == "" {
		return UserRef{}, fmt.Errorf("%w: empty platform", ErrUnknownPlatform)
	}
	userID, err := NewUserID(rawUserID)
	if err != nil {
		return UserRef{}, err
	}
	return UserRef{Platform: platform, UserID: userID}, nil
}

// String renders the reference as platform/user.
func (ref UserRef) String() string {
	return ref.Platform.String() + "/" + ref.UserID.String()
}

// Balance is a stored point value; an unknown balance was never assigned.
type Balance struct {
	value int64
	known bool
}

// KnownBalance wraps a stored value.
func KnownBalance(value int64) Balance {
	return Balance{value: value, known: true}
}

// UnknownBalance represents a user who was never awarded points.
func UnknownBalance() Balance {
	return Balance{}
}

// Known reports whether a value has ever been stored.
func (balance Balance) Known() bool {
	return balance.known
}

// Int64 returns the stored value, treating unknown as zero.
func (balance Balance) Int64() int64 {
	return balance.value
}

// String renders the balance, "unknown" when never assigned.
func (balance Balance) String() string {
	if !balance.known {
		return "unknown"
	}
	return fmt.Sprintf("%d", balance.value)
}

// VariableKey addresses one stored points value.
type VariableKey struct {
	Ledger   LedgerName
	Platform Platform
	UserID   UserID
}

// UserVariable is one stored points value together with the user's last known login.
type UserVariable struct {
	Key       VariableKey
	UserLogin string
	Value     int64
}

// VariableStore is the per-platform persistence boundary for user variables.
type VariableStore interface {
	GetUserVariable(ctx context.Context, key VariableKey) (int64, bool, error)
	SetUserVariable(ctx context.Context, key VariableKey, value int64) error
	ClearUserVariables(ctx context.Context, ledger LedgerName, platform Platform) (int64, error)
	ListUserVariables(ctx context.Context, ledger LedgerName, platform Platform) ([]UserVariable, error)
}

// ChatUserRecorder remembers the login a user was last seen with, for later username lookups.
type ChatUserRecorder interface {
	RememberChatUser(ctx context.Context, ref UserRef, login string) error
}

// IdentityResolver maps a username to the user ids it may denote on one platform.
type IdentityResolver interface {
	ResolveUserIDs(ctx context.Context, ledger LedgerName, username string) ([]UserID, error)
}

// IdentityResolverFunc adapts a function to IdentityResolver.
type IdentityResolverFunc func(ctx context.Context, ledger LedgerName, username string) ([]UserID, error)

// ResolveUserIDs calls the wrapped function.
func (resolve IdentityResolverFunc) ResolveUserIDs(ctx context.Context, ledger LedgerName, username string) ([]UserID, error) {
	return resolve(ctx, ledger, username)
}

// Action describes a host automation.
type Action struct {
	Name    string
	Enabled bool
}

// ActionRegistry enumerates and triggers host automations.
type ActionRegistry interface {
	ListActions(ctx context.Context) ([]Action, error)
	RunAction(ctx context.Context, name string, waitForCompletion bool) error
}

// ChatSender delivers one chat message on one platform.
type ChatSender interface {
	SendChatMessage(ctx context.Context, platform Platform, text string, useBotAccount bool) error
}

// ChatSenderFunc adapts a function to ChatSender.
type ChatSenderFunc func(ctx context.Context, platform Platform, text string, useBotAccount bool) error

// SendChatMessage calls the wrapped function.
func (send ChatSenderFunc) SendChatMessage(ctx context.Context, platform Platform, text string, useBotAccount bool) error {
	return send(ctx, platform, text, useBotAccount)
}
