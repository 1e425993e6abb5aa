package points

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"strings"
	"time"
)

// SplitMessage yields text in chunks of at most maxLength runes. Each chunk ends after the first
// space, period or comma found within the last twenty runes of the window, or is cut hard at
// maxLength when no such delimiter exists. Concatenating the chunks reproduces text.
func SplitMessage(text string, maxLength int) iter.Seq[string] {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	return func(yield func(string) bool) {
		remaining := []rune(text)
		for len(remaining) > maxLength {
			cut := chunkBoundary(remaining, maxLength)
			if !yield(string(remaining[:cut])) {
				return
			}
			remaining = remaining[cut:]
		}
		if len(remaining) > 0 {
			yield(string(remaining))
		}
	}
}

func chunkBoundary(runes []rune, maxLength int) int {
	searchStart := max(1, maxLength-splitSearchBackoff)
	for index := searchStart; index < len(runes) && index < maxLength; index++ {
		switch runes[index] {
		case ' ', '.', ',':
			return index + 1
		}
	}
	return maxLength
}

// GatewayOption configures a Gateway instance.
type GatewayOption func(*Gateway)

// WithMaxMessageLength overrides the chunk size.
func WithMaxMessageLength(maxLength int) GatewayOption {
	return func(gateway *Gateway) {
		if maxLength > 0 {
			gateway.maxLength = maxLength
		}
	}
}

// WithMessagePause sets the window the inter-chunk pause is drawn from.
func WithMessagePause(minPause time.Duration, maxPause time.Duration) GatewayOption {
	return func(gateway *Gateway) {
		if minPause < 0 || maxPause < minPause {
			return
		}
		gateway.minPause = minPause
		gateway.maxPause = maxPause
	}
}

// WithPauseSource replaces the random pause picker.
func WithPauseSource(pick func(minPause time.Duration, maxPause time.Duration) time.Duration) GatewayOption {
	return func(gateway *Gateway) {
		if pick != nil {
			gateway.pickPause = pick
		}
	}
}

// WithSleeper replaces the context-aware sleep used between chunks.
func WithSleeper(sleep func(ctx context.Context, duration time.Duration) error) GatewayOption {
	return func(gateway *Gateway) {
		if sleep != nil {
			gateway.sleep = sleep
		}
	}
}

// WithSendTimeout bounds every outbound chat call.
func WithSendTimeout(timeout time.Duration) GatewayOption {
	return func(gateway *Gateway) {
		gateway.timeout = timeout
	}
}

// WithGatewayPlatforms sets the platforms the gateway accepts.
func WithGatewayPlatforms(platforms PlatformSet) GatewayOption {
	return func(gateway *Gateway) {
		gateway.platforms = platforms
	}
}

// Gateway paces and splits outbound chat messages.
type Gateway struct {
	sender    ChatSender
	platforms PlatformSet
	maxLength int
	minPause  time.Duration
	maxPause  time.Duration
	pickPause func(minPause time.Duration, maxPause time.Duration) time.Duration
	sleep     func(ctx context.Context, duration time.Duration) error
	timeout   time.Duration
}

// NewGateway wires a Gateway over a ChatSender.
func NewGateway(sender ChatSender, options ...GatewayOption) (*Gateway, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: chat sender is nil", ErrInvalidServiceConfig)
	}
	gateway := &Gateway{
		sender:    sender,
		platforms: DefaultPlatforms(),
		maxLength: DefaultMaxMessageLength,
		minPause:  DefaultMinMessagePause,
		maxPause:  DefaultMaxMessagePause,
		pickPause: uniformPause,
		sleep:     sleepContext,
	}
	for _, option := range options {
		if option != nil {
			option(gateway)
		}
	}
	return gateway, nil
}

// Send delivers one logical message, split and paced as needed.
func (gateway *Gateway) Send(ctx context.Context, platform Platform, text string, useBotAccount bool) error {
	return gateway.SendParts(ctx, platform, useBotAccount, text)
}

// SendParts delivers several logical messages in order with the same pacing between every chunk.
func (gateway *Gateway) SendParts(ctx context.Context, platform Platform, useBotAccount bool, parts ...string) error {
	if !gateway.platforms.Contains(platform) {
		return fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
	if len(parts) == 0 {
		return ErrEmptyMessage
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return ErrEmptyMessage
		}
	}
	first := true
	for _, part := range parts {
		for chunk := range SplitMessage(part, gateway.maxLength) {
			if !first {
				if err := gateway.sleep(ctx, gateway.pickPause(gateway.minPause, gateway.maxPause)); err != nil {
					return WrapError(errorOperationGateway, errorSubjectMessage, errorCodeSend, err)
				}
			}
			first = false
			if err := gateway.deliver(ctx, platform, chunk, useBotAccount); err != nil {
				return err
			}
		}
	}
	return nil
}

func (gateway *Gateway) deliver(ctx context.Context, platform Platform, chunk string, useBotAccount bool) error {
	callCtx := ctx
	if gateway.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, gateway.timeout)
		defer cancel()
	}
	if err := gateway.sender.SendChatMessage(callCtx, platform, chunk, useBotAccount); err != nil {
		return WrapError(errorOperationGateway, errorSubjectMessage, errorCodeSend, err)
	}
	return nil
}

func uniformPause(minPause time.Duration, maxPause time.Duration) time.Duration {
	if maxPause <= minPause {
		return minPause
	}
	return minPause + rand.N(maxPause-minPause+1)
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BotAccounts maps each platform to the display name the bot posts under.
type BotAccounts map[Platform]string

// DefaultBotAccounts returns the bot names used by the channel this module was built for.
func DefaultBotAccounts() BotAccounts {
	return BotAccounts{
		PlatformTwitch:  "teamventuregaming",
		PlatformYouTube: "Team Venture Bot",
	}
}

// IsBot reports whether userName is the bot's own account on platform.
func (accounts BotAccounts) IsBot(platform Platform, userName string) bool {
	botName, ok := accounts[platform]
	if !ok || botName == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(userName), botName)
}
