// Package twitchirc sends Twitch chat messages straight over IRC.
package twitchirc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	twitch "github.com/gempir/go-twitch-irc/v4"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when a message is sent before the IRC session is up.
var ErrNotConnected = errors.New("twitch irc not connected")

// Client is the subset of the go-twitch-irc client the sender drives.
type Client interface {
	Say(channel string, text string)
	Join(channels ...string)
	OnConnect(callback func())
	Connect() error
	Disconnect() error
}

// Sender implements points.ChatSender for Twitch. Messages are sent as the account the IRC
// client logged in with, so the bot-account flag is not consulted.
type Sender struct {
	client  Client
	channel string
	logger  *zap.Logger

	mutex     sync.RWMutex
	connected bool
}

// NewSender returns a Sender that logs in with username and an oauth token.
func NewSender(username string, token string, channel string, logger *zap.Logger) *Sender {
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	return NewSenderWithClient(twitch.NewClient(username, token), channel, logger)
}

// NewSenderWithClient wraps an existing client.
func NewSenderWithClient(client Client, channel string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	sender := &Sender{
		client:  client,
		channel: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(channel), "#")),
		logger:  logger,
	}
	client.OnConnect(func() {
		sender.mutex.Lock()
		sender.connected = true
		sender.mutex.Unlock()
		sender.logger.Info("twitch irc connected", zap.String("channel", sender.channel))
	})
	client.Join(sender.channel)
	return sender
}

// Run keeps the IRC session open until ctx is cancelled.
func (sender *Sender) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- sender.client.Connect()
	}()
	select {
	case <-ctx.Done():
		_ = sender.client.Disconnect()
		<-errCh
		sender.markDisconnected()
		return nil
	case err := <-errCh:
		sender.markDisconnected()
		if errors.Is(err, twitch.ErrClientDisconnected) {
			return nil
		}
		return fmt.Errorf("twitch irc: %w", err)
	}
}

func (sender *Sender) SendChatMessage(_ context.Context, platform points.Platform, text string, _ bool) error {
	if platform != points.PlatformTwitch {
		return fmt.Errorf("%w: twitch irc cannot send to %s", points.ErrUnsupportedPlatform, platform)
	}
	sender.mutex.RLock()
	connected := sender.connected
	sender.mutex.RUnlock()
	if !connected {
		return ErrNotConnected
	}
	sender.client.Say(sender.channel, text)
	return nil
}

func (sender *Sender) markDisconnected() {
	sender.mutex.Lock()
	sender.connected = false
	sender.mutex.Unlock()
}
