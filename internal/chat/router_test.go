package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
)

type recordingSender struct {
	name  string
	calls *[]string
}

func (sender recordingSender) SendChatMessage(_ context.Context, platform points.Platform, text string, _ bool) error {
	*sender.calls = append(*sender.calls, sender.name+":"+platform.String()+":"+text)
	return nil
}

func TestRouterPrefersPlatformRoute(test *testing.T) {
	test.Parallel()
	var calls []string
	router := NewRouter(recordingSender{name: "host", calls: &calls}).
		Route(points.PlatformTwitch, recordingSender{name: "irc", calls: &calls})

	ctx := context.Background()
	if err := router.SendChatMessage(ctx, points.PlatformTwitch, "a", true); err != nil {
		test.Fatalf("twitch: %v", err)
	}
	if err := router.SendChatMessage(ctx, points.PlatformYouTube, "b", true); err != nil {
		test.Fatalf("youtube: %v", err)
	}
	if len(calls) != 2 || calls[0] != "irc:twitch:a" || calls[1] != "host:youtube:b" {
		test.Fatalf("unexpected routing %v", calls)
	}
}

func TestRouterWithoutFallback(test *testing.T) {
	test.Parallel()
	router := NewRouter(nil)
	err := router.SendChatMessage(context.Background(), points.PlatformTrovo, "hi", false)
	if !errors.Is(err, points.ErrUnsupportedPlatform) {
		test.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
}
