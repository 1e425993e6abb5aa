// Package chat routes outbound chat messages to the transport that serves each platform.
package chat

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
)

// Router implements points.ChatSender by choosing a sender per platform.
type Router struct {
	fallback points.ChatSender
	routes   map[points.Platform]points.ChatSender
}

// NewRouter sends every platform through fallback unless a route overrides it.
func NewRouter(fallback points.ChatSender) *Router {
	return &Router{fallback: fallback, routes: map[points.Platform]points.ChatSender{}}
}

// Route sends messages for platform through sender.
func (router *Router) Route(platform points.Platform, sender points.ChatSender) *Router {
	if sender != nil {
		router.routes[platform] = sender
	}
	return router
}

func (router *Router) SendChatMessage(ctx context.Context, platform points.Platform, text string, useBotAccount bool) error {
	if sender, ok := router.routes[platform]; ok {
		return sender.SendChatMessage(ctx, platform, text, useBotAccount)
	}
	if router.fallback == nil {
		return fmt.Errorf("%w: no chat transport for %s", points.ErrUnsupportedPlatform, platform)
	}
	return router.fallback.SendChatMessage(ctx, platform, text, useBotAccount)
}
