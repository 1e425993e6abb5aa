// Package identity resolves chat usernames to platform user ids.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/nicklaw5/helix/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	errorOperationIdentity = "identity"
	errorSubjectTwitch     = "twitch"
	errorSubjectYouTube    = "youtube"
	errorSubjectKnown      = "known"
	errorCodeLookup        = "lookup"
	youTubeChannelPart     = "id"
)

// VariableLister lists stored variables with the logins their users were last seen with.
type VariableLister interface {
	ListUserVariables(ctx context.Context, ledger points.LedgerName, platform points.Platform) ([]points.UserVariable, error)
}

// KnownLoginResolver matches a username against the logins recorded for a ledger's users,
// ignoring case. Several ids can share a display name.
type KnownLoginResolver struct {
	store    VariableLister
	platform points.Platform
}

// NewKnownLoginResolver resolves names on platform from logins the store remembers.
func NewKnownLoginResolver(store VariableLister, platform points.Platform) KnownLoginResolver {
	return KnownLoginResolver{store: store, platform: platform}
}

func (resolver KnownLoginResolver) ResolveUserIDs(ctx context.Context, ledger points.LedgerName, username string) ([]points.UserID, error) {
	variables, err := resolver.store.ListUserVariables(ctx, ledger, resolver.platform)
	if err != nil {
		return nil, points.WrapError(errorOperationIdentity, errorSubjectKnown, errorCodeLookup, err)
	}
	userIDs := []points.UserID{}
	for _, variable := range variables {
		if variable.UserLogin != "" && strings.EqualFold(variable.UserLogin, username) {
			userIDs = append(userIDs, variable.Key.UserID)
		}
	}
	return userIDs, nil
}

// UsersGetter is the part of the Helix client used to look up logins.
type UsersGetter interface {
	GetUsers(params *helix.UsersParams) (*helix.UsersResponse, error)
}

// TwitchResolver asks the Helix API which user id owns a login.
type TwitchResolver struct {
	users UsersGetter
}

// NewTwitchResolver wraps a Helix client.
func NewTwitchResolver(users UsersGetter) TwitchResolver {
	return TwitchResolver{users: users}
}

// NewHelixClient builds an app-token Helix client.
func NewHelixClient(clientID string, appAccessToken string, httpClient *http.Client) (*helix.Client, error) {
	options := &helix.Options{
		ClientID:       clientID,
		AppAccessToken: appAccessToken,
	}
	if httpClient != nil {
		options.HTTPClient = httpClient
	}
	client, err := helix.NewClient(options)
	if err != nil {
		return nil, fmt.Errorf("create helix client: %w", err)
	}
	return client, nil
}

func (resolver TwitchResolver) ResolveUserIDs(_ context.Context, _ points.LedgerName, username string) ([]points.UserID, error) {
	response, err := resolver.users.GetUsers(&helix.UsersParams{Logins: []string{strings.ToLower(username)}})
	if err != nil {
		return nil, points.WrapError(errorOperationIdentity, errorSubjectTwitch, errorCodeLookup, err)
	}
	if response == nil {
		return []points.UserID{}, nil
	}
	if response.StatusCode >= http.StatusBadRequest {
		return nil, points.WrapError(errorOperationIdentity, errorSubjectTwitch, errorCodeLookup,
			fmt.Errorf("helix status %d: %s", response.StatusCode, response.ErrorMessage))
	}
	userIDs := make([]points.UserID, 0, len(response.Data.Users))
	for _, user := range response.Data.Users {
		userID, err := points.NewUserID(user.ID)
		if err != nil {
			continue
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, nil
}

// ChannelLookup finds the channel ids registered for a YouTube handle.
type ChannelLookup interface {
	LookupHandle(ctx context.Context, handle string) ([]string, error)
}

// YouTubeChannels looks handles up with the YouTube Data API.
type YouTubeChannels struct {
	service *youtube.Service
}

// NewYouTubeChannels builds a Data API client authenticated with an API key.
func NewYouTubeChannels(ctx context.Context, apiKey string, extra ...option.ClientOption) (YouTubeChannels, error) {
	options := append([]option.ClientOption{option.WithAPIKey(apiKey)}, extra...)
	service, err := youtube.NewService(ctx, options...)
	if err != nil {
		return YouTubeChannels{}, fmt.Errorf("create youtube service: %w", err)
	}
	return YouTubeChannels{service: service}, nil
}

func (channels YouTubeChannels) LookupHandle(ctx context.Context, handle string) ([]string, error) {
	response, err := channels.service.Channels.List([]string{youTubeChannelPart}).ForHandle(handle).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(response.Items))
	for _, item := range response.Items {
		ids = append(ids, item.Id)
	}
	return ids, nil
}

// YouTubeResolver matches remembered chat logins first and falls back to a handle lookup,
// since YouTube chat commands name users by display name rather than id.
type YouTubeResolver struct {
	known    KnownLoginResolver
	channels ChannelLookup
}

// NewYouTubeResolver combines the remembered logins with an optional handle lookup.
func NewYouTubeResolver(store VariableLister, channels ChannelLookup) YouTubeResolver {
	return YouTubeResolver{known: NewKnownLoginResolver(store, points.PlatformYouTube), channels: channels}
}

func (resolver YouTubeResolver) ResolveUserIDs(ctx context.Context, ledger points.LedgerName, username string) ([]points.UserID, error) {
	userIDs, err := resolver.known.ResolveUserIDs(ctx, ledger, username)
	if err != nil || len(userIDs) > 0 || resolver.channels == nil {
		return userIDs, err
	}
	channelIDs, err := resolver.channels.LookupHandle(ctx, username)
	if err != nil {
		return nil, points.WrapError(errorOperationIdentity, errorSubjectYouTube, errorCodeLookup, err)
	}
	for _, channelID := range channelIDs {
		userID, err := points.NewUserID(channelID)
		if err != nil {
			continue
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, nil
}
