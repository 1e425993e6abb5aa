package points

import (
	"fmt"
	"strings"
)

// Platform names a chat service that can trigger events.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
	PlatformTrovo   Platform = "trovo"
)

// String returns the canonical platform name.
func (platform Platform) String() string {
	return string(platform)
}

// PlatformSet is the collection of platforms an installation knows about.
type PlatformSet struct {
	ordered []Platform
	byName  map[string]Platform
}

// NewPlatformSet builds a set; names are matched case-insensitively.
func NewPlatformSet(platforms ...Platform) PlatformSet {
	set := PlatformSet{byName: make(map[string]Platform, len(platforms))}
	for _, platform := range platforms {
		key := strings.ToLower(strings.TrimSpace(platform.String()))
		if key == "" {
			continue
		}
		if _, exists := set.byName[key]; exists {
			continue
		}
		canonical := Platform(key)
		set.byName[key] = canonical
		set.ordered = append(set.ordered, canonical)
	}
	return set
}

// DefaultPlatforms returns Twitch, YouTube and Trovo.
func DefaultPlatforms() PlatformSet {
	return NewPlatformSet(PlatformTwitch, PlatformYouTube, PlatformTrovo)
}

// Lookup matches a raw name against the set.
func (set PlatformSet) Lookup(raw string) (Platform, bool) {
	platform, ok := set.byName[strings.ToLower(strings.TrimSpace(raw))]
	return platform, ok
}

// Parse matches a raw name or reports ErrUnknownPlatform.
func (set PlatformSet) Parse(raw string) (Platform, error) {
	platform, ok := set.Lookup(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, raw)
	}
	return platform, nil
}

// Contains reports whether the platform belongs to the set.
func (set PlatformSet) Contains(platform Platform) bool {
	_, ok := set.Lookup(platform.String())
	return ok
}

// All returns the platforms in registration order.
func (set PlatformSet) All() []Platform {
	return append([]Platform(nil), set.ordered...)
}

// PlatformResolver determines which platform triggered an event.
type PlatformResolver struct {
	platforms PlatformSet
}

// NewPlatformResolver wires a resolver over the given platform set.
func NewPlatformResolver(platforms PlatformSet) PlatformResolver {
	return PlatformResolver{platforms: platforms}
}

// Platforms returns the set the resolver matches against.
func (resolver PlatformResolver) Platforms() PlatformSet {
	return resolver.platforms
}

// Resolve checks userType, then commandSource for command events, then eventSource.
func (resolver PlatformResolver) Resolve(event Event) (Platform, error) {
	if userType, ok := event.String(AttributeUserType); ok {
		if platform, found := resolver.platforms.Lookup(userType); found {
			return platform, nil
		}
	}
	if eventSource, ok := event.String(AttributeEventSource); ok {
		if eventSource == eventSourceCommand {
			if commandSource, found := event.String(AttributeCommandSource); found {
				if platform, known := resolver.platforms.Lookup(commandSource); known {
					return platform, nil
				}
			}
		} else if platform, found := resolver.platforms.Lookup(eventSource); found {
			return platform, nil
		}
	}
	return "", ErrPlatformNotFound
}
