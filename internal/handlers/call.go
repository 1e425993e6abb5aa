package handlers

import (
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
)

// Argument names read from and written to the host's event bag.
const (
	ArgumentTriggeringPlatform   = "triggeringPlatform"
	ArgumentPlatformMessage      = "platformMessage"
	ArgumentIsBotAccount         = "isBotAccount"
	ArgumentPointsToSet          = "pointsToSet"
	ArgumentPointsTargetUsername = "pointsTargetUsername"
	ArgumentOldPoints            = "oldPoints"
	ArgumentNewPoints            = "newPoints"
	ArgumentPointsToAdd          = "pointsToAdd"
	ArgumentPointsGivenPerTick   = "pointsGivenPerTick"
	ArgumentPointsToGive         = "pointsToGive"
	ArgumentPointsCleared        = "pointsCleared"
	ArgumentViewersAwarded       = "viewersAwarded"
	ArgumentSkipped              = "skipped"

	defaultPointsToGive int64 = 10
	viewerIDField             = "id"
	actorPrefix               = "handler:"
)

// call carries one event through a handler.
type call struct {
	name      string
	request   Request
	event     points.Event
	arguments *points.Arguments

	resolved bool
	platform points.Platform
	err      error
}

func (current *call) resolvePlatform(resolver points.PlatformResolver) (points.Platform, error) {
	if !current.resolved {
		current.platform, current.err = resolver.Resolve(current.event)
		current.resolved = true
	}
	return current.platform, current.err
}

func (current *call) requireString(name string) (string, error) {
	value, ok := current.event.String(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}
	return value, nil
}

func (current *call) requireInt64(name string) (int64, error) {
	if _, present := current.event.Lookup(name); !present {
		return 0, fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}
	value, ok := current.event.Int64(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a whole number", ErrInvalidArgument, name)
	}
	return value, nil
}

func (current *call) int64Or(name string, fallback int64) (int64, error) {
	if _, present := current.event.Lookup(name); !present {
		return fallback, nil
	}
	return current.requireInt64(name)
}

func (current *call) userRef(platform points.Platform) (points.UserRef, error) {
	userID, err := current.requireString(points.AttributeUserID)
	if err != nil {
		return points.UserRef{}, err
	}
	return points.NewUserRef(platform, userID)
}

func (current *call) userName() string {
	name, _ := current.event.String(points.AttributeUserName)
	return strings.TrimSpace(name)
}

// botPreference reads the "bot" argument; replies go through the bot account unless told otherwise.
func (current *call) botPreference() bool {
	return current.event.BoolOr(points.AttributeBot, true)
}

func (current *call) actor() string {
	if name := current.userName(); name != "" {
		return name
	}
	return actorPrefix + current.name
}

// targetUsername finds the user a moderator command names. Twitch and Trovo split the command on
// spaces so the name is input1. YouTube display names may contain spaces, so the name is the raw
// input after the first argument, with any leading '@' removed.
func (current *call) targetUsername(platform points.Platform) (string, error) {
	if platform != points.PlatformYouTube {
		target, err := current.requireString(points.InputName(1))
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(target) == "" {
			return "", fmt.Errorf("%w: %s is blank", ErrMissingArgument, points.InputName(1))
		}
		return target, nil
	}
	rawInput, err := current.requireString(points.AttributeRawInput)
	if err != nil {
		return "", err
	}
	first, _ := current.event.Input(0)
	runes := []rune(rawInput)
	skip := len([]rune(first)) + 1
	if skip > len(runes) {
		return "", fmt.Errorf("%w: no username after %q", ErrMissingArgument, first)
	}
	target := strings.TrimSpace(string(runes[skip:]))
	target = strings.TrimPrefix(target, "@")
	if target == "" {
		return "", fmt.Errorf("%w: no username after %q", ErrMissingArgument, first)
	}
	return target, nil
}

func balanceArgument(balance points.Balance) any {
	if !balance.Known() {
		return nil
	}
	return balance.Int64()
}
