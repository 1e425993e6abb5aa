package points

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Attribute names supplied by the host for chat events.
const (
	AttributeUserType      = "userType"
	AttributeEventSource   = "eventSource"
	AttributeCommandSource = "commandSource"
	AttributeCommand       = "command"
	AttributeUserID        = "userId"
	AttributeUserName      = "userName"
	AttributeUser          = "user"
	AttributeIsModerator   = "isModerator"
	AttributeRawInput      = "rawInput"
	AttributeBot           = "bot"
	AttributeIsLive        = "isLive"
	AttributeUsers         = "users"

	eventSourceCommand = "command"
	inputPrefix        = "input"
)

// Event is the typed view over the attribute bag the host attaches to one event.
type Event struct {
	attributes map[string]any
}

// NewEvent copies the supplied attributes into an Event.
func NewEvent(attributes map[string]any) Event {
	copied := make(map[string]any, len(attributes))
	for name, value := range attributes {
		copied[name] = value
	}
	return Event{attributes: copied}
}

// Lookup returns the raw attribute value.
func (event Event) Lookup(name string) (any, bool) {
	value, ok := event.attributes[name]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

// String returns a string attribute. Numbers and booleans are rendered.
func (event Event) String(name string) (string, bool) {
	value, ok := event.Lookup(name)
	if !ok {
		return "", false
	}
	return FormatAttribute(value)
}

// FormatAttribute renders a scalar attribute value as text. Integral floats render without an
// exponent so numeric ids decoded from JSON key the same balance as their string form.
func FormatAttribute(value any) (string, bool) {
	switch typed := value.(type) {
	case nil:
		return "", false
	case string:
		return typed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32), true
	case fmt.Stringer:
		return typed.String(), true
	case bool, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprint(typed), true
	default:
		return "", false
	}
}

// Bool returns a boolean attribute; "true"/"false" strings are accepted.
func (event Event) Bool(name string) (bool, bool) {
	value, ok := event.Lookup(name)
	if !ok {
		return false, false
	}
	switch typed := value.(type) {
	case bool:
		return typed, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		return false, false
	}
}

// BoolOr returns the boolean attribute or the fallback when absent.
func (event Event) BoolOr(name string, fallback bool) bool {
	value, ok := event.Bool(name)
	if !ok {
		return fallback
	}
	return value
}

// Int64 returns an integer attribute. Integral floats and numeric strings are accepted.
func (event Event) Int64(name string) (int64, bool) {
	value, ok := event.Lookup(name)
	if !ok {
		return 0, false
	}
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	case float64:
		if typed != math.Trunc(typed) || typed >= math.MaxInt64 || typed < math.MinInt64 {
			return 0, false
		}
		return int64(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// Users returns a list of string-keyed maps, the shape the host uses for present viewers.
func (event Event) Users(name string) ([]map[string]any, bool) {
	value, ok := event.Lookup(name)
	if !ok {
		return nil, false
	}
	switch typed := value.(type) {
	case []map[string]any:
		return typed, true
	case []any:
		users := make([]map[string]any, 0, len(typed))
		for _, item := range typed {
			user, _ := item.(map[string]any)
			users = append(users, user)
		}
		return users, true
	default:
		return nil, false
	}
}

// Input returns the numbered command input as a string.
func (event Event) Input(index int) (string, bool) {
	return event.String(InputName(index))
}

// InputName returns the attribute name of a numbered command input.
func InputName(index int) string {
	return inputPrefix + strconv.Itoa(index)
}

// Arguments collects outbound values for downstream host automation steps.
type Arguments struct {
	mutex  sync.Mutex
	values map[string]any
}

// NewArguments returns an empty argument sink.
func NewArguments() *Arguments {
	return &Arguments{values: map[string]any{}}
}

// SetArgument stores a value under name, replacing any earlier value.
func (arguments *Arguments) SetArgument(name string, value any) {
	arguments.mutex.Lock()
	defer arguments.mutex.Unlock()
	arguments.values[name] = value
}

// Get returns a stored value.
func (arguments *Arguments) Get(name string) (any, bool) {
	arguments.mutex.Lock()
	defer arguments.mutex.Unlock()
	value, ok := arguments.values[name]
	return value, ok
}

// Names returns the stored argument names in sorted order.
func (arguments *Arguments) Names() []string {
	arguments.mutex.Lock()
	defer arguments.mutex.Unlock()
	names := make([]string, 0, len(arguments.values))
	for name := range arguments.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of every stored value.
func (arguments *Arguments) Snapshot() map[string]any {
	arguments.mutex.Lock()
	defer arguments.mutex.Unlock()
	copied := make(map[string]any, len(arguments.values))
	for name, value := range arguments.values {
		copied[name] = value
	}
	return copied
}

// ArgumentSink receives outbound arguments.
type ArgumentSink interface {
	SetArgument(name string, value any)
}

type discardArguments struct{}

func (discardArguments) SetArgument(string, any) {}
