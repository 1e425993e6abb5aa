package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/points/internal/catalog"
	"github.com/MarkoPoloResearchLab/points/internal/config"
	"github.com/MarkoPoloResearchLab/points/internal/identity"
	"github.com/MarkoPoloResearchLab/points/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sentMessage struct {
	platform points.Platform
	text     string
	bot      bool
}

type recordingSender struct {
	mutex    sync.Mutex
	messages []sentMessage
}

func (sender *recordingSender) SendChatMessage(_ context.Context, platform points.Platform, text string, useBotAccount bool) error {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	sender.messages = append(sender.messages, sentMessage{platform: platform, text: text, bot: useBotAccount})
	return nil
}

func (sender *recordingSender) snapshot() []sentMessage {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	return append([]sentMessage(nil), sender.messages...)
}

type stubActions struct {
	mutex   sync.Mutex
	actions []points.Action
	runs    []string
}

func (registry *stubActions) ListActions(context.Context) ([]points.Action, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return append([]points.Action(nil), registry.actions...), nil
}

func (registry *stubActions) RunAction(_ context.Context, name string, _ bool) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	registry.runs = append(registry.runs, name)
	return nil
}

type fixture struct {
	service *Service
	store   *gormstore.Store
	sender  *recordingSender
	actions *stubActions
	vp      *points.Ledger
}

func newFixture(test *testing.T) fixture {
	test.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(test.TempDir(), "points.db")), &gorm.Config{})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })
	store := gormstore.New(db)
	if err := store.AutoMigrate(context.Background()); err != nil {
		test.Fatalf("migrate: %v", err)
	}

	profiles := []config.LedgerConfig{{Name: "vp", Unit: "venture points"}, {Name: "pp", Unit: "play points"}}
	registry, err := points.NewRegistry()
	if err != nil {
		test.Fatalf("registry: %v", err)
	}
	ledgers := map[string]*points.Ledger{}
	for _, profile := range profiles {
		name, err := points.NewLedgerName(profile.Name)
		if err != nil {
			test.Fatalf("ledger name: %v", err)
		}
		ledger, err := points.NewLedger(name, store,
			points.WithIdentityResolver(points.PlatformTwitch, identity.NewKnownLoginResolver(store, points.PlatformTwitch)),
			points.WithIdentityResolver(points.PlatformYouTube, identity.NewYouTubeResolver(store, nil)),
		)
		if err != nil {
			test.Fatalf("ledger: %v", err)
		}
		if err := registry.Register(ledger); err != nil {
			test.Fatalf("register: %v", err)
		}
		ledgers[profile.Name] = ledger
	}

	smash, err := points.NewFlatCatalog("smash", "!smash", 50, map[string]string{
		"fight":  "[Smash SFX] - Fight",
		"zombie": "[Smash SFX] - Zombie",
	}, "fight", "zombie")
	if err != nil {
		test.Fatalf("catalog: %v", err)
	}
	catalogs, err := catalog.NewSet(smash)
	if err != nil {
		test.Fatalf("catalog set: %v", err)
	}

	sender := &recordingSender{}
	gateway, err := points.NewGateway(sender, points.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	if err != nil {
		test.Fatalf("gateway: %v", err)
	}
	actions := &stubActions{actions: []points.Action{
		{Name: "[Smash SFX] - Fight", Enabled: true},
		{Name: "[Smash SFX] - Zombie", Enabled: false},
	}}
	engine, err := points.NewEngine(actions, gateway)
	if err != nil {
		test.Fatalf("engine: %v", err)
	}
	service, err := New(Dependencies{
		Ledgers:   registry,
		Profiles:  profiles,
		Catalogs:  catalogs,
		Gateway:   gateway,
		Engine:    engine,
		ChatUsers: store,
	})
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	return fixture{service: service, store: store, sender: sender, actions: actions, vp: ledgers["vp"]}
}

func (current fixture) balance(test *testing.T, platform points.Platform, userID string) points.Balance {
	test.Helper()
	ref, err := points.NewUserRef(platform, userID)
	if err != nil {
		test.Fatalf("ref: %v", err)
	}
	balance, err := current.vp.GetBalance(context.Background(), ref)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	return balance
}

func (current fixture) seed(test *testing.T, platform points.Platform, userID string, login string, value int64) {
	test.Helper()
	ref, err := points.NewUserRef(platform, userID)
	if err != nil {
		test.Fatalf("ref: %v", err)
	}
	if err := current.vp.SetBalance(context.Background(), ref, value, "test"); err != nil {
		test.Fatalf("seed balance: %v", err)
	}
	if login != "" {
		if err := current.store.RememberChatUser(context.Background(), ref, login); err != nil {
			test.Fatalf("seed login: %v", err)
		}
	}
}

func twitchCommand(attributes map[string]any) points.Event {
	base := map[string]any{
		points.AttributeEventSource:   "command",
		points.AttributeCommandSource: "twitch",
	}
	for name, value := range attributes {
		base[name] = value
	}
	return points.NewEvent(base)
}

func argument(test *testing.T, arguments *points.Arguments, name string) any {
	test.Helper()
	value, ok := arguments.Get(name)
	if !ok {
		test.Fatalf("argument %s not set; have %v", name, arguments.Names())
	}
	return value
}

func TestUnknownHandler(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	_, err := current.service.Handle(context.Background(), "doesNotExist", Request{})
	if !errors.Is(err, ErrUnknownHandler) || ErrorCode(err) != CodeUnknownHandler {
		test.Fatalf("expected unknown handler, got %v", err)
	}
	if current.service.Has("doesNotExist") || !current.service.Has(HandlerRedeem) || len(current.service.Names()) != 13 {
		test.Fatalf("unexpected handler table %v", current.service.Names())
	}
}

func TestSetTriggeringPlatform(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	testCases := []struct {
		name       string
		attributes map[string]any
		want       string
		wantErr    error
	}{
		{name: "user type", attributes: map[string]any{points.AttributeUserType: "YouTube"}, want: "youtube"},
		{name: "command source", attributes: map[string]any{points.AttributeEventSource: "command", points.AttributeCommandSource: "trovo"}, want: "trovo"},
		{name: "event source", attributes: map[string]any{points.AttributeEventSource: "twitch"}, want: "twitch"},
		{name: "nothing", attributes: map[string]any{points.AttributeEventSource: "timer"}, wantErr: points.ErrPlatformNotFound},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			arguments, err := current.service.Handle(context.Background(), HandlerSetTriggeringPlatform, Request{Event: points.NewEvent(testCase.attributes)})
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf("expected %v, got %v", testCase.wantErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("handle: %v", err)
			}
			if got := argument(test, arguments, ArgumentTriggeringPlatform); got != testCase.want {
				test.Fatalf("expected %s, got %v", testCase.want, got)
			}
		})
	}
}

func TestSendPlatformMessageUsesBotPreference(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	ctx := context.Background()
	if _, err := current.service.Handle(ctx, HandlerSendPlatformMessage, Request{Event: twitchCommand(map[string]any{ArgumentPlatformMessage: "hello"})}); err != nil {
		test.Fatalf("send default: %v", err)
	}
	if _, err := current.service.Handle(ctx, HandlerSendPlatformMessage, Request{Event: twitchCommand(map[string]any{ArgumentPlatformMessage: "again", points.AttributeBot: false})}); err != nil {
		test.Fatalf("send broadcaster: %v", err)
	}
	messages := current.sender.snapshot()
	if len(messages) != 2 || !messages[0].bot || messages[1].bot || messages[0].platform != points.PlatformTwitch {
		test.Fatalf("unexpected messages %+v", messages)
	}

	_, err := current.service.Handle(ctx, HandlerSendPlatformMessage, Request{Event: twitchCommand(map[string]any{ArgumentPlatformMessage: "   "})})
	if !errors.Is(err, points.ErrEmptyMessage) {
		test.Fatalf("expected empty message, got %v", err)
	}
	_, err = current.service.Handle(ctx, HandlerSendPlatformMessage, Request{Event: twitchCommand(nil)})
	if ErrorCode(err) != CodeMissingArgument {
		test.Fatalf("expected missing argument, got %v", err)
	}
}

func TestSendPlatformMessageIfNotBotSkipsBot(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	event := twitchCommand(map[string]any{ArgumentPlatformMessage: "hello", points.AttributeUserName: "TeamVentureGaming"})
	arguments, err := current.service.Handle(context.Background(), HandlerSendPlatformMessageIfNotBot, Request{Event: event})
	if err != nil {
		test.Fatalf("skipping the bot is not a failure, got %v", err)
	}
	if argument(test, arguments, ArgumentSkipped) != true {
		test.Fatalf("expected skipped=true, got %v", arguments.Snapshot())
	}
	if len(current.sender.snapshot()) != 0 {
		test.Fatalf("bot message must not be sent")
	}

	viewer := twitchCommand(map[string]any{ArgumentPlatformMessage: "hello", points.AttributeUserName: "bob"})
	arguments, err = current.service.Handle(context.Background(), HandlerSendPlatformMessageIfNotBot, Request{Event: viewer})
	if err != nil || argument(test, arguments, ArgumentSkipped) != false {
		test.Fatalf("expected viewer message to be sent, err=%v", err)
	}
	if len(current.sender.snapshot()) != 1 {
		test.Fatalf("expected one message for the viewer, got %v", current.sender.snapshot())
	}

	arguments, err = current.service.Handle(context.Background(), HandlerSetIsBotAccount, Request{Event: event})
	if err != nil || argument(test, arguments, ArgumentIsBotAccount) != true {
		test.Fatalf("expected isBotAccount true, err=%v", err)
	}
}

func TestSendUserPoints(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	event := twitchCommand(map[string]any{points.AttributeUserID: "1001", points.AttributeUserName: "bob"})

	_, err := current.service.Handle(context.Background(), HandlerSendUserPoints, Request{Ledger: "vp", Event: event})
	if !errors.Is(err, points.ErrUnknownBalance) {
		test.Fatalf("expected unknown balance, got %v", err)
	}
	current.seed(test, points.PlatformTwitch, "1001", "", 40)
	if _, err := current.service.Handle(context.Background(), HandlerSendUserPoints, Request{Ledger: "vp", Event: event}); err != nil {
		test.Fatalf("send points: %v", err)
	}
	messages := current.sender.snapshot()
	want := "bob, you have 40 venture points!  Use !commandsvp to see how to spend them!"
	if len(messages) != 1 || messages[0].text != want {
		test.Fatalf("expected %q, got %+v", want, messages)
	}

	_, err = current.service.Handle(context.Background(), HandlerSendUserPoints, Request{Ledger: "gold", Event: event})
	if ErrorCode(err) != CodeUnknownLedger {
		test.Fatalf("expected unknown ledger, got %v", err)
	}
}

func TestSendUserCommandsListsLedgers(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	if _, err := current.service.Handle(context.Background(), HandlerSendUserCommands, Request{Event: twitchCommand(nil)}); err != nil {
		test.Fatalf("send commands: %v", err)
	}
	want := "Use !commandsvp to spend venture points and use !commandspp to spend play points."
	if messages := current.sender.snapshot(); len(messages) != 1 || messages[0].text != want {
		test.Fatalf("expected %q, got %+v", want, messages)
	}
}

func TestSetPointsTwitch(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	current.seed(test, points.PlatformTwitch, "1001", "bob", 3)
	event := twitchCommand(map[string]any{points.InputName(0): "25", points.InputName(1): "@Bob", points.AttributeUserName: "mod"})

	arguments, err := current.service.Handle(context.Background(), HandlerSetPoints, Request{Ledger: "vp", Event: event})
	if err != nil {
		test.Fatalf("set points: %v", err)
	}
	if balance := current.balance(test, points.PlatformTwitch, "1001"); balance.Int64() != 25 {
		test.Fatalf("expected 25, got %s", balance)
	}
	if argument(test, arguments, ArgumentPointsToSet) != int64(25) || argument(test, arguments, ArgumentPointsTargetUsername) != "@Bob" {
		test.Fatalf("unexpected arguments %v", arguments.Snapshot())
	}
}

func TestSetPointsRejectsBadInput(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	current.seed(test, points.PlatformTwitch, "1001", "bob", 3)
	testCases := []struct {
		name string
		attr map[string]any
		code string
	}{
		{name: "negative", attr: map[string]any{points.InputName(0): "-1", points.InputName(1): "bob"}, code: CodeInvalidArgument},
		{name: "not a number", attr: map[string]any{points.InputName(0): "lots", points.InputName(1): "bob"}, code: CodeInvalidArgument},
		{name: "no amount", attr: map[string]any{points.InputName(1): "bob"}, code: CodeMissingArgument},
		{name: "no target", attr: map[string]any{points.InputName(0): "5"}, code: CodeMissingArgument},
		{name: "unknown user", attr: map[string]any{points.InputName(0): "5", points.InputName(1): "carol"}, code: CodeUserNotFound},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, err := current.service.Handle(context.Background(), HandlerSetPoints, Request{Ledger: "vp", Event: twitchCommand(testCase.attr)})
			if ErrorCode(err) != testCase.code {
				test.Fatalf("expected %s, got %v", testCase.code, err)
			}
		})
	}
	if balance := current.balance(test, points.PlatformTwitch, "1001"); balance.Int64() != 3 {
		test.Fatalf("rejected commands must not write, got %s", balance)
	}
}

func TestAddPointsYouTubeFansOutAndFloors(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	current.seed(test, points.PlatformYouTube, "UC-1", "Big Bob", 3)
	current.seed(test, points.PlatformYouTube, "UC-2", "big bob", 10)
	event := points.NewEvent(map[string]any{
		points.AttributeEventSource:   "command",
		points.AttributeCommandSource: "youtube",
		points.AttributeRawInput:      "-5 @Big Bob",
		points.InputName(0):           "-5",
		points.InputName(1):           "@Big",
	})

	arguments, err := current.service.Handle(context.Background(), HandlerAddPoints, Request{Ledger: "vp", Event: event})
	if err != nil {
		test.Fatalf("add points: %v", err)
	}
	if first, second := current.balance(test, points.PlatformYouTube, "UC-1"), current.balance(test, points.PlatformYouTube, "UC-2"); first.Int64() != 0 || second.Int64() != 5 {
		test.Fatalf("expected 0 and 5, got %s and %s", first, second)
	}
	if argument(test, arguments, ArgumentPointsTargetUsername) != "Big Bob" || argument(test, arguments, ArgumentPointsToAdd) != int64(-5) {
		test.Fatalf("unexpected arguments %v", arguments.Snapshot())
	}
	if argument(test, arguments, ArgumentOldPoints) != int64(10) || argument(test, arguments, ArgumentNewPoints) != int64(5) {
		test.Fatalf("unexpected balances %v", arguments.Snapshot())
	}
}

func TestTargetUsername(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		platform points.Platform
		attr     map[string]any
		want     string
		wantErr  bool
	}{
		{name: "twitch input1", platform: points.PlatformTwitch, attr: map[string]any{points.InputName(1): "bob"}, want: "bob"},
		{name: "youtube spaces", platform: points.PlatformYouTube, attr: map[string]any{points.AttributeRawInput: "10 Team Venture Fan", points.InputName(0): "10"}, want: "Team Venture Fan"},
		{name: "youtube at sign", platform: points.PlatformYouTube, attr: map[string]any{points.AttributeRawInput: "10 @Fan", points.InputName(0): "10"}, want: "Fan"},
		{name: "youtube multibyte", platform: points.PlatformYouTube, attr: map[string]any{points.AttributeRawInput: "10 Zoë", points.InputName(0): "10"}, want: "Zoë"},
		{name: "youtube no name", platform: points.PlatformYouTube, attr: map[string]any{points.AttributeRawInput: "10", points.InputName(0): "10"}, wantErr: true},
		{name: "youtube no raw input", platform: points.PlatformYouTube, attr: map[string]any{}, wantErr: true},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			current := &call{event: points.NewEvent(testCase.attr)}
			got, err := current.targetUsername(testCase.platform)
			if testCase.wantErr {
				if !errors.Is(err, ErrMissingArgument) {
					test.Fatalf("expected missing argument, got %v", err)
				}
				return
			}
			if err != nil || got != testCase.want {
				test.Fatalf("expected %q, got %q err=%v", testCase.want, got, err)
			}
		})
	}
}

func TestResetAllPointsClearsEveryPlatform(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	current.seed(test, points.PlatformTwitch, "1001", "", 5)
	current.seed(test, points.PlatformYouTube, "UC-1", "", 5)

	arguments, err := current.service.Handle(context.Background(), HandlerResetAllPoints, Request{Ledger: "vp", Event: twitchCommand(nil)})
	if err != nil {
		test.Fatalf("reset: %v", err)
	}
	if argument(test, arguments, ArgumentPointsCleared) != int64(2) {
		test.Fatalf("expected 2 cleared, got %v", arguments.Snapshot())
	}
	if current.balance(test, points.PlatformTwitch, "1001").Known() || current.balance(test, points.PlatformYouTube, "UC-1").Known() {
		test.Fatalf("expected balances to be cleared")
	}
}

func TestAddWatchPoints(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	ctx := context.Background()
	users := []any{
		map[string]any{"id": "a", "login": "alpha"},
		map[string]any{"id": nil},
		map[string]any{"id": 42.0},
		map[string]any{"id": 123456789.0},
		map[string]any{"id": json.Number("9007199254740993")},
	}

	arguments, err := current.service.Handle(ctx, HandlerAddWatchPoints, Request{Ledger: "vp", Event: points.NewEvent(map[string]any{
		points.AttributeIsLive:      false,
		points.AttributeEventSource: "twitch",
		points.AttributeUsers:       users,
	})})
	if err != nil || argument(test, arguments, ArgumentViewersAwarded) != 0 {
		test.Fatalf("offline tick should be a no-op, err=%v", err)
	}
	if current.balance(test, points.PlatformTwitch, "a").Known() {
		test.Fatalf("offline tick must not award")
	}

	arguments, err = current.service.Handle(ctx, HandlerAddWatchPoints, Request{Ledger: "vp", Event: points.NewEvent(map[string]any{
		points.AttributeIsLive:      true,
		points.AttributeEventSource: "twitch",
		points.AttributeUsers:       users,
	})})
	if err != nil {
		test.Fatalf("award: %v", err)
	}
	if argument(test, arguments, ArgumentViewersAwarded) != 4 {
		test.Fatalf("expected 4 awarded, got %v", arguments.Snapshot())
	}
	for _, userID := range []string{"a", "42", "123456789", "9007199254740993"} {
		if current.balance(test, points.PlatformTwitch, userID).Int64() != points.DefaultPointsPerTick {
			test.Fatalf("expected default award for viewer %s", userID)
		}
	}

	_, err = current.service.Handle(ctx, HandlerAddWatchPoints, Request{Ledger: "vp", Event: points.NewEvent(map[string]any{points.AttributeEventSource: "twitch"})})
	if ErrorCode(err) != CodeMissingArgument {
		test.Fatalf("expected missing isLive, got %v", err)
	}
}

func TestAddPointsToTriggeringUser(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	event := twitchCommand(map[string]any{points.AttributeUserID: "1001"})

	arguments, err := current.service.Handle(context.Background(), HandlerAddPointsToTriggeringUser, Request{Ledger: "vp", Event: event})
	if err != nil {
		test.Fatalf("add: %v", err)
	}
	if argument(test, arguments, ArgumentOldPoints) != nil || argument(test, arguments, ArgumentNewPoints) != int64(10) {
		test.Fatalf("unexpected arguments %v", arguments.Snapshot())
	}

	event = twitchCommand(map[string]any{points.AttributeUserID: "1001", ArgumentPointsToGive: 5})
	if _, err := current.service.Handle(context.Background(), HandlerAddPointsToTriggeringUser, Request{Ledger: "vp", Event: event}); err != nil {
		test.Fatalf("add again: %v", err)
	}
	if balance := current.balance(test, points.PlatformTwitch, "1001"); balance.Int64() != 15 {
		test.Fatalf("expected 15, got %s", balance)
	}
}

func TestRedeemChargesAndRunsAction(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	current.seed(test, points.PlatformTwitch, "1001", "bob", 60)
	event := twitchCommand(map[string]any{points.AttributeUserID: "1001", points.AttributeUserName: "bob", points.InputName(0): "FIGHT"})

	arguments, err := current.service.Handle(context.Background(), HandlerRedeem, Request{Ledger: "vp", Catalog: "smash", Event: event})
	if err != nil {
		test.Fatalf("redeem: %v", err)
	}
	if argument(test, arguments, points.RedeemActionArgument) != "[Smash SFX] - Fight" {
		test.Fatalf("unexpected arguments %v", arguments.Snapshot())
	}
	if balance := current.balance(test, points.PlatformTwitch, "1001"); balance.Int64() != 10 {
		test.Fatalf("expected 10 left, got %s", balance)
	}

	_, err = current.service.Handle(context.Background(), HandlerRedeem, Request{Ledger: "vp", Catalog: "smash", Event: event})
	if ErrorCode(err) != CodeInsufficientFunds {
		test.Fatalf("expected insufficient funds, got %v", err)
	}
	messages := current.sender.snapshot()
	if len(messages) != 1 || messages[0].text != "bob, !smash requires 50, but you only have 10." {
		test.Fatalf("unexpected messages %+v", messages)
	}
	if len(current.actions.runs) != 1 {
		test.Fatalf("expected one action run, got %v", current.actions.runs)
	}
}

func TestRedeemCatalogErrors(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	event := twitchCommand(map[string]any{points.AttributeUserID: "1001"})
	if _, err := current.service.Handle(context.Background(), HandlerRedeem, Request{Ledger: "vp", Event: event}); ErrorCode(err) != CodeMissingArgument {
		test.Fatalf("expected missing catalog, got %v", err)
	}
	if _, err := current.service.Handle(context.Background(), HandlerRedeem, Request{Ledger: "vp", Catalog: "songs", Event: event}); ErrorCode(err) != CodeUnknownCatalog {
		test.Fatalf("expected unknown catalog, got %v", err)
	}
}

func TestRandomRedeemRunsEnabledActionForFree(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	arguments, err := current.service.Handle(context.Background(), HandlerRandomRedeem, Request{Catalog: "smash", Event: points.NewEvent(nil)})
	if err != nil {
		test.Fatalf("random redeem: %v", err)
	}
	if argument(test, arguments, points.RedeemActionArgument) != "[Smash SFX] - Fight" {
		test.Fatalf("only the enabled action may run, got %v", arguments.Snapshot())
	}
}

func TestHandleRemembersCaller(test *testing.T) {
	test.Parallel()
	current := newFixture(test)
	current.seed(test, points.PlatformYouTube, "UC-9", "", 1)
	event := points.NewEvent(map[string]any{
		points.AttributeUserType: "youtube",
		points.AttributeUserID:   "UC-9",
		points.AttributeUserName: "Night Owl",
	})
	if _, err := current.service.Handle(context.Background(), HandlerSetIsBotAccount, Request{Event: event}); err != nil {
		test.Fatalf("handle: %v", err)
	}
	balances, err := current.vp.GetBalanceByUsername(context.Background(), points.PlatformYouTube, "night owl")
	if err != nil {
		test.Fatalf("lookup by remembered login: %v", err)
	}
	if len(balances) != 1 || balances[0].UserID.String() != "UC-9" {
		test.Fatalf("unexpected balances %+v", balances)
	}
}

func TestErrorCodeFallsBackToInternal(test *testing.T) {
	test.Parallel()
	if ErrorCode(nil) != "" || ErrorCode(errors.New("boom")) != CodeInternal {
		test.Fatalf("unexpected fallback codes")
	}
	joined := errors.Join(points.ErrInsufficientFunds, errors.New("chat down"))
	if ErrorCode(joined) != CodeInsufficientFunds {
		test.Fatalf("expected joined sentinel to win, got %s", ErrorCode(joined))
	}
}

func TestNewRejectsMissingDependencies(test *testing.T) {
	test.Parallel()
	if _, err := New(Dependencies{}); !errors.Is(err, ErrInvalidDependency) {
		test.Fatalf("expected ErrInvalidDependency, got %v", err)
	}
}
