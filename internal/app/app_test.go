package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarkoPoloResearchLab/points/internal/config"
	"github.com/MarkoPoloResearchLab/points/internal/identity"
	"github.com/MarkoPoloResearchLab/points/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/points/pkg/points"
)

func testConfig(test *testing.T) config.Config {
	test.Helper()
	cfg := config.Config{DatabaseURL: filepath.Join(test.TempDir(), "points.db")}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	return cfg
}

func TestOpenStoresAndLedgersShareState(test *testing.T) {
	test.Parallel()
	ctx := context.Background()
	cfg := testConfig(test)
	stores, err := OpenStores(ctx, cfg, nil)
	if err != nil {
		test.Fatalf("open stores: %v", err)
	}
	defer func() { _ = stores.Close() }()
	if _, ok := stores.Variables.(*gormstore.Store); !ok {
		test.Fatalf("expected the gorm store, got %T", stores.Variables)
	}

	resolvers, err := IdentityResolvers(ctx, cfg, stores.Variables, nil)
	if err != nil {
		test.Fatalf("resolvers: %v", err)
	}
	registry, err := BuildLedgers(cfg, stores.Variables, resolvers, stores.Audit)
	if err != nil {
		test.Fatalf("ledgers: %v", err)
	}
	if names := registry.Names(); len(names) != 2 || names[0] != "pp" || names[1] != "vp" {
		test.Fatalf("unexpected ledgers %v", names)
	}

	vp, err := registry.Ledger("vp")
	if err != nil {
		test.Fatalf("vp: %v", err)
	}
	ref, err := points.NewUserRef(points.PlatformTwitch, "1001")
	if err != nil {
		test.Fatalf("ref: %v", err)
	}
	if err := stores.Variables.RememberChatUser(ctx, ref, "Bob"); err != nil {
		test.Fatalf("remember: %v", err)
	}
	if _, err := vp.AddBalance(ctx, ref, 5, "watch"); err != nil {
		test.Fatalf("add: %v", err)
	}
	results, err := vp.AddBalanceByUsername(ctx, points.PlatformTwitch, "bob", 15, "test")
	if err != nil || len(results) != 1 || results[0].New != 20 {
		test.Fatalf("expected 20 after add by username, got %+v err=%v", results, err)
	}
	history, err := stores.Audit.History(ctx, vp.Name(), ref, 5)
	if err != nil || len(history) != 2 {
		test.Fatalf("expected two audit rows, got %d err=%v", len(history), err)
	}
	pp, err := registry.Ledger("pp")
	if err != nil {
		test.Fatalf("pp: %v", err)
	}
	if balance, err := pp.GetBalance(ctx, ref); err != nil || balance.Known() {
		test.Fatalf("ledgers must not share balances, got %s err=%v", balance, err)
	}
}

func TestIdentityResolversFollowCredentials(test *testing.T) {
	test.Parallel()
	cfg := testConfig(test)
	resolvers, err := IdentityResolvers(context.Background(), cfg, nil, nil)
	if err != nil {
		test.Fatalf("resolvers: %v", err)
	}
	if _, ok := resolvers[points.PlatformTwitch].(identity.KnownLoginResolver); !ok {
		test.Fatalf("expected remembered logins for twitch without helix credentials, got %T", resolvers[points.PlatformTwitch])
	}
	if _, ok := resolvers[points.PlatformTrovo]; ok {
		test.Fatalf("trovo must have no resolver")
	}

	cfg.TwitchClientID = "client"
	cfg.TwitchAppToken = "token"
	resolvers, err = IdentityResolvers(context.Background(), cfg, nil, nil)
	if err != nil {
		test.Fatalf("resolvers: %v", err)
	}
	if _, ok := resolvers[points.PlatformTwitch].(identity.TwitchResolver); !ok {
		test.Fatalf("expected helix resolver, got %T", resolvers[points.PlatformTwitch])
	}
}
