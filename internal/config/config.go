// Package config holds the runtime settings shared by pointsd and pointsctl.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
)

const (
	StoreDriverGORM = "gorm"
	StoreDriverPGX  = "pgx"

	defaultListenAddr     = ":8085"
	defaultGRPCListenAddr = ":7085"
	defaultDatabaseURL    = "points.db"
	defaultCatalogPath    = "configs/catalogs.yaml"
	defaultHostURL        = "ws://127.0.0.1:8080/"
	defaultHostTimeout    = 5 * time.Second
	defaultJWTIssuer      = "streamerbot"
	defaultAllowedOrigin  = "http://localhost:8000"
	defaultLedgerSpec     = "vp=venture points,pp=play points"
	defaultHelpPrefix     = "!commands"
	ledgerUnitSeparator   = "="
)

// LedgerConfig names one point economy and the unit chat replies use for it.
type LedgerConfig struct {
	Name string
	Unit string
}

// HelpCommand is the chat command that lists what the ledger's points buy.
func (ledger LedgerConfig) HelpCommand() string {
	return defaultHelpPrefix + ledger.Name
}

// Config aggregates runtime settings for the points daemon.
type Config struct {
	ListenAddr     string
	GRPCListenAddr string
	DatabaseURL    string
	StoreDriver    string
	CatalogPath    string
	Ledgers        []LedgerConfig

	HostURL      string
	HostPassword string
	HostTimeout  time.Duration

	MaxMessageLength int
	MinMessagePause  time.Duration
	MaxMessagePause  time.Duration
	BotAccounts      points.BotAccounts

	TwitchIRCUsername string
	TwitchIRCToken    string
	TwitchChannel     string
	TwitchClientID    string
	TwitchAppToken    string
	YouTubeAPIKey     string

	AllowedOrigins []string
	JWTSigningKey  string
	JWTIssuer      string
}

// Validate fills defaults and rejects settings the daemon cannot run with.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(cfg.StoreDriver, StoreDriverGORM))
	cfg.CatalogPath = defaultIfEmpty(cfg.CatalogPath, defaultCatalogPath)
	cfg.HostURL = defaultIfEmpty(cfg.HostURL, defaultHostURL)
	cfg.JWTIssuer = defaultIfEmpty(cfg.JWTIssuer, defaultJWTIssuer)
	if cfg.HostTimeout <= 0 {
		cfg.HostTimeout = defaultHostTimeout
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = points.DefaultMaxMessageLength
	}
	if cfg.MinMessagePause <= 0 {
		cfg.MinMessagePause = points.DefaultMinMessagePause
	}
	if cfg.MaxMessagePause <= 0 {
		cfg.MaxMessagePause = points.DefaultMaxMessagePause
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if len(cfg.BotAccounts) == 0 {
		cfg.BotAccounts = points.DefaultBotAccounts()
	}
	if len(cfg.Ledgers) == 0 {
		ledgers, err := ParseLedgers(defaultLedgerSpec)
		if err != nil {
			return err
		}
		cfg.Ledgers = ledgers
	}

	if !slices.Contains([]string{StoreDriverGORM, StoreDriverPGX}, cfg.StoreDriver) {
		return fmt.Errorf("store driver must be %s or %s, got %q", StoreDriverGORM, StoreDriverPGX, cfg.StoreDriver)
	}
	if cfg.StoreDriver == StoreDriverPGX && !IsPostgresURL(cfg.DatabaseURL) {
		return fmt.Errorf("store driver %s requires a postgres database url", StoreDriverPGX)
	}
	if cfg.MinMessagePause > cfg.MaxMessagePause {
		return fmt.Errorf("min message pause %s exceeds max %s", cfg.MinMessagePause, cfg.MaxMessagePause)
	}
	if (cfg.TwitchIRCUsername == "") != (cfg.TwitchIRCToken == "") {
		return fmt.Errorf("twitch irc username and token must be set together")
	}
	if cfg.TwitchIRCUsername != "" && strings.TrimSpace(cfg.TwitchChannel) == "" {
		return fmt.Errorf("twitch channel is required when twitch irc is enabled")
	}
	if (cfg.TwitchClientID == "") != (cfg.TwitchAppToken == "") {
		return fmt.Errorf("twitch client id and app token must be set together")
	}
	return nil
}

// TwitchIRCEnabled reports whether Twitch chat goes straight to IRC instead of through the host.
func (cfg Config) TwitchIRCEnabled() bool {
	return cfg.TwitchIRCUsername != ""
}

// LedgerNames returns the configured ledger names in declaration order.
func (cfg Config) LedgerNames() []string {
	names := make([]string, 0, len(cfg.Ledgers))
	for _, ledger := range cfg.Ledgers {
		names = append(names, ledger.Name)
	}
	return names
}

// ParseLedgers splits "name=unit" pairs separated by commas. A pair without a unit uses "points".
func ParseLedgers(raw string) ([]LedgerConfig, error) {
	ledgers := []LedgerConfig{}
	seen := map[string]struct{}{}
	for _, part := range ParseList(raw) {
		name, unit, _ := strings.Cut(part, ledgerUnitSeparator)
		name = strings.TrimSpace(name)
		unit = strings.TrimSpace(unit)
		if name == "" {
			return nil, fmt.Errorf("ledger entry %q has no name", part)
		}
		if _, exists := seen[name]; exists {
			return nil, fmt.Errorf("ledger %q is listed twice", name)
		}
		seen[name] = struct{}{}
		ledgers = append(ledgers, LedgerConfig{Name: name, Unit: defaultIfEmpty(unit, "points")})
	}
	return ledgers, nil
}

// ParseList splits comma-delimited values into a slice, dropping blanks.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

// ParseBotAccounts reads "platform=name" pairs into a BotAccounts map.
func ParseBotAccounts(raw string, platforms points.PlatformSet) (points.BotAccounts, error) {
	accounts := points.BotAccounts{}
	for _, part := range ParseList(raw) {
		rawPlatform, name, found := strings.Cut(part, ledgerUnitSeparator)
		if !found || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("bot account %q must look like platform=name", part)
		}
		platform, err := platforms.Parse(rawPlatform)
		if err != nil {
			return nil, err
		}
		accounts[platform] = strings.TrimSpace(name)
	}
	return accounts, nil
}

// IsPostgresURL reports whether the database url addresses Postgres.
func IsPostgresURL(raw string) bool {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(lowered, "postgres://") || strings.HasPrefix(lowered, "postgresql://")
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
