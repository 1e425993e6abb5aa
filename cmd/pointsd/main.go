package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/points/internal/config"
	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagListenAddr        = "listen-addr"
	flagGRPCListenAddr    = "grpc-listen-addr"
	flagDatabaseURL       = "database-url"
	flagStoreDriver       = "store-driver"
	flagCatalogPath       = "catalog-path"
	flagLedgers           = "ledgers"
	flagHostURL           = "host-url"
	flagHostPassword      = "host-password"
	flagHostTimeout       = "host-timeout"
	flagMaxMessageLength  = "max-message-length"
	flagMinMessagePause   = "min-message-pause"
	flagMaxMessagePause   = "max-message-pause"
	flagBotAccounts       = "bot-accounts"
	flagTwitchIRCUsername = "twitch-irc-username"
	flagTwitchIRCToken    = "twitch-irc-token"
	flagTwitchChannel     = "twitch-channel"
	flagTwitchClientID    = "twitch-client-id"
	flagTwitchAppToken    = "twitch-app-token"
	flagYouTubeAPIKey     = "youtube-api-key"
	flagAllowedOrigins    = "allowed-origins"
	flagJWTSigningKey     = "jwt-signing-key"
	flagJWTIssuer         = "jwt-issuer"
	flagConfigFile        = "config"
	envPrefix             = "POINTSD"
)

var boundFlags = []string{
	flagListenAddr, flagGRPCListenAddr, flagDatabaseURL, flagStoreDriver, flagCatalogPath, flagLedgers,
	flagHostURL, flagHostPassword, flagHostTimeout,
	flagMaxMessageLength, flagMinMessagePause, flagMaxMessagePause, flagBotAccounts,
	flagTwitchIRCUsername, flagTwitchIRCToken, flagTwitchChannel, flagTwitchClientID, flagTwitchAppToken, flagYouTubeAPIKey,
	flagAllowedOrigins, flagJWTSigningKey, flagJWTIssuer,
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pointsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "pointsd",
		Short:         "Chat points ledger and redemption service for a streaming host",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *cfg)
		},
	}

	flags := cmd.Flags()
	flags.String(flagConfigFile, "", "optional YAML config file keyed by flag name")
	flags.String(flagListenAddr, "", "HTTP listen address (default :8085)")
	flags.String(flagGRPCListenAddr, "", "gRPC health listen address (default :7085)")
	flags.String(flagDatabaseURL, "", "postgres:// url, sqlite:// url, or sqlite file path (default points.db)")
	flags.String(flagStoreDriver, config.StoreDriverGORM, "balance store driver: gorm or pgx")
	flags.String(flagCatalogPath, "", "redeem catalog YAML file (default configs/catalogs.yaml)")
	flags.String(flagLedgers, "", "comma-separated name=unit ledger list (default vp=venture points,pp=play points)")
	flags.String(flagHostURL, "", "streaming host WebSocket url (default ws://127.0.0.1:8080/)")
	flags.String(flagHostPassword, "", "streaming host WebSocket password")
	flags.Duration(flagHostTimeout, 0, "timeout for host requests (default 5s)")
	flags.Int(flagMaxMessageLength, points.DefaultMaxMessageLength, "longest chat message before splitting")
	flags.Duration(flagMinMessagePause, points.DefaultMinMessagePause, "shortest pause between split message parts")
	flags.Duration(flagMaxMessagePause, points.DefaultMaxMessagePause, "longest pause between split message parts")
	flags.String(flagBotAccounts, "", "comma-separated platform=name bot account list")
	flags.String(flagTwitchIRCUsername, "", "Twitch IRC username; enables direct Twitch chat")
	flags.String(flagTwitchIRCToken, "", "Twitch IRC OAuth token")
	flags.String(flagTwitchChannel, "", "Twitch channel to chat in")
	flags.String(flagTwitchClientID, "", "Twitch Helix client id for username lookups")
	flags.String(flagTwitchAppToken, "", "Twitch Helix app access token")
	flags.String(flagYouTubeAPIKey, "", "YouTube Data API key for handle lookups")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	flags.String(flagJWTSigningKey, "", "HS256 key for API bearer tokens; empty disables auth")
	flags.String(flagJWTIssuer, "", "expected bearer token issuer (default streamerbot)")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range boundFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}
	if err := v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}
	if configFile, _ := cmd.Flags().GetString(flagConfigFile); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	ledgers, err := config.ParseLedgers(v.GetString(flagLedgers))
	if err != nil {
		return err
	}
	bots, err := config.ParseBotAccounts(v.GetString(flagBotAccounts), points.DefaultPlatforms())
	if err != nil {
		return err
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.StoreDriver = strings.TrimSpace(v.GetString(flagStoreDriver))
	cfg.CatalogPath = strings.TrimSpace(v.GetString(flagCatalogPath))
	cfg.Ledgers = ledgers
	cfg.HostURL = strings.TrimSpace(v.GetString(flagHostURL))
	cfg.HostPassword = v.GetString(flagHostPassword)
	cfg.HostTimeout = v.GetDuration(flagHostTimeout)
	cfg.MaxMessageLength = v.GetInt(flagMaxMessageLength)
	cfg.MinMessagePause = v.GetDuration(flagMinMessagePause)
	cfg.MaxMessagePause = v.GetDuration(flagMaxMessagePause)
	cfg.BotAccounts = bots
	cfg.TwitchIRCUsername = strings.TrimSpace(v.GetString(flagTwitchIRCUsername))
	cfg.TwitchIRCToken = strings.TrimSpace(v.GetString(flagTwitchIRCToken))
	cfg.TwitchChannel = strings.TrimSpace(v.GetString(flagTwitchChannel))
	cfg.TwitchClientID = strings.TrimSpace(v.GetString(flagTwitchClientID))
	cfg.TwitchAppToken = strings.TrimSpace(v.GetString(flagTwitchAppToken))
	cfg.YouTubeAPIKey = strings.TrimSpace(v.GetString(flagYouTubeAPIKey))
	cfg.AllowedOrigins = config.ParseList(v.GetString(flagAllowedOrigins))
	cfg.JWTSigningKey = v.GetString(flagJWTSigningKey)
	cfg.JWTIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))

	return cfg.Validate()
}
