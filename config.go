package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/prayush21/connect-a-fun-social-game-sub002/games/signull"
)

type Config struct {
	bind           string
	db             string
	directGuesses  int
	maxPlayers     int
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	rateLimit      float64
	secret         string
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	// play
	name string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxPlayers < signull.MinGuessers+1 || c.maxPlayers > signull.MaxRoomPlayers {
		return fmt.Errorf("invalid max players (must be between %d-%d inclusive): %d", signull.MinGuessers+1, signull.MaxRoomPlayers, c.maxPlayers)
	}
	if c.directGuesses < 0 {
		return fmt.Errorf("invalid direct guesses (must not be negative): %d", c.directGuesses)
	}
	if c.rateLimit <= 0 {
		return fmt.Errorf("invalid rate limit (must be positive): %v", c.rateLimit)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// roomSettings are the settings every new room starts with.
func (c *Config) roomSettings() signull.Settings {
	s := signull.DefaultSettings()
	s.MaxPlayers = c.maxPlayers
	s.DirectGuesses = c.directGuesses
	return s
}

// bindEnv lets every flag of fs be set from SIGNULL_<FLAG>.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SIGNULL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "signull",
		Short:         "Serves Signull, a real-time word-guessing party game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SIGNULL_BIND)")
	fs.StringVar(&cfg.db, "db", "", "path to sqlite database for room snapshots, in-memory if empty (env: SIGNULL_DB)")
	fs.IntVar(&cfg.directGuesses, "direct-guesses", signull.DefaultDirectGuesses, "direct guesses per round for new rooms (env: SIGNULL_DIRECT_GUESSES)")
	fs.IntVar(&cfg.maxPlayers, "max-players", signull.DefaultMaxPlayers, "player cap for new rooms (env: SIGNULL_MAX_PLAYERS)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 2*time.Minute, "time before disconnected players leave their room (env: SIGNULL_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SIGNULL_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SIGNULL_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SIGNULL_PROFILE)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 5, "commands per second allowed per connection (env: SIGNULL_RATE_LIMIT)")
	fs.StringVar(&cfg.secret, "secret", "", "key used to sign player cookies, random if empty (env: SIGNULL_SECRET)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are unloaded (env: SIGNULL_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SIGNULL_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SIGNULL_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SIGNULL_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SIGNULL_VERSION)")

	bindEnv(v, fs)

	cmd.AddCommand(newPlayCmd(cfg, v))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("signull v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func newPlayCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <room url>",
		Short: "Plays in a room from the terminal.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), cfg, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&cfg.name, "name", "n", "", "name to join with, if not already in the room (env: SIGNULL_NAME)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SIGNULL_VERBOSE)")

	bindEnv(v, fs)

	return cmd
}
