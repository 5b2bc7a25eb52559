package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prayush21/connect-a-fun-social-game-sub002/games/signull"
)

func testConfig() *Config {
	return &Config{
		bind:           "127.0.0.1",
		port:           8080,
		maxPlayers:     signull.DefaultMaxPlayers,
		directGuesses:  signull.DefaultDirectGuesses,
		playerTimeout:  time.Minute,
		sessionTimeout: 0,
		rateLimit:      100,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "tls pair", mutate: func(c *Config) { c.tlsCert, c.tlsKey = "c.pem", "k.pem" }},
		{name: "cert without key", mutate: func(c *Config) { c.tlsCert = "c.pem" }, wantErr: "tls-key"},
		{name: "port too high", mutate: func(c *Config) { c.port = 70000 }, wantErr: "invalid port"},
		{name: "too few players", mutate: func(c *Config) { c.maxPlayers = 2 }, wantErr: "max players"},
		{name: "too many players", mutate: func(c *Config) { c.maxPlayers = signull.MaxRoomPlayers + 1 }, wantErr: "max players"},
		{name: "negative guesses", mutate: func(c *Config) { c.directGuesses = -1 }, wantErr: "direct guesses"},
		{name: "no rate", mutate: func(c *Config) { c.rateLimit = 0 }, wantErr: "rate limit"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigRoomSettings(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.maxPlayers = 8
	cfg.directGuesses = 1

	s := cfg.roomSettings()
	assert.Equal(t, 8, s.MaxPlayers)
	assert.Equal(t, 1, s.DirectGuesses)
	assert.Equal(t, signull.PercentQuorum(signull.DefaultMajority), s.Quorum)
}

func TestConfigScheme(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	assert.Equal(t, "http", cfg.scheme())
	cfg.tlsCert, cfg.tlsKey = "c.pem", "k.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestNewCmdReadsEnv(t *testing.T) {
	t.Setenv("SIGNULL_MAX_PLAYERS", "20")
	t.Setenv("SIGNULL_DB", "/tmp/signull.db")

	cfg := &Config{}
	cmd := newCmd(cfg)
	require.NotNil(t, cmd)

	assert.Equal(t, 20, cfg.maxPlayers)
	assert.Equal(t, "/tmp/signull.db", cfg.db)
	assert.Equal(t, 8080, cfg.port)

	play, _, err := cmd.Find([]string{"play"})
	require.NoError(t, err)
	assert.Equal(t, "play", play.Name())
}
