package lobby

import (
	"time"

	"github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

const (
	DefaultPlayerLimit      = 5
	DefaultInvitationExpiry = time.Hour
	DefaultMatchInterval    = time.Second
	DefaultStoreTTL         = 5*time.Hour + 30*time.Minute
	DefaultLogLevel         = "info"
)

// Config holds the engine configuration. Every field can be set via the named
// environment variable; unset variables keep the defaults. Durations are given as
// strings in time.ParseDuration syntax and parsed during Validate.
type Config struct {
	RedisAddress     string `config:"REDIS_ADDRESS"`
	RedisPassword    string `config:"REDIS_PASSWORD"`
	Namespace        string `config:"LOBBY_NAMESPACE"`
	Port             string `config:"LOBBY_PORT"`
	PlayerLimit      int    `config:"TEAM_PLAYER_LIMIT"`
	InvitationLink   string `config:"INVITATION_LINK"`
	InvitationSecret string `config:"INVITATION_SECRET"`
	InvitationExpiry string `config:"INVITATION_EXPIRY"`
	MatchInterval    string `config:"MATCH_INTERVAL"`
	StoreTTL         string `config:"STORE_TTL"`
	LogLevel         string `config:"LOBBY_LOG_LEVEL"`

	// Parsed during Validate.
	invitationExpiry time.Duration
	matchInterval    time.Duration
	storeTTL         time.Duration
	logLevel         zerolog.Level
}

var defaultConfig = Config{
	RedisAddress:     "localhost:6379",
	RedisPassword:    "",
	Namespace:        "lobby",
	Port:             "4040",
	PlayerLimit:      DefaultPlayerLimit,
	InvitationLink:   "http://localhost:4040/teams/invitation/accept",
	InvitationSecret: "",
	InvitationExpiry: "1h",
	MatchInterval:    "1s",
	StoreTTL:         "5h30m",
	LogLevel:         DefaultLogLevel,
}

func loadConfig() (*Config, error) {
	cfg := defaultConfig
	if err := config.FromEnv().To(&cfg); err != nil {
		return nil, eris.Wrap(err, "failed to load config from environment")
	}
	return &cfg, nil
}

// Validate checks the configuration and parses the duration and log level fields.
func (c *Config) Validate() error {
	if c.RedisAddress == "" {
		return eris.New("redis address cannot be empty")
	}
	if c.Port == "" {
		return eris.New("port cannot be empty")
	}
	if c.PlayerLimit < 1 {
		return eris.New("team player limit must be at least 1")
	}
	if c.InvitationSecret == "" {
		return eris.New("invitation secret cannot be empty")
	}
	if c.InvitationLink == "" {
		return eris.New("invitation link cannot be empty")
	}

	var err error
	if c.invitationExpiry, err = time.ParseDuration(c.InvitationExpiry); err != nil {
		return eris.Wrap(err, "invalid invitation expiry")
	}
	if c.matchInterval, err = time.ParseDuration(c.MatchInterval); err != nil {
		return eris.Wrap(err, "invalid match interval")
	}
	if c.matchInterval <= 0 {
		return eris.New("match interval must be positive")
	}
	if c.storeTTL, err = time.ParseDuration(c.StoreTTL); err != nil {
		return eris.Wrap(err, "invalid store ttl")
	}
	if c.storeTTL <= 0 {
		return eris.New("store ttl must be positive")
	}
	if c.logLevel, err = zerolog.ParseLevel(c.LogLevel); err != nil {
		return eris.Wrap(err, "invalid log level")
	}
	return nil
}
