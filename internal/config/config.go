package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Broker     BrokerConfig     `yaml:"broker"`
	Game       GameConfig       `yaml:"game"`
	Preload    PreloadConfig    `yaml:"preload"`
	Extraction ExtractionConfig `yaml:"extraction"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Rooms      RoomsConfig      `yaml:"rooms"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:""`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_URL" env-default:""`
}

type RedisConfig struct {
	Address  string `yaml:"address" env:"REDIS_ADDRESS" env-default:""`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// BrokerConfig enables the optional STOMP mirror of room events.
type BrokerConfig struct {
	Address     string `yaml:"address" env:"BROKER_ADDRESS" env-default:""`
	Login       string `yaml:"login" env:"BROKER_LOGIN" env-default:""`
	Passcode    string `yaml:"passcode" env:"BROKER_PASSCODE" env-default:""`
	TopicPrefix string `yaml:"topic_prefix" env:"BROKER_TOPIC_PREFIX" env-default:"/topic/clipguess.room."`
}

type GameConfig struct {
	MinRounds      int           `yaml:"min_rounds" env:"GAME_MIN_ROUNDS" env-default:"10"`
	MaxRounds      int           `yaml:"max_rounds" env:"PRELOAD_INITIAL_VIDEOS" env-default:"50"`
	BasePoints     int           `yaml:"base_points" env:"GAME_BASE_POINTS" env-default:"100"`
	StreakBonus    int           `yaml:"streak_bonus" env:"GAME_STREAK_BONUS" env-default:"50"`
	RevealDelay    time.Duration `yaml:"reveal_delay" env:"GAME_REVEAL_DELAY" env-default:"2500ms"`
	NextRoundDelay time.Duration `yaml:"next_round_delay" env:"GAME_NEXT_ROUND_DELAY" env-default:"1500ms"`
	DedupeWindow   time.Duration `yaml:"dedupe_window" env:"GAME_DEDUPE_WINDOW" env-default:"2500ms"`
	MaxAvatarBytes int           `yaml:"max_avatar_bytes" env:"GAME_MAX_AVATAR_BYTES" env-default:"500000"`
}

type PreloadConfig struct {
	Workers         int           `yaml:"workers" env:"SERVER_PRELOAD_WORKERS" env-default:"2"`
	MinBeforeStart  int           `yaml:"min_before_start" env:"PRELOAD_MIN_BEFORE_START" env-default:"2"`
	MaxReplacements int           `yaml:"max_replacements" env:"PRELOAD_MAX_REPLACEMENTS" env-default:"3"`
	VideoTimeout    time.Duration `yaml:"video_timeout" env:"SERVER_PRELOAD_VIDEO_TIMEOUT" env-default:"120s"`
	CacheMaxRooms   int           `yaml:"cache_max_rooms" env:"PRELOAD_CACHE_MAX_ROOMS" env-default:"5"`
	SparePoolExtra  int           `yaml:"spare_pool_extra" env:"PRELOAD_SPARE_POOL_EXTRA" env-default:"50"`
}

type ExtractionConfig struct {
	Concurrency    int           `yaml:"concurrency" env:"EXTRACT_CONCURRENT" env-default:"2"`
	Timeout        time.Duration `yaml:"timeout" env:"VIDEO_EXTRACT_TIMEOUT" env-default:"30s"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"EXTRACT_REQUEST_TIMEOUT" env-default:"15s"`
	UserAgent      string        `yaml:"user_agent" env:"EXTRACT_USER_AGENT" env-default:""`
	AllowedHosts   []string      `yaml:"allowed_hosts" env:"EXTRACT_ALLOWED_HOSTS" env-default:""`
}

type RateLimitConfig struct {
	Window     time.Duration `yaml:"window" env:"VIDEO_RATE_LIMIT_WINDOW" env-default:"120s"`
	Max        int           `yaml:"max" env:"VIDEO_RATE_LIMIT_MAX" env-default:"80"`
	MaxBuckets int           `yaml:"max_buckets" env:"RATE_LIMIT_MAX_BUCKETS" env-default:"10000"`
	// Per-connection realtime command throttle.
	CommandsPerSecond float64 `yaml:"commands_per_second" env:"WS_COMMANDS_PER_SECOND" env-default:"20"`
	CommandBurst      int     `yaml:"command_burst" env:"WS_COMMAND_BURST" env-default:"40"`
}

type RoomsConfig struct {
	IdleTTL        time.Duration `yaml:"idle_ttl" env:"ROOM_IDLE_TTL" env-default:"2h"`
	SweepInterval  time.Duration `yaml:"sweep_interval" env:"ROOM_SWEEP_INTERVAL" env-default:"5m"`
	ImportTokenTTL time.Duration `yaml:"import_token_ttl" env:"IMPORT_TOKEN_TTL" env-default:"15m"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

// MustLoadEnv builds the config from environment variables only.
func MustLoadEnv() *Config {
	var cfg Config

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic("cannot read env config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":3000"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"*"}
	}
	if c.Game.MaxRounds <= 0 {
		c.Game.MaxRounds = 50
	}
	if c.Game.MinRounds <= 0 || c.Game.MinRounds > c.Game.MaxRounds {
		c.Game.MinRounds = min(10, c.Game.MaxRounds)
	}
	if c.Preload.Workers <= 0 {
		c.Preload.Workers = 2
	}
	if c.Preload.CacheMaxRooms <= 0 {
		c.Preload.CacheMaxRooms = 5
	}
	if c.Extraction.Concurrency <= 0 {
		c.Extraction.Concurrency = 2
	}
	if c.Extraction.UserAgent == "" {
		c.Extraction.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if len(c.Extraction.AllowedHosts) == 0 {
		c.Extraction.AllowedHosts = []string{"tiktok.com", "vm.tiktok.com", "vt.tiktok.com"}
	}
	if c.RateLimit.Max <= 0 {
		c.RateLimit.Max = 80
	}
	if c.RateLimit.MaxBuckets <= 0 {
		c.RateLimit.MaxBuckets = 10000
	}
	if c.RateLimit.CommandsPerSecond <= 0 {
		c.RateLimit.CommandsPerSecond = 20
	}
	if c.RateLimit.CommandBurst <= 0 {
		c.RateLimit.CommandBurst = 40
	}
}
