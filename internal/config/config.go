// Package config loads service settings from defaults, an optional YAML
// file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConf struct {
	Env            string `mapstructure:"env"`
	Port           int    `mapstructure:"port"`
	ShutdownSecond int    `mapstructure:"shutdown_seconds"`
}

type LogConf struct {
	Level string `mapstructure:"level"`
}

type LimitsConf struct {
	RateLimit        string `mapstructure:"rate_limit"`
	MaxMessages      int    `mapstructure:"max_messages"`
	MaxMessageLength int    `mapstructure:"max_message_length"`
	MaxBodyBytes     int    `mapstructure:"max_body_bytes"`
}

type CORSConf struct {
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

type RenderConf struct {
	Method         string `mapstructure:"method"`
	Width          int    `mapstructure:"width"`
	Theme          string `mapstructure:"theme"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type FetchConf struct {
	TimeoutSeconds int   `mapstructure:"timeout_seconds"`
	Concurrency    int   `mapstructure:"concurrency"`
	MaxBytes       int64 `mapstructure:"max_bytes"`
	Retries        int   `mapstructure:"retries"`
}

type CacheConf struct {
	Enabled       bool   `mapstructure:"enabled"`
	Size          int    `mapstructure:"size"`
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Prefix        string `mapstructure:"prefix"`
}

type BrowserConf struct {
	ExecPath       string `mapstructure:"exec_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type FontsConf struct {
	Regular string `mapstructure:"regular"`
	Medium  string `mapstructure:"medium"`
	Bold    string `mapstructure:"bold"`
	Italic  string `mapstructure:"italic"`
	Mono    string `mapstructure:"mono"`
	Emoji   string `mapstructure:"emoji"`
}

type Config struct {
	App     AppConf     `mapstructure:"app"`
	Log     LogConf     `mapstructure:"log"`
	Limits  LimitsConf  `mapstructure:"limits"`
	CORS    CORSConf    `mapstructure:"cors"`
	Render  RenderConf  `mapstructure:"render"`
	Fetch   FetchConf   `mapstructure:"fetch"`
	Cache   CacheConf   `mapstructure:"cache"`
	Browser BrowserConf `mapstructure:"browser"`
	Fonts   FontsConf   `mapstructure:"fonts"`

	// derived
	RateLimit       RateLimit
	ShutdownTimeout time.Duration
	RenderTimeout   time.Duration
	FetchTimeout    time.Duration
	BrowserTimeout  time.Duration
	CacheTTL        time.Duration
}

// RateLimit allows Count requests per Per for each client.
type RateLimit struct {
	Count int
	Per   time.Duration
}

func (r RateLimit) String() string {
	return fmt.Sprintf("%d per %s", r.Count, r.Per)
}

var defaults = map[string]any{
	"app.env":                   "production",
	"app.port":                  8080,
	"app.shutdown_seconds":      15,
	"log.level":                 "INFO",
	"limits.rate_limit":         "100 per hour",
	"limits.max_messages":       50,
	"limits.max_message_length": 2000,
	"limits.max_body_bytes":     4 << 20,
	"cors.allowed_origins":      "*",
	"render.method":             "canvas",
	"render.width":              800,
	"render.theme":              "dark",
	"render.timeout_seconds":    60,
	"fetch.timeout_seconds":     10,
	"fetch.concurrency":         8,
	"fetch.max_bytes":           10 << 20,
	"fetch.retries":             2,
	"cache.enabled":             true,
	"cache.size":                256,
	"cache.ttl_seconds":         3600,
	"cache.redis_addr":          "",
	"cache.redis_password":      "",
	"cache.redis_db":            0,
	"cache.prefix":              "chat2png:",
	"browser.exec_path":         "",
	"browser.timeout_seconds":   30,
	"fonts.regular":             "",
	"fonts.medium":              "",
	"fonts.bold":                "",
	"fonts.italic":              "",
	"fonts.mono":                "",
	"fonts.emoji":               "",
}

// legacyEnv maps the variable names of the first service release onto
// config keys. They win over CHAT2PNG_* variables.
var legacyEnv = map[string]string{
	"app.port":                  "PORT",
	"log.level":                 "LOG_LEVEL",
	"limits.rate_limit":         "RATE_LIMIT",
	"limits.max_messages":       "MAX_MESSAGES",
	"limits.max_message_length": "MAX_MESSAGE_LENGTH",
	"cors.allowed_origins":      "ALLOWED_ORIGINS",
}

// Load reads configuration. path may be empty; a missing .env file is not
// an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("CHAT2PNG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env, "CHAT2PNG_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, err
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.derive(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) derive() error {
	rl, err := ParseRateLimit(c.Limits.RateLimit)
	if err != nil {
		return err
	}
	c.RateLimit = rl
	if c.App.ShutdownSecond <= 0 {
		c.App.ShutdownSecond = 15
	}
	c.ShutdownTimeout = seconds(c.App.ShutdownSecond)
	c.RenderTimeout = seconds(c.Render.TimeoutSeconds)
	c.FetchTimeout = seconds(c.Fetch.TimeoutSeconds)
	c.BrowserTimeout = seconds(c.Browser.TimeoutSeconds)
	c.CacheTTL = seconds(c.Cache.TTLSeconds)
	return nil
}

// Development reports whether the console logger should be used.
func (c *Config) Development() bool {
	return strings.EqualFold(c.App.Env, "development")
}

// Origins splits the comma separated CORS origin list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORS.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

var rateUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRateLimit accepts "100 per hour", "100/hour" and "10 per 5 minutes".
func ParseRateLimit(s string) (RateLimit, error) {
	fail := func() (RateLimit, error) {
		return RateLimit{}, fmt.Errorf("config: invalid rate limit %q", s)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	var count, rest string
	var ok bool
	if count, rest, ok = strings.Cut(s, "/"); !ok {
		if count, rest, ok = strings.Cut(s, " per "); !ok {
			return fail()
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return fail()
	}
	fields := strings.Fields(rest)
	mult := 1
	switch len(fields) {
	case 1:
	case 2:
		if mult, err = strconv.Atoi(fields[0]); err != nil || mult <= 0 {
			return fail()
		}
		fields = fields[1:]
	default:
		return fail()
	}
	unit, ok := rateUnits[strings.TrimSuffix(fields[0], "s")]
	if !ok {
		return fail()
	}
	return RateLimit{Count: n, Per: time.Duration(mult) * unit}, nil
}
