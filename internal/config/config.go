package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Port          int
	AllowedOrigin string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	QuizDir       string
	TimerDuration int // seconds
	RevealPause   time.Duration
	RoomTTL       time.Duration
	LogLevel      string
}

var defaults = map[string]any{
	"port":           8080,
	"allowed_origin": "*",
	"database_url":   "",
	"redis_addr":     "",
	"redis_password": "",
	"quiz_dir":       "",
	"timer_duration": 15,
	"reveal_pause":   "3s",
	"room_ttl":       "0s",
	"log_level":      "info",
}

// New returns a viper instance reading defaults and the environment.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from the environment only.
func Load() Config {
	return FromViper(New())
}

// BindFlags registers the command line flags and binds them into v. Flag
// names use dashes, keys and env vars use underscores.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.IntP("port", "p", 8080, "port to listen on (env: PORT)")
	fs.String("allowed-origin", "*", "origin allowed for CORS and websocket upgrades (env: ALLOWED_ORIGIN)")
	fs.String("database-url", "", "postgres DSN for the results archive (env: DATABASE_URL)")
	fs.String("redis-addr", "", "redis address for the leaderboard mirror (env: REDIS_ADDR)")
	fs.String("redis-password", "", "redis password (env: REDIS_PASSWORD)")
	fs.String("quiz-dir", "", "directory of extra quiz JSON files (env: QUIZ_DIR)")
	fs.Int("timer-duration", 15, "default seconds per question (env: TIMER_DURATION)")
	fs.String("reveal-pause", "3s", "pause between reveal and next question (env: REVEAL_PAUSE)")
	fs.String("room-ttl", "0s", "age after which finished rooms are discarded, 0 keeps them (env: ROOM_TTL)")
	fs.String("log-level", "info", "debug, info, warn or error (env: LOG_LEVEL)")

	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if _, ok := defaults[key]; !ok {
			return
		}
		_ = v.BindPFlag(key, f)
		_ = v.BindEnv(key, strings.ToUpper(key))
	})
}

// FromViper builds a Config. Unparseable numbers and durations fall back
// to their defaults.
func FromViper(v *viper.Viper) Config {
	return Config{
		Port:          getInt(v, "port"),
		AllowedOrigin: getString(v, "allowed_origin"),
		DatabaseURL:   v.GetString("database_url"),
		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		QuizDir:       v.GetString("quiz_dir"),
		TimerDuration: getInt(v, "timer_duration"),
		RevealPause:   getDuration(v, "reveal_pause"),
		RoomTTL:       getDuration(v, "room_ttl"),
		LogLevel:      strings.ToLower(getString(v, "log_level")),
	}
}

// LoadEnvFile loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	return nil
}

func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Origins returns the allowed origin list for CORS.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getString(v *viper.Viper, key string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return fmt.Sprint(defaults[key])
}

func getInt(v *viper.Viper, key string) int {
	fallback := defaults[key].(int)
	if i, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err == nil && i > 0 {
		return i
	}
	return fallback
}

// getDuration accepts Go durations ("3s") or plain seconds ("3").
func getDuration(v *viper.Viper, key string) time.Duration {
	fallback, _ := time.ParseDuration(defaults[key].(string))
	s := strings.TrimSpace(v.GetString(key))
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
