package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"ztime/pkg/ztime"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr          string  // empty disables the HTTP API
		RatePerSecond float64 `validate:"gte=0"` // per client IP, 0 disables
		RateBurst     int     `validate:"gte=0"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Heartbeat struct {
		At     string `validate:"required,ztexpr"`
		Every  string `validate:"omitempty,ztduration"`
		Jitter string `validate:"omitempty,ztduration"`
	}
	ShutdownTimeout string `validate:"required,ztduration"`
}

// HeartbeatEvery returns the parsed heartbeat period (zero runs the heartbeat once).
func (c Config) HeartbeatEvery() ztime.Duration {
	return mustDuration(c.Heartbeat.Every)
}

// HeartbeatJitter returns the parsed heartbeat jitter amplitude.
func (c Config) HeartbeatJitter() ztime.Duration {
	return mustDuration(c.Heartbeat.Jitter)
}

// Shutdown returns the graceful shutdown timeout.
func (c Config) Shutdown() time.Duration {
	return mustDuration(c.ShutdownTimeout).Std()
}

// mustDuration parses text already accepted by the ztduration tag.
func mustDuration(text string) ztime.Duration {
	if text == "" {
		return ztime.Duration{}
	}
	d, err := ztime.ParseDuration(text)
	if err != nil {
		panic(fmt.Sprintf("config: unvalidated duration %q: %v", text, err))
	}
	return d
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterTags(v); err != nil {
		panic(err)
	}
	return v
}

// RegisterTags registers the ztexpr (time expression) and ztduration
// (duration text) validation tags on v.
func RegisterTags(v *validator.Validate) error {
	if err := v.RegisterValidation("ztexpr", func(fl validator.FieldLevel) bool {
		_, err := ztime.Parse(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("ztduration", func(fl validator.FieldLevel) bool {
		_, err := ztime.ParseDuration(fl.Field().String())
		return err == nil
	})
}

// Validator returns the validator with the ztexpr and ztduration tags registered.
func Validator() *validator.Validate {
	return validate
}

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = os.Getenv("HTTP_ADDR")
	var err error
	if c.HTTP.RatePerSecond, err = strconv.ParseFloat(getenv("HTTP_RATE", "20"), 64); err != nil {
		return Config{}, fmt.Errorf("HTTP_RATE: %w", err)
	}
	if c.HTTP.RateBurst, err = strconv.Atoi(getenv("HTTP_BURST", "40")); err != nil {
		return Config{}, fmt.Errorf("HTTP_BURST: %w", err)
	}
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/ztimed.log")
	c.Heartbeat.At = getenv("HEARTBEAT_AT", "now")
	c.Heartbeat.Every = getenv("HEARTBEAT_EVERY", "1m")
	c.Heartbeat.Jitter = os.Getenv("HEARTBEAT_JITTER")
	c.ShutdownTimeout = getenv("SHUTDOWN_TIMEOUT", "5s")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
