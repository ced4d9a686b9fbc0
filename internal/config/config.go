package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/example/resy-autobook/internal/domain/reservation"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyEmail          = "email"
	KeyPassword       = "password"
	KeyVenueURL       = "venue-url"
	KeyDate           = "date"
	KeyPartySize      = "party-size"
	KeyTime           = "time"
	KeyExactTime      = "exact-time"
	KeyHeadless       = "headless"
	KeyNoHeadless     = "no-headless"
	KeyPollInterval   = "poll-interval"
	KeyMaxPollMinutes = "max-poll-minutes"
	KeyTimeoutMS      = "timeout-ms"
	KeyBrowserBin     = "browser-bin"

	keyDatabaseURL  = "database-url"
	keySessionFile  = "session-file"
	keySessionHash  = "session-hash-key"
	keySessionBlock = "session-block-key"
	keyLogLevel     = "log-level"
	keyOTLPEndpoint = "otlp-endpoint"
)

const DateLayout = "2006-01-02"

// Config is the resolved, validated settings for one reservation run.
type Config struct {
	Email     string
	Password  string
	VenueURL  string
	Date      string
	PartySize int

	TimePreference string
	ExactTime      bool
	Headless       bool
	BrowserBin     string

	PollInterval time.Duration
	MaxPoll      time.Duration
	StepTimeout  time.Duration

	SessionFile     string
	SessionHashKey  []byte
	SessionBlockKey []byte

	Ambient
}

// Ambient holds the environment-only settings every subcommand shares.
type Ambient struct {
	DatabaseURL  string
	OTLPEndpoint string
	Debug        bool
}

var envNames = map[string]string{
	KeyEmail:          "RESY_EMAIL",
	KeyPassword:       "RESY_PASSWORD",
	KeyVenueURL:       "RESY_VENUE_URL",
	KeyDate:           "RESY_DATE",
	KeyPartySize:      "RESY_PARTY_SIZE",
	KeyTime:           "RESY_TIME_PREFERENCE",
	KeyExactTime:      "RESY_EXACT_TIME",
	KeyHeadless:       "RESY_HEADLESS",
	KeyPollInterval:   "RESY_POLL_INTERVAL_SEC",
	KeyMaxPollMinutes: "RESY_MAX_POLL_MINUTES",
	KeyTimeoutMS:      "RESY_TIMEOUT_MS",
	KeyBrowserBin:     "RESY_BROWSER_BIN",
	keyDatabaseURL:    "DATABASE_URL",
	keySessionFile:    "RESY_SESSION_FILE",
	keySessionHash:    "RESY_SESSION_HASH_KEY",
	keySessionBlock:   "RESY_SESSION_BLOCK_KEY",
	keyLogLevel:       "LOG_LEVEL",
	keyOTLPEndpoint:   "OTEL_EXPORTER_OTLP_ENDPOINT",
}

var defaults = map[string]any{
	KeyPartySize:      2,
	KeyExactTime:      false,
	KeyHeadless:       true,
	KeyPollInterval:   2,
	KeyMaxPollMinutes: 5,
	KeyTimeoutMS:      120000,
}

// RegisterFlags adds the booking flags to flags. Values given on the command line win over
// the RESY_* environment variables, which win over the defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String(KeyEmail, "", "Resy account email")
	flags.String(KeyPassword, "", "Resy account password")
	flags.String(KeyVenueURL, "", "full Resy venue URL, e.g. https://resy.com/cities/ny/restaurant")
	flags.String(KeyDate, "", "reservation date YYYY-MM-DD")
	flags.Int(KeyPartySize, 2, "party size")
	flags.String(KeyTime, "", `preferred time like "7:30 PM"`)
	flags.Bool(KeyExactTime, false, "require an exact time match")
	flags.Bool(KeyHeadless, true, "run the browser headless")
	flags.Bool(KeyNoHeadless, false, "run with a visible browser")
	flags.Int(KeyPollInterval, 2, "seconds between refresh attempts")
	flags.Int(KeyMaxPollMinutes, 5, "max minutes to keep polling")
	flags.Int(KeyTimeoutMS, 120000, "per-step timeout in milliseconds")
	flags.String(KeyBrowserBin, "", "path to a Chromium binary (downloaded when empty)")
}

// LoadDotenv reads KEY=VALUE pairs from path into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load resolves flags and environment into a Config and validates it.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, err
		}
	}
	for key, def := range defaults {
		v.SetDefault(key, def)
	}
	if flags != nil {
		for key := range envNames {
			if f := flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	cfg := Config{
		Email:          getString(v, KeyEmail),
		Password:       getString(v, KeyPassword),
		VenueURL:       getString(v, KeyVenueURL),
		Date:           getString(v, KeyDate),
		TimePreference: getString(v, KeyTime),
		ExactTime:      ParseBool(getString(v, KeyExactTime)),
		Headless:       ParseBool(getString(v, KeyHeadless)),
		BrowserBin:     getString(v, KeyBrowserBin),
		SessionFile:    getString(v, keySessionFile),
		Ambient:        ambientFrom(v),
	}
	if flags != nil {
		if f := flags.Lookup(KeyNoHeadless); f != nil && f.Changed && ParseBool(f.Value.String()) {
			cfg.Headless = false
		}
	}

	var err error
	cfg.PartySize, err = getInt(v, KeyPartySize)
	if err != nil {
		// a malformed RESY_PARTY_SIZE falls back to the default party
		cfg.PartySize = defaults[KeyPartySize].(int)
	}
	pollSec, err := getInt(v, KeyPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval = time.Duration(pollSec) * time.Second
	maxMinutes, err := getInt(v, KeyMaxPollMinutes)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxPoll = time.Duration(maxMinutes) * time.Minute
	timeoutMS, err := getInt(v, KeyTimeoutMS)
	if err != nil {
		return Config{}, err
	}
	cfg.StepTimeout = time.Duration(timeoutMS) * time.Millisecond

	if cfg.SessionFile != "" {
		cfg.SessionHashKey, err = decodeB64(v, keySessionHash)
		if err != nil {
			return Config{}, err
		}
		cfg.SessionBlockKey, err = decodeB64(v, keySessionBlock)
		if err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadAmbient reads DATABASE_URL, LOG_LEVEL and OTEL_EXPORTER_OTLP_ENDPOINT.
func LoadAmbient() Ambient {
	v := viper.New()
	for _, key := range []string{keyDatabaseURL, keyLogLevel, keyOTLPEndpoint} {
		_ = v.BindEnv(key, envNames[key])
	}
	return ambientFrom(v)
}

func ambientFrom(v *viper.Viper) Ambient {
	return Ambient{
		DatabaseURL:  getString(v, keyDatabaseURL),
		OTLPEndpoint: getString(v, keyOTLPEndpoint),
		Debug:        strings.EqualFold(getString(v, keyLogLevel), "debug"),
	}
}

// Request is the reservation the run is trying to book.
func (c Config) Request() reservation.Request {
	return reservation.Request{
		VenueURL:   c.VenueURL,
		Date:       c.Date,
		PartySize:  c.PartySize,
		Preference: c.TimePreference,
		ExactOnly:  c.ExactTime,
	}
}

// MissingError lists every required setting that was not provided.
type MissingError struct {
	Fields []string
}

func (e *MissingError) Error() string {
	return "missing required: " + strings.Join(e.Fields, ", ")
}

func (c Config) Validate() error {
	var missing []string
	if c.Email == "" {
		missing = append(missing, "--email or RESY_EMAIL")
	}
	if c.Password == "" {
		missing = append(missing, "--password or RESY_PASSWORD")
	}
	if c.VenueURL == "" {
		missing = append(missing, "--venue-url or RESY_VENUE_URL")
	}
	if c.Date == "" {
		missing = append(missing, "--date or RESY_DATE")
	}
	if len(missing) > 0 {
		return &MissingError{Fields: missing}
	}

	if _, err := time.Parse(DateLayout, c.Date); err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", c.Date)
	}
	if c.PartySize < 1 {
		return fmt.Errorf("party size must be >= 1")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll interval must be >= 1 second")
	}
	if c.MaxPoll < 0 {
		return fmt.Errorf("max poll minutes must be >= 0")
	}
	if c.StepTimeout < time.Millisecond {
		return fmt.Errorf("timeout must be >= 1ms")
	}
	return nil
}

// ParseBool reports whether s is one of 1/true/yes/y, ignoring case and surrounding space.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func getInt(v *viper.Viper, key string) (int, error) {
	s := getString(v, key)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", envNames[key], s)
	}
	return n, nil
}

func decodeB64(v *viper.Viper, key string) ([]byte, error) {
	s := getString(v, key)
	if s == "" {
		return nil, fmt.Errorf("%s is required when RESY_SESSION_FILE is set (base64)", envNames[key])
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", envNames[key], err)
	}
	return b, nil
}
