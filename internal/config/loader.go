package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "CLUBPORTAL_"

// minSessionSecretLength is the shortest secret accepted for deriving the
// cookie keys.
const minSessionSecretLength = 32

// maxRateLimitPerMinute keeps the refill interval at one millisecond or more.
const maxRateLimitPerMinute = 60000

// Config captures environment driven configuration values for the club portal.
type Config struct {
	HTTPPort   int
	SQLitePath string

	SessionSecret           string
	SessionLifetime         time.Duration
	SessionRefreshThreshold time.Duration
	CookieSecure            bool

	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string
	OAuthHostedDomain string

	RedisAddr          string
	RateLimitPerMinute int
	RateLimitBurst     int
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// Load reads an optional dotenv file and then parses configuration values
// from the process environment.
//
// The dotenv file is CLUBPORTAL_ENV_FILE when set, otherwise ".env" in the
// working directory. Variables already present in the environment win over
// the file. Missing required values and invalid values are collected and
// reported together.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}
	return FromEnv(os.LookupEnv)
}

func loadEnvFile() error {
	path, explicit := os.LookupEnv(envPrefix + "ENV_FILE")
	path = strings.TrimSpace(path)
	if path == "" {
		path = ".env"
		explicit = false
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// FromEnv builds a Config from the lookup function, applying defaults for
// optional values.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Config{
		HTTPPort:                8080,
		SQLitePath:              "clubportal.db",
		SessionLifetime:         7 * 24 * time.Hour,
		SessionRefreshThreshold: 24 * time.Hour,
		CookieSecure:            true,
		RateLimitPerMinute:      60,
		RateLimitBurst:          20,
	}

	p := parser{lookup: lookup}

	p.positiveInt("HTTP_PORT", &cfg.HTTPPort)
	p.optionalString("SQLITE_PATH", &cfg.SQLitePath)

	if secret := p.required("SESSION_SECRET"); secret != "" {
		if len(secret) < minSessionSecretLength {
			p.invalid = append(p.invalid, envPrefix+"SESSION_SECRET")
		} else {
			cfg.SessionSecret = secret
		}
	}
	p.positiveDuration("SESSION_LIFETIME", &cfg.SessionLifetime)
	p.positiveDuration("SESSION_REFRESH_THRESHOLD", &cfg.SessionRefreshThreshold)
	p.boolean("COOKIE_SECURE", &cfg.CookieSecure)

	cfg.OAuthClientID = p.required("OAUTH_CLIENT_ID")
	cfg.OAuthClientSecret = p.required("OAUTH_CLIENT_SECRET")
	cfg.OAuthRedirectURL = p.required("OAUTH_REDIRECT_URL")
	p.optionalString("OAUTH_HOSTED_DOMAIN", &cfg.OAuthHostedDomain)

	p.optionalString("REDIS_ADDR", &cfg.RedisAddr)
	p.positiveInt("RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute)
	p.positiveInt("RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	if cfg.RateLimitPerMinute > maxRateLimitPerMinute {
		p.invalid = append(p.invalid, envPrefix+"RATE_LIMIT_PER_MINUTE")
	}
	p.boolean("TRUST_PROXY_HEADERS", &cfg.TrustProxyHeaders)

	if cfg.SessionRefreshThreshold >= cfg.SessionLifetime {
		p.invalid = append(p.invalid, envPrefix+"SESSION_REFRESH_THRESHOLD")
	}

	if len(p.missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(p.missing, ", "))
	}
	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(dedupe(p.invalid), ", "))
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

type parser struct {
	lookup  func(string) (string, bool)
	missing []string
	invalid []string
}

func (p *parser) value(name string) string {
	v, _ := p.lookup(envPrefix + name)
	return strings.TrimSpace(v)
}

func (p *parser) required(name string) string {
	v := p.value(name)
	if v == "" {
		p.missing = append(p.missing, envPrefix+name)
	}
	return v
}

func (p *parser) optionalString(name string, dst *string) {
	if v := p.value(name); v != "" {
		*dst = v
	}
}

func (p *parser) positiveInt(name string, dst *int) {
	v := p.value(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		p.invalid = append(p.invalid, envPrefix+name)
		return
	}
	*dst = n
}

func (p *parser) positiveDuration(name string, dst *time.Duration) {
	v := p.value(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		p.invalid = append(p.invalid, envPrefix+name)
		return
	}
	*dst = d
}

func (p *parser) boolean(name string, dst *bool) {
	v := p.value(name)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.invalid = append(p.invalid, envPrefix+name)
		return
	}
	*dst = b
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
