// Package config loads mailherald's YAML configuration and the secrets
// it refuses to keep in YAML. Components never read the environment
// directly; everything funnels through here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envIMAPHost      = "MAILHERALD_IMAP_HOST"
	envIMAPPort      = "MAILHERALD_IMAP_PORT"
	envIMAPUser      = "MAILHERALD_IMAP_USER"
	envIMAPPass      = "MAILHERALD_IMAP_PASS"
	envGmailToken    = "MAILHERALD_GMAIL_TOKEN"
	envDiscordToken  = "MAILHERALD_DISCORD_TOKEN"
	envDiscordUserID = "MAILHERALD_DISCORD_USER_ID"
	envS3AccessKey   = "MAILHERALD_S3_ACCESS_KEY"
	envS3SecretKey   = "MAILHERALD_S3_SECRET_KEY"
)

// Config holds non-secret configuration loaded from YAML.
type Config struct {
	PollInterval    string   `yaml:"poll_interval"`
	RefreshInterval string   `yaml:"refresh_interval"`
	Lookback        string   `yaml:"lookback"`
	VenueLink       string   `yaml:"venue_link"`
	ListenAddr      string   `yaml:"listen_addr"`
	Patterns        Patterns `yaml:"patterns"`
	State           State    `yaml:"state"`
}

// Patterns carries the classifier patterns.
type Patterns struct {
	BookingSender   string `yaml:"booking_sender"`
	CancelSubject   string `yaml:"cancel_subject"`
	BookedSubject   string `yaml:"booked_subject"`
	CancelBodyRegex string `yaml:"cancel_body_regex"`
	BookedBodyRegex string `yaml:"booked_body_regex"`
}

// State selects and configures the session storage backend.
type State struct {
	// Backend is "file" (default) or "s3".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	S3      S3     `yaml:"s3"`
}

// S3 holds the non-secret S3 settings; credentials come from env.
type S3 struct {
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Bucket   string `yaml:"bucket"`
	Key      string `yaml:"key"`
}

// IMAPEnv holds the IMAP connection details from environment variables.
type IMAPEnv struct {
	Host string
	Port int
	User string
	Pass string
}

// DiscordEnv holds the chat credentials from environment variables.
type DiscordEnv struct {
	Token  string
	UserID string
}

// Load reads configuration from a YAML file. A missing file yields the
// zero Config, which is entirely usable with defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration for values that would only
// fail later at runtime.
func Validate(cfg Config) error {
	for name, value := range map[string]string{
		"poll_interval":    cfg.PollInterval,
		"refresh_interval": cfg.RefreshInterval,
		"lookback":         cfg.Lookback,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	switch cfg.State.Backend {
	case "", "file":
	case "s3":
		if strings.TrimSpace(cfg.State.S3.Bucket) == "" {
			return fmt.Errorf("state.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
	return nil
}

// Duration parses one of the interval fields, falling back to def when
// the field is empty.
func Duration(value string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return def, nil
	}
	return time.ParseDuration(value)
}

// IMAPEnvFromEnv loads IMAP connection details and validates required
// entries.
func IMAPEnvFromEnv() (IMAPEnv, error) {
	missing := []string{}

	host := strings.TrimSpace(os.Getenv(envIMAPHost))
	if host == "" {
		missing = append(missing, envIMAPHost)
	}
	user := strings.TrimSpace(os.Getenv(envIMAPUser))
	if user == "" {
		missing = append(missing, envIMAPUser)
	}
	pass := os.Getenv(envIMAPPass)
	if pass == "" {
		missing = append(missing, envIMAPPass)
	}

	port := 993
	if raw := strings.TrimSpace(os.Getenv(envIMAPPort)); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return IMAPEnv{}, fmt.Errorf("invalid %s: %w", envIMAPPort, err)
		}
		port = parsed
	}

	if len(missing) > 0 {
		return IMAPEnv{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return IMAPEnv{Host: host, Port: port, User: user, Pass: pass}, nil
}

// GmailTokenFromEnv loads the Gmail bearer token.
func GmailTokenFromEnv() (string, error) {
	token := strings.TrimSpace(os.Getenv(envGmailToken))
	if token == "" {
		return "", fmt.Errorf("missing required environment variables: %s", envGmailToken)
	}
	return token, nil
}

// DiscordEnvFromEnv loads the chat credentials.
func DiscordEnvFromEnv() (DiscordEnv, error) {
	token := strings.TrimSpace(os.Getenv(envDiscordToken))
	if token == "" {
		return DiscordEnv{}, fmt.Errorf("missing required environment variables: %s", envDiscordToken)
	}
	return DiscordEnv{
		Token:  token,
		UserID: strings.TrimSpace(os.Getenv(envDiscordUserID)),
	}, nil
}

// S3CredentialsFromEnv loads the optional static S3 credentials.
func S3CredentialsFromEnv() (accessKey, secretKey string) {
	return strings.TrimSpace(os.Getenv(envS3AccessKey)), os.Getenv(envS3SecretKey)
}
