package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string
	DBUrl          string
	TokenSecret    string
	TokenTTL       time.Duration
	ActionTokenTTL time.Duration
	Debug          bool

	BaseURL  string
	SiteName string

	AdminUser     string
	AdminPassword string

	Mail Mail

	RedisAddr   string
	CacheTTL    time.Duration
	CORSOrigins []string
	SubmitRate  int
}

type Mail struct {
	AdminEmail   string
	FromName     string
	FromEmail    string
	AdminSubject string
	UserSubject  string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSSL      bool

	// Timeout bounds all the mail sent for one submission.
	Timeout time.Duration
}

// Enabled reports whether an SMTP relay was configured.
func (m Mail) Enabled() bool {
	return m.SMTPHost != ""
}

// ParseFlags loads a .env file if present, then parses command line flags.
// Every flag defaults to the environment variable named after it
// (e.g. -token-secret <- TOKEN_SECRET).
func ParseFlags() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	return Parse(flag.CommandLine, os.Args[1:])
}

func Parse(fs *flag.FlagSet, args []string) (cfg Config, err error) {
	host := fs.String("host", env("HOST", "0.0.0.0"), "listen host name")
	port := fs.Uint("port", uint(envInt("PORT", 80)), "listen port number")
	fs.StringVar(&cfg.DBUrl, "db-url", env("DB_URL", "surveys.sqlite"), "path to SQLite3 DB file")
	fs.StringVar(&cfg.TokenSecret, "token-secret", env("TOKEN_SECRET", ""), "secret key for token encryption and decryption")
	ttl := fs.Uint("token-ttl", uint(envInt("TOKEN_TTL", 120)), "access token TTL in seconds")
	actionTTL := fs.Uint("action-token-ttl", uint(envInt("ACTION_TOKEN_TTL", 86400)), "form action token TTL in seconds")
	fs.BoolVar(&cfg.Debug, "debug", envBool("DEBUG", false), "log at DEBUG level")

	fs.StringVar(&cfg.BaseURL, "base-url", env("BASE_URL", ""), "public base URL used in links (default derived from host and port)")
	fs.StringVar(&cfg.SiteName, "site-name", env("SITE_NAME", "Surveys"), "site name shown in pages and emails")

	fs.StringVar(&cfg.AdminUser, "admin-user", env("ADMIN_USER", ""), "bootstrap admin user name")
	fs.StringVar(&cfg.AdminPassword, "admin-password", env("ADMIN_PASSWORD", ""), "bootstrap admin password")

	fs.StringVar(&cfg.Mail.AdminEmail, "admin-email", env("ADMIN_EMAIL", ""), "address receiving submission notices")
	fs.StringVar(&cfg.Mail.FromName, "mail-from-name", env("MAIL_FROM_NAME", "Surveys"), "sender display name")
	fs.StringVar(&cfg.Mail.FromEmail, "mail-from", env("MAIL_FROM", ""), "sender address")
	fs.StringVar(&cfg.Mail.AdminSubject, "mail-admin-subject", env("MAIL_ADMIN_SUBJECT", "New Survey Submission"), "admin notice subject prefix")
	fs.StringVar(&cfg.Mail.UserSubject, "mail-user-subject", env("MAIL_USER_SUBJECT", "Thank you for your survey response"), "user confirmation subject")
	fs.StringVar(&cfg.Mail.SMTPHost, "smtp-host", env("SMTP_HOST", ""), "SMTP host (mail is only logged when empty)")
	smtpPort := fs.Int("smtp-port", envInt("SMTP_PORT", 587), "SMTP port")
	fs.StringVar(&cfg.Mail.SMTPUser, "smtp-user", env("SMTP_USER", ""), "SMTP user name")
	fs.StringVar(&cfg.Mail.SMTPPassword, "smtp-password", env("SMTP_PASSWORD", ""), "SMTP password")
	fs.BoolVar(&cfg.Mail.SMTPSSL, "smtp-ssl", envBool("SMTP_SSL", false), "use implicit TLS instead of STARTTLS")
	mailTimeout := fs.Uint("mail-timeout", uint(envInt("MAIL_TIMEOUT", 5)), "seconds allowed for the notices of one submission")

	fs.StringVar(&cfg.RedisAddr, "redis-addr", env("REDIS_ADDR", ""), "redis address for the survey cache (disabled when empty)")
	cacheTTL := fs.Uint("cache-ttl", uint(envInt("CACHE_TTL", 300)), "survey cache TTL in seconds")
	origins := fs.String("cors-origins", env("CORS_ORIGINS", ""), "comma separated origins allowed to call the submit endpoint")
	fs.IntVar(&cfg.SubmitRate, "submit-rate", envInt("SUBMIT_RATE", 10), "submissions allowed per client IP per minute (0 disables)")

	if err = fs.Parse(args); err != nil {
		return
	}

	cfg.Addr = net.JoinHostPort(*host, strconv.Itoa(int(*port)))
	cfg.TokenTTL = time.Duration(*ttl) * time.Second
	cfg.ActionTokenTTL = time.Duration(*actionTTL) * time.Second
	cfg.CacheTTL = time.Duration(*cacheTTL) * time.Second
	cfg.Mail.SMTPPort = *smtpPort
	cfg.Mail.Timeout = time.Duration(*mailTimeout) * time.Second
	for _, o := range strings.Split(*origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.Url()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.TokenSecret == "" {
		err = errors.New("missing parameter -token-secret")
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
