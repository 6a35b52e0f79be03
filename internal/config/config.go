package config // package config loads application configuration from environment variables

import (
	"log"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env     string // application environment (dev, prod)
	Port    string // HTTP port to listen on
	BaseURL string // public URL used in ticket links and QR codes
	Brand   string // brand name shown in chat and on tickets

	VerifyToken   string // webhook subscription handshake token
	AppSecret     string // HMAC secret for webhook signatures
	AllowUnsigned bool   // accept unsigned webhooks when AppSecret is empty (dev only)

	GraphBase     string // WhatsApp Cloud API base URL
	GraphVersion  string // WhatsApp Cloud API version
	PhoneNumberID string // sending phone number id
	WhatsAppToken string // bearer token for the Cloud API

	Admins         []string // admin phone numbers, digits only
	AdminToken     string   // plain admin token for the HTTP API
	AdminTokenHash string   // bcrypt hash of the admin token
	JWTSecret      string   // secret for admin bearer tokens
	AdminTokenTTL  time.Duration

	StoreDriver string // memory or mysql
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string

	UploadsDir   string // banner files on disk
	MediaBaseURL string // public URL prefix of UploadsDir

	DedupTTL       time.Duration
	SessionTTL     time.Duration
	SendTimeout    time.Duration
	MediaTimeout   time.Duration
	ProcessTimeout time.Duration
	Location       *time.Location // offset used to read and print event dates

	SupportContact       string
	BroadcastRate        float64 // messages per second
	BroadcastConcurrency int

	AMQPURL      string
	QueueEnabled bool
	LogDir       string // where the ticket.issued consumer writes tickets.log
	LogLevel     string
}

// Load reads configuration values from environment variables.  Required
// variables are enforced by must() and missing values cause the program to
// exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:     must("APP_ENV"),
		Port:    must("APP_PORT"),
		BaseURL: strings.TrimRight(must("BASE_URL"), "/"),
		Brand:   envStr("BRAND_NAME", "IngressAI"),

		VerifyToken:   must("VERIFY_TOKEN"),
		AppSecret:     envStr("APP_SECRET", ""),
		AllowUnsigned: envBool("WEBHOOK_ALLOW_UNSIGNED", false),

		GraphBase:     envStr("GRAPH_API_BASE", "https://graph.facebook.com"),
		GraphVersion:  envStr("GRAPH_API_VERSION", "v23.0"),
		PhoneNumberID: envStr("PHONE_NUMBER_ID", ""),
		WhatsAppToken: envStr("WHATSAPP_TOKEN", ""),

		Admins:         envList("ADMIN_PHONES"),
		AdminToken:     envStr("ADMIN_TOKEN", ""),
		AdminTokenHash: envStr("ADMIN_TOKEN_HASH", ""),
		JWTSecret:      envStr("JWT_SECRET", ""),
		AdminTokenTTL:  envDur("ADMIN_TOKEN_TTL", 24*time.Hour),

		StoreDriver: strings.ToLower(envStr("STORE_DRIVER", "memory")),

		UploadsDir:   envStr("UPLOADS_DIR", "uploads"),
		MediaBaseURL: envStr("MEDIA_BASE_URL", ""),

		DedupTTL:       envDur("DEDUP_TTL", 10*time.Minute),
		SessionTTL:     envDur("SESSION_TTL", 30*time.Minute),
		SendTimeout:    envDur("SEND_TIMEOUT", 15*time.Second),
		MediaTimeout:   envDur("MEDIA_TIMEOUT", 20*time.Second),
		ProcessTimeout: envDur("PROCESS_TIMEOUT", 60*time.Second),

		SupportContact:       envStr("SUPPORT_CONTACT", ""),
		BroadcastRate:        envFloat("BROADCAST_RATE", 20),
		BroadcastConcurrency: envInt("BROADCAST_CONCURRENCY", 4),

		AMQPURL:      envFirst("", "RABBITMQ_URL", "AMQP_URL"),
		QueueEnabled: envBool("QUEUE_ENABLED", false),
		LogDir:       envStr("LOG_DIR", "logs"),
		LogLevel:     envStr("LOG_LEVEL", "info"),
	}
	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = cfg.BaseURL + "/uploads"
	}

	loc, err := ParseOffset(envStr("TZ_OFFSET", "-03:00"))
	if err != nil {
		log.Fatalf("invalid TZ_OFFSET: %v", err)
	}
	cfg.Location = loc

	if cfg.StoreDriver == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = envStr("DB_PASS", "")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = envStr("DB_PORT", "3306")
		cfg.DBName = must("DB_NAME")
	}
	if cfg.QueueEnabled && cfg.AMQPURL == "" {
		log.Fatalf("QUEUE_ENABLED requires RABBITMQ_URL or AMQP_URL")
	}
	return cfg
}

// CloudEnabled reports whether outbound messages go to the Cloud API.
func (c Config) CloudEnabled() bool { return c.PhoneNumberID != "" && c.WhatsAppToken != "" }

// ParseOffset turns "-03:00", "+0530" or "-3" into a fixed zone.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "utc") || s == "Z" {
		return time.UTC, nil
	}
	sign := 1
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	hh, mm := s, "0"
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hh, mm = s[:i], s[i+1:]
	} else if len(s) == 4 {
		hh, mm = s[:2], s[2:]
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h > 14 {
		return nil, &strconv.NumError{Func: "ParseOffset", Num: s, Err: strconv.ErrSyntax}
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m > 59 {
		return nil, &strconv.NumError{Func: "ParseOffset", Num: s, Err: strconv.ErrSyntax}
	}
	secs := sign * (h*3600 + m*60)
	name := "UTC"
	if secs != 0 {
		name = time.Unix(0, 0).In(time.FixedZone("", secs)).Format("-07:00")
	}
	return time.FixedZone(name, secs), nil
}
