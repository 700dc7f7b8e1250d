// Package settings loads the scheduling service's static configuration from the environment.
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/config"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/email"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/ledger"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/reminders"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerMemory   = "memory"
)

type Webhook struct {
	Provider string // "webhook" or "noop"
	URL      string
	Token    string
}

type Settings struct {
	Service      string
	Port         string
	GRPCPort     string
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	KafkaGroupID string

	BusinessName string
	Calendar     calendar.Config

	SweepEnabled      bool
	SweepInterval     time.Duration
	SweepWorkers      int
	ReminderTolerance time.Duration
	TaskTimeout       time.Duration
	LedgerBackend     string
	LedgerClaimTTL    time.Duration

	SMTP          email.Config
	SMS           Webhook
	WhatsApp      Webhook
	NotifyPerSec  float64
	RateLimit     int
	RateLimitOpen bool
	CORSOrigins   []string
}

// Load reads every setting once at startup; a malformed value is an error rather than a
// silent default.
func Load() (Settings, error) {
	var s Settings
	var err error

	s.Service = config.String("SERVICE_NAME", "scheduling-service")
	if s.Port, err = config.Port("PORT", "8080"); err != nil {
		return s, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9090"); err != nil {
		return s, err
	}
	if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return s, err
	}
	s.RedisURL = config.String("REDIS_URL", "")
	s.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	s.KafkaGroupID = config.String("KAFKA_GROUP_ID", "scheduling-service")

	s.BusinessName = config.String("BUSINESS_NAME", "")
	if s.Calendar, err = loadCalendar(); err != nil {
		return s, err
	}

	if s.SweepEnabled, err = config.Bool("SWEEP_ENABLED", true); err != nil {
		return s, err
	}
	if s.SweepInterval, err = config.Duration("SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return s, err
	}
	if s.SweepWorkers, err = config.Int("SWEEP_WORKERS", 8); err != nil {
		return s, err
	}
	if s.ReminderTolerance, err = config.Duration("REMINDER_WINDOW_TOLERANCE", reminders.DefaultTolerance); err != nil {
		return s, err
	}
	if s.TaskTimeout, err = config.Duration("SWEEP_TASK_TIMEOUT", 30*time.Second); err != nil {
		return s, err
	}
	if s.LedgerClaimTTL, err = config.Duration("LEDGER_CLAIM_TTL", ledger.DefaultClaimTTL); err != nil {
		return s, err
	}
	// A claim must outlive the send it guards, or another sweep can take it over mid-send.
	if s.LedgerClaimTTL <= s.TaskTimeout {
		return s, fmt.Errorf("LEDGER_CLAIM_TTL (%s) must exceed SWEEP_TASK_TIMEOUT (%s)", s.LedgerClaimTTL, s.TaskTimeout)
	}
	s.LedgerBackend = strings.ToLower(config.String("LEDGER_BACKEND", LedgerPostgres))
	switch s.LedgerBackend {
	case LedgerPostgres, LedgerMemory:
	case LedgerRedis:
		if s.RedisURL == "" {
			return s, fmt.Errorf("LEDGER_BACKEND=redis requires REDIS_URL")
		}
	default:
		return s, fmt.Errorf("%w: %q", ledger.ErrUnknownBackend, s.LedgerBackend)
	}

	s.SMTP = email.Config{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     config.String("SMTP_PORT", "1025"),
		From:     config.String("SMTP_FROM", "no-reply@slotkeeper.local"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
	}
	s.SMS = Webhook{
		Provider: strings.ToLower(config.String("SMS_PROVIDER", "noop")),
		URL:      config.String("SMS_WEBHOOK_URL", ""),
		Token:    config.String("SMS_WEBHOOK_TOKEN", ""),
	}
	s.WhatsApp = Webhook{
		Provider: strings.ToLower(config.String("WHATSAPP_PROVIDER", "noop")),
		URL:      config.String("WHATSAPP_WEBHOOK_URL", ""),
		Token:    config.String("WHATSAPP_WEBHOOK_TOKEN", ""),
	}
	if s.NotifyPerSec, err = config.Float("NOTIFY_RATE_PER_SECOND", 10); err != nil {
		return s, err
	}
	if s.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return s, err
	}
	if s.RateLimitOpen, err = config.Bool("RATE_LIMIT_FAIL_OPEN", true); err != nil {
		return s, err
	}
	s.CORSOrigins = config.List("CORS_ALLOWED_ORIGINS", nil)
	return s, nil
}

func loadCalendar() (calendar.Config, error) {
	zone := config.String("BUSINESS_TIMEZONE", "UTC")
	loc, ok := timewindow.LoadLocation(zone)
	if !ok {
		return calendar.Config{}, fmt.Errorf("BUSINESS_TIMEZONE %q is not a known zone", zone)
	}

	open, err := calendar.ParseClock(config.String("BUSINESS_OPEN", "09:00"))
	if err != nil {
		return calendar.Config{}, fmt.Errorf("BUSINESS_OPEN: %w", err)
	}
	closeAt, err := calendar.ParseClock(config.String("BUSINESS_CLOSE", "17:00"))
	if err != nil {
		return calendar.Config{}, fmt.Errorf("BUSINESS_CLOSE: %w", err)
	}
	weekly, err := calendar.UniformWeek(calendar.Hours{Open: open, Close: closeAt}, config.String("BUSINESS_HOURS", ""))
	if err != nil {
		return calendar.Config{}, fmt.Errorf("BUSINESS_HOURS: %w", err)
	}
	closed, err := calendar.ParseWeekdays(config.List("BUSINESS_CLOSED_DAYS", []string{"sunday"}))
	if err != nil {
		return calendar.Config{}, fmt.Errorf("BUSINESS_CLOSED_DAYS: %w", err)
	}
	return calendar.Config{Location: loc, Weekly: weekly, ClosedDays: closed}, nil
}
