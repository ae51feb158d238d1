package wiring

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdtracker/pdtracker/internal/channels/console"
	"github.com/pdtracker/pdtracker/internal/channels/email"
	"github.com/pdtracker/pdtracker/internal/channels/sms"
	"github.com/pdtracker/pdtracker/internal/channels/webhook"
	"github.com/pdtracker/pdtracker/internal/config"
	"github.com/pdtracker/pdtracker/internal/gateway"
	"github.com/pdtracker/pdtracker/internal/health"
	"github.com/pdtracker/pdtracker/internal/lock"
	"github.com/pdtracker/pdtracker/internal/logging"
	"github.com/pdtracker/pdtracker/internal/scheduler"
	"github.com/pdtracker/pdtracker/internal/store"
)

// App is the assembled reminder core shared by every pdtracker command.
type App struct {
	Config       *config.Config
	Log          logging.Logger
	DB           *store.DB
	Gateway      *gateway.Gateway
	Materializer *scheduler.Materializer
	Events       *scheduler.EventLog
	Ledger       *scheduler.Ledger
	Runner       *scheduler.Runner
	Attempts     *store.AttemptLog
	Health       *health.Registry

	redis *redis.Client
}

// Build opens the store and wires the scheduler, gateway and optional Redis lock.
func Build(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if err := cfg.EnsureDir(); err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	policy := PolicyFrom(cfg)
	gw := gateway.New(log.Named("gateway"))
	for _, ch := range LoadChannels(cfg, log) {
		gw.Register(ch)
	}

	mat := scheduler.NewMaterializer(db, policy, log.Named("materializer"))
	events := scheduler.NewEventLog(db, mat, log.Named("events"))
	ledger := scheduler.NewLedger(db, db, policy.DoseTolerance)
	attempts := store.NewAttemptLog(db)

	runner := scheduler.NewRunner(events, ledger, gw, policy, log.Named("scheduler"))
	runner.Attempts = attempts
	locker, rdb := LoadLocker(ctx, cfg, policy, log)
	runner.Lock = locker

	reg := health.NewRegistry()
	reg.Register("database", db)
	reg.Register("gateway", gw)
	if rdb != nil {
		reg.Register("redis", redisHealth(rdb))
	}

	return &App{
		Config:       cfg,
		Log:          log,
		DB:           db,
		Gateway:      gw,
		Materializer: mat,
		Events:       events,
		Ledger:       ledger,
		Runner:       runner,
		Attempts:     attempts,
		Health:       reg,
		redis:        rdb,
	}, nil
}

// Close releases the store and the Redis client.
func (a *App) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return a.DB.Close()
}

// PolicyFrom maps configuration onto scheduler timings.
func PolicyFrom(cfg *config.Config) scheduler.Policy {
	return scheduler.Policy{
		ReminderLead:   cfg.ReminderLead.Std(),
		WakeWindow:     cfg.WakeWindow.Std(),
		MidDayOffset:   cfg.MidDayOffset.Std(),
		FollowupWindow: cfg.FollowupWindow.Std(),
		DoseTolerance:  cfg.DoseTolerance.Std(),
		CheckInterval:  cfg.CheckInterval.Std(),
	}
}

// LoadChannels returns every channel whose settings are complete. Partially configured
// channels are logged and left out.
func LoadChannels(cfg *config.Config, log logging.Logger) []gateway.Channel {
	var out []gateway.Channel

	smsCfg := sms.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioPhoneNumber,
		To:         cfg.PatientPhone,
	}
	switch missing := smsCfg.Missing(); {
	case len(missing) == 0:
		out = append(out, sms.New(smsCfg))
	case len(missing) < 4:
		log.Warnf("SMS disabled, missing %v", missing)
	}

	emailCfg := email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.EmailAddress,
		Password: cfg.EmailPassword,
		To:       cfg.NotifyEmail,
	}
	if emailCfg.Configured() {
		if ch, err := email.New(emailCfg); err == nil {
			out = append(out, ch)
		} else {
			log.Warnf("email disabled: %v", err)
		}
	} else if cfg.EmailAddress != "" || cfg.NotifyEmail != "" {
		log.Warn("email disabled, need PD_TRACKER_EMAIL, PD_TRACKER_EMAIL_PASSWORD and PD_TRACKER_NOTIFY_EMAIL")
	}

	if cfg.WebhookURL != "" {
		out = append(out, webhook.New(cfg.WebhookURL))
	}
	if cfg.Console {
		out = append(out, console.New())
	}
	if len(out) == 0 {
		log.Warn("no notification channels configured; reminders will stay pending")
	}
	return out
}

// LoadLocker connects to Redis when configured. Falls back to no locking when the URL
// is unset or Redis cannot be reached at startup; later outages are handled per tick
// by the runner.
func LoadLocker(ctx context.Context, cfg *config.Config, policy scheduler.Policy, log logging.Logger) (lock.Locker, *redis.Client) {
	if cfg.RedisURL == "" {
		return lock.Noop{}, nil
	}
	rdb, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warnf("Redis unavailable (%v). Falling back to no delivery lock.", err)
		return lock.Noop{}, nil
	}
	// The key outlives a crashed holder by at most one check interval.
	ttl := policy.CheckInterval
	if ttl < 10*time.Second {
		ttl = 10 * time.Second
	}
	return lock.NewRedis(rdb, "pdtracker", ttl), rdb
}

func redisHealth(rdb *redis.Client) health.HealthChecker {
	return health.CheckerFunc(func() health.ComponentHealth {
		h := health.ComponentHealth{Name: "redis", Status: "ok"}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			h.Status = "degraded"
			h.Message = err.Error()
			h.LastError = time.Now()
			return h
		}
		h.LastOK = time.Now()
		return h
	})
}
