package wiring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pdtracker/pdtracker/internal/config"
	"github.com/pdtracker/pdtracker/internal/lock"
	"github.com/pdtracker/pdtracker/internal/logging"
	"github.com/pdtracker/pdtracker/internal/schedule"
	"github.com/pdtracker/pdtracker/internal/scheduler"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		ConfigDir:      dir,
		DBPath:         filepath.Join(dir, "pdtracker.db"),
		CheckInterval:  config.Duration(time.Minute),
		ReminderLead:   config.Duration(5 * time.Minute),
		FollowupWindow: config.Duration(15 * time.Minute),
		DoseTolerance:  config.Duration(30 * time.Minute),
		WakeWindow:     config.Duration(18 * time.Hour),
		MidDayOffset:   config.Duration(6 * time.Hour),
	}
}

func TestLoadChannels(t *testing.T) {
	cfg := testConfig(t)
	assert.Empty(t, LoadChannels(cfg, logging.Nop()))

	cfg.TwilioAccountSID = "AC1" // incomplete
	cfg.WebhookURL = "http://localhost:9/hook"
	cfg.Console = true
	cfg.EmailAddress, cfg.EmailPassword, cfg.NotifyEmail = "pd@example.com", "pw", "care@example.com"

	var names []string
	for _, ch := range LoadChannels(cfg, logging.Nop()) {
		names = append(names, ch.Name())
	}
	assert.Equal(t, []string{"email", "webhook", "console"}, names)

	cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, cfg.PatientPhone = "tok", "+1555", "+1666"
	assert.Len(t, LoadChannels(cfg, logging.Nop()), 4)
}

func TestLoadChannelsLogsRejectedEmail(t *testing.T) {
	cfg := testConfig(t)
	cfg.EmailAddress, cfg.EmailPassword, cfg.NotifyEmail = "pd@example.com", "pw", "care@example.com"
	cfg.SMTPPort = 70000

	core, logs := observer.New(zap.WarnLevel)
	chans := LoadChannels(cfg, logging.NewZapLogger(zap.New(core).Sugar()))
	assert.Empty(t, chans)

	warned := logs.FilterMessage("email disabled: invalid SMTP port 70000").Len()
	assert.Equal(t, 1, warned, "logged: %v", logs.All())
}

func TestLoadLockerFallsBack(t *testing.T) {
	cfg := testConfig(t)
	l, rdb := LoadLocker(context.Background(), cfg, scheduler.DefaultPolicy(), logging.Nop())
	assert.IsType(t, lock.Noop{}, l)
	assert.Nil(t, rdb)

	cfg.RedisURL = "not a url"
	l, rdb = LoadLocker(context.Background(), cfg, scheduler.DefaultPolicy(), logging.Nop())
	assert.IsType(t, lock.Noop{}, l)
	assert.Nil(t, rdb)
}

func TestBuildEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.WakeWindow = config.Duration(8 * time.Hour)
	app, err := Build(ctx, cfg, logging.Nop())
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, 8*time.Hour, app.Materializer.Policy.WakeWindow)
	assert.Equal(t, []string{"database", "gateway"}, app.Health.Names())
	assert.Equal(t, "error", app.Health.GetStatus(), "no channels configured")

	medID, err := app.DB.AddMedication(ctx, "Levodopa", "100mg", "")
	require.NoError(t, err)
	_, err = app.DB.SetSchedule(ctx, medID, schedule.IntervalFromWake{IntervalHours: 4}, true)
	require.NoError(t, err)
	_, err = app.Events.RecordWake(ctx, time.Now(), "")
	require.NoError(t, err)

	rep, err := app.Runner.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed, "gateway without channels fails the send")
	n, err := app.Attempts.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
