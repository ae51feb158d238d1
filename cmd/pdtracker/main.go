// pdtracker runs the medication reminder daemon and its wake/sleep commands.
// Usage: PDTRACKER_CONFIG_DIR=/data pdtracker <command> [notes]
//
//	serve        run the delivery loop (and the status server if PDTRACKER_STATUS_ADDR is set)
//	wake [notes] log waking up and schedule today's reminders
//	sleep [notes] log going to sleep; pending reminders after now are dropped
//	night-wake   send night-wake medication reminders now
//	test-notify  send a test message on every configured channel
//	summary      send the list of doses still ahead today
//	status       print awake state, upcoming reminders and schedules
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pdtracker/pdtracker/internal/channels/console"
	"github.com/pdtracker/pdtracker/internal/config"
	"github.com/pdtracker/pdtracker/internal/gateway"
	"github.com/pdtracker/pdtracker/internal/logging"
	"github.com/pdtracker/pdtracker/internal/schedule"
	"github.com/pdtracker/pdtracker/internal/scheduler"
	"github.com/pdtracker/pdtracker/internal/statusserver"
	"github.com/pdtracker/pdtracker/internal/wiring"
)

const usage = "usage: pdtracker serve|wake [notes]|sleep [notes]|night-wake|test-notify|summary|status\n"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg, err := config.New("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(os.Args[1], os.Args[2:], cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string, cfg *config.Config, log logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := wiring.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()
	notes := strings.Join(args, " ")

	switch cmd {
	case "serve":
		return serve(ctx, app)
	case "wake":
		return wake(ctx, app, notes)
	case "sleep":
		if _, err := app.Events.RecordSleep(ctx, time.Time{}, notes); err != nil {
			return err
		}
		fmt.Println("Good night! Sleep logged at", schedule.FormatTime(time.Now()))
		return nil
	case "night-wake":
		return nightWake(ctx, app)
	case "test-notify":
		return testNotify(ctx, app)
	case "summary":
		return summary(ctx, app)
	case "status":
		return status(ctx, app)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func serve(ctx context.Context, app *wiring.App) error {
	if err := app.Attempts.Cleanup(ctx); err != nil {
		app.Log.Warnf("attempt log cleanup: %v", err)
	}

	errc := make(chan error, 1)
	if addr := app.Config.StatusAddr; addr != "" {
		srv := &statusserver.Server{
			Addr:     addr,
			Health:   app.Health,
			Events:   app.Events,
			Ledger:   app.Ledger,
			Failures: app.Attempts,
			Log:      app.Log.Named("status"),
		}
		go func() { errc <- srv.Run(ctx) }()
	}

	err := app.Runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if app.Config.StatusAddr != "" {
		if serr := <-errc; serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func wake(ctx context.Context, app *wiring.App, notes string) error {
	now := time.Now()
	if _, err := app.Events.RecordWake(ctx, now, notes); err != nil {
		return err
	}
	fmt.Println("Good morning! Wake time logged:", schedule.FormatTime(now))

	upcoming, err := app.Ledger.Upcoming(ctx, now.Add(-time.Second))
	if err != nil {
		app.Log.Warnf("list upcoming: %v", err)
	}
	fmt.Println(gateway.UpcomingMessage(dosesOf(upcoming)).Content)
	return nil
}

func nightWake(ctx context.Context, app *wiring.App) error {
	n, err := app.Materializer.TriggerNightWake(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("No night-wake medications scheduled.")
		return nil
	}
	rep, err := app.Runner.Flush(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Night-wake reminders: %d sent, %d pending\n", rep.Sent, rep.Failed)
	return nil
}

func testNotify(ctx context.Context, app *wiring.App) error {
	if len(app.Gateway.GetChannelNames()) == 0 {
		fmt.Println("No channels configured; printing to the console instead.")
		app.Gateway.Register(console.New())
	}
	res, err := app.Gateway.Send(ctx, gateway.TestMessage(time.Now()))
	for name, ferr := range res.Failed {
		fmt.Printf("  %s: %v\n", name, ferr)
	}
	if err != nil {
		return err
	}
	fmt.Println("Test message sent via", strings.Join(res.Delivered, ", "))
	return nil
}

func summary(ctx context.Context, app *wiring.App) error {
	upcoming, err := app.Ledger.Upcoming(ctx, time.Now())
	if err != nil && upcoming == nil {
		return err
	}
	_, err = app.Gateway.Send(ctx, gateway.UpcomingMessage(dosesOf(upcoming)))
	return err
}

func status(ctx context.Context, app *wiring.App) error {
	now := time.Now()
	awake, err := app.Events.IsAwake(ctx)
	if err != nil {
		return err
	}
	if awake {
		w, err := app.Events.LastWake(ctx)
		if err != nil {
			return err
		}
		d, _, _ := app.Events.WakeDuration(ctx, now)
		fmt.Printf("Awake since %s (%s)\n", scheduler.FormatWakeTime(w.Time, now), d.Truncate(time.Minute))
	} else {
		fmt.Println("Asleep (no reminders are sent)")
	}

	upcoming, err := app.Ledger.Upcoming(ctx, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	fmt.Println(gateway.UpcomingMessage(dosesOf(upcoming)).Content)

	schedules, err := app.DB.ListActiveSchedules(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if len(schedules) > 0 {
		fmt.Println("\nSchedules:")
	}
	for _, s := range schedules {
		line, err := app.Materializer.DescribeStatus(ctx, s.MedicationID)
		if err != nil {
			return err
		}
		fmt.Printf("  %s: %s\n", s.MedicationName, strings.ReplaceAll(line, "\n", "; "))
	}
	fmt.Printf("\nChannels: %s (health: %s)\n", strings.Join(app.Gateway.GetChannelNames(), ", "), app.Health.GetStatus())
	return nil
}
