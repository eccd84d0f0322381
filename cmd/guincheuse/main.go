package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"guincheuse/internal/capture"
	"guincheuse/internal/config"
	"guincheuse/internal/ics"
	"guincheuse/internal/jobs"
	appLog "guincheuse/internal/log"
	"guincheuse/internal/mail"
	"guincheuse/internal/notify"
	"guincheuse/internal/ratelimit"
	"guincheuse/internal/reservation"
	"guincheuse/internal/web"
)

const version = "1.0.0"

type flagConfig struct {
	configPath string
	listen     string
	poster     string
	logLevel   string
	noSandbox  bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override the config file and the environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("guincheuse starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"feed_configured", conf.Events.FeedURL != "",
		"revalidate_seconds", conf.Events.RevalidateSeconds,
		"mail_provider", conf.Mail.Provider,
		"rate_limit_ms", conf.Reservation.RateLimit.WindowMillis,
		"rate_limit_store", conf.Reservation.RateLimit.Store,
		"sms_enabled", conf.SMS.Enabled(),
		"poster", flags.poster,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("guincheuse exited with error", err)
		os.Exit(1)
	}
	appLog.Info("guincheuse exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.poster, "poster", "", "Capture the events poster to this PNG path and exit")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&cfg.noSandbox, "no-sandbox", false, "Run Chromium without its sandbox (containers)")

	flag.Parse()

	return cfg
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", conf.Timezone, err)
	}

	store, closeStore, err := newRateLimitStore(ctx, conf.Reservation.RateLimit)
	if err != nil {
		return err
	}
	defer closeStore()
	window := time.Duration(conf.Reservation.RateLimit.WindowMillis) * time.Millisecond
	limiter := ratelimit.NewLimiter(store, window)

	mailer, mailErr := mail.New(conf.Mail)
	if mailErr != nil {
		appLog.Warn("mail transport not configured; reservations will be refused", "err", mailErr)
	}
	svc := reservation.NewService(reservation.Options{
		Venue:    conf.Venue,
		From:     conf.Mail.From,
		Limiter:  limiter,
		Mailer:   mailer,
		MailErr:  mailErr,
		Notifier: notify.New(conf.SMS),
	})

	revalidate := time.Duration(conf.Events.RevalidateSeconds) * time.Second
	normalizer := ics.NewNormalizer(conf.Events.FeedURL, ics.NewFetcher(revalidate), loc, conf.Events.HorizonDays)
	if conf.Events.FeedURL == "" {
		appLog.Warn("no calendar feed configured; the events page shows the fallback programme")
	}

	site, err := web.NewServer(web.Options{
		Config:       conf,
		Events:       normalizer,
		Reservations: reservation.Handler(svc),
		Location:     loc,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", conf.Listen, err)
	}

	if flags.poster != "" {
		return capturePoster(ctx, site, ln, flags)
	}

	sched := jobs.New(loc)
	if err := sched.AddPrune(limiter); err != nil {
		return err
	}
	if conf.Events.FeedURL != "" {
		if err := sched.AddWarm(normalizer, revalidate); err != nil {
			return err
		}
	}

	schedCtx, stopSched := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(schedCtx)
	}()

	err = site.Serve(ctx, ln)
	stopSched()
	wg.Wait()
	return err
}

func newRateLimitStore(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Store, func(), error) {
	if cfg.Store != "redis" {
		return ratelimit.NewMemoryStore(), func() {}, nil
	}
	client, err := ratelimit.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	appLog.Info("rate limit store: redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return ratelimit.NewRedisStore(client), func() { _ = client.Close() }, nil
}

// capturePoster serves the site on ln just long enough to screenshot the
// events page.
func capturePoster(ctx context.Context, site *web.Server, ln net.Listener, flags flagConfig) error {
	serveCtx, cancel := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- site.Serve(serveCtx, ln) }()

	err := capture.CapturePoster(ctx, capture.PosterOptions{
		BaseURL:    "http://" + ln.Addr().String(),
		OutputPath: flags.poster,
		NoSandbox:  flags.noSandbox,
	})

	cancel()
	if serr := <-served; serr != nil {
		appLog.Error("poster server shutdown", serr)
	}
	return err
}
