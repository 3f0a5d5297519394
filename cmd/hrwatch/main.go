package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hrwatch/internal/attendance"
	"hrwatch/internal/check"
	"hrwatch/internal/config"
	"hrwatch/internal/credential"
	appLog "hrwatch/internal/log"
	"hrwatch/internal/notify"
	"hrwatch/internal/scheduler"
	"hrwatch/internal/session"
	"hrwatch/internal/web"
	"hrwatch/internal/window"
)

const version = "0.3.0"

// flagConfig holds CLI flag values; they override the config file.
type flagConfig struct {
	configPath   string
	envFile      string
	test         bool
	testEmail    bool
	login        bool
	salaryPeriod bool
	days         int
	daemon       bool
	logLevel     string
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()
	if flags.logLevel != "" {
		appLog.SetLevel(appLog.ParseLevel(flags.logLevel))
	}
	appLog.Info("hrwatch starting", "version", version)

	conf, err := config.Load(flags.configPath, flags.envFile)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	if flags.logLevel == "" {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}
	applyFlags(conf, flags)

	appLog.Info("effective config",
		"portal", conf.Portal.BaseURL,
		"salary_period", conf.Window.SalaryPeriod,
		"lookback_days", conf.Window.LookbackDays,
		"timezone", conf.Location().String(),
		"cookie_file", conf.Session.CookieFile,
		"headless", conf.Session.Headless,
		"smtp_host", conf.SMTP.Host,
		"smtp_pass", appLog.Redact(conf.SMTP.Pass),
		"recipient", conf.Recipient,
		"test", flags.test,
		"daemon", flags.daemon,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	browser := session.NewBrowser(session.Options{
		Headless:    conf.Session.Headless,
		ExecPath:    conf.Session.ChromePath,
		UserDataDir: conf.Session.UserDataDir,
	})
	files := credential.FileStore{Path: conf.Session.CookieFile}

	switch {
	case flags.login:
		return runLogin(ctx, conf, browser, files)
	case flags.testEmail:
		return runTestEmail(ctx, conf)
	}

	if err := conf.Validate(!flags.test); err != nil {
		appLog.Error("invalid configuration", err)
		return 1
	}

	runner, err := newRunner(conf, browser, files, flags.test)
	if err != nil {
		appLog.Error("failed to initialize", err)
		return 1
	}

	if flags.daemon {
		return runDaemon(ctx, conf, runner)
	}

	if err := runner.Check(ctx); err != nil {
		return 1
	}
	appLog.Info("hrwatch exiting")
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env-file", ".env", "Optional .env file with secrets")
	flag.BoolVar(&cfg.test, "test", false, "Run the check but do not send any email")
	flag.BoolVar(&cfg.testEmail, "test-email", false, "Send a test email and exit")
	flag.BoolVar(&cfg.login, "login", false, "Open a browser for interactive login, save cookies and exit")
	flag.BoolVar(&cfg.salaryPeriod, "salary-period", false, "Check the 26th-25th salary period instead of the trailing window")
	flag.IntVar(&cfg.days, "days", 0, "Trailing window size in days (overrides config if set)")
	flag.BoolVar(&cfg.daemon, "daemon", false, "Run checks on the configured schedule and serve status")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	flag.Parse()

	return cfg
}

func applyFlags(conf *config.Config, flags flagConfig) {
	if flags.salaryPeriod {
		conf.Window.SalaryPeriod = true
	}
	if flags.days > 0 {
		conf.Window.LookbackDays = flags.days
	}
}

func newRunner(conf *config.Config, browser *session.Browser, files credential.FileStore, dryRun bool) (*check.Runner, error) {
	store := credential.NewStore(nil)
	refresher := credential.NewRefresher(credential.RefresherConfig{
		PortalURL:        conf.Portal.LoginURL,
		DefaultMappingID: conf.Portal.DefaultMappingID,
		Timeout:          conf.Session.RefreshTimeout,
		Files:            files,
	})
	if err := refresher.Bootstrap(store); err != nil {
		appLog.Warn("could not load saved credential", "err", err)
	}

	client := attendance.NewClient(conf.Portal.BaseURL, conf.Portal.RequestTimeout, conf.Location(), nil)

	var notifier check.Notifier
	if !dryRun {
		mailer, err := notify.NewMailer(conf.SMTP, conf.Recipient)
		if err != nil {
			return nil, err
		}
		notifier = mailer
	}

	return check.NewRunner(store, refresher, browser, client, notifier, check.Options{
		Mode: window.Mode{
			SalaryPeriod: conf.Window.SalaryPeriod,
			LookbackDays: conf.Window.LookbackDays,
		},
		Location: conf.Location(),
		DryRun:   dryRun,
	}), nil
}

func runLogin(ctx context.Context, conf *config.Config, browser *session.Browser, files credential.FileStore) int {
	if err := conf.Validate(false); err != nil {
		appLog.Error("invalid configuration", err)
		return 1
	}
	cookies, err := browser.Login(ctx, conf.Portal.LoginURL, conf.Session.LoginTimeout)
	if err != nil {
		appLog.Error("interactive login failed", err, "timeout", conf.Session.LoginTimeout)
		return 1
	}
	if err := files.Save(cookies, time.Now()); err != nil {
		appLog.Error("failed to save cookies", err, "path", files.Path)
		return 1
	}
	appLog.Info("login complete; cookies saved", "path", files.Path, "cookies", len(cookies))
	return 0
}

func runTestEmail(ctx context.Context, conf *config.Config) int {
	if err := conf.Validate(true); err != nil {
		appLog.Error("invalid configuration", err)
		return 1
	}
	mailer, err := notify.NewMailer(conf.SMTP, conf.Recipient)
	if err != nil {
		appLog.Error("failed to initialize mailer", err)
		return 1
	}
	if err := mailer.SendTest(ctx); err != nil {
		appLog.Error("test email failed", err, "smtp_host", conf.SMTP.Host)
		return 1
	}
	return 0
}

func runDaemon(ctx context.Context, conf *config.Config, runner *check.Runner) int {
	// A single check may need a browser refresh plus one request per month.
	timeout := conf.Session.RefreshTimeout + 12*conf.Portal.RequestTimeout + time.Minute
	sched, err := scheduler.New(ctx, conf.Schedule, conf.Location(), timeout, runner.Check)
	if err != nil {
		appLog.Error("invalid schedule", err)
		return 1
	}
	sched.Start()

	if conf.Listen != "" {
		srv := web.NewServer(conf, runner, sched.Next)
		go func() {
			if err := srv.Run(ctx); err != nil {
				appLog.Error("HTTP server failed", err, "listen", conf.Listen)
			}
		}()
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(stopCtx)
	appLog.Info("hrwatch exiting")
	return 0
}
