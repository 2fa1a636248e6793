package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/dailyink/clock"
	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/ledger"
	"github.com/cppla/dailyink/metrics"
	"github.com/cppla/dailyink/notify"
	"github.com/cppla/dailyink/routes"
	"github.com/cppla/dailyink/services"
	"github.com/cppla/dailyink/store"
	"github.com/cppla/dailyink/streak"
	"github.com/cppla/dailyink/utils"
)

// app holds the wired components of one process.
type app struct {
	cfg        config.AppConfig
	db         *gorm.DB
	clock      *clock.Resolver
	writing    *services.Writing
	dispatcher *notify.Dispatcher
	closers    []func() error
}

// loadConfig reads configuration and starts the global logger.
func loadConfig(path string) (config.AppConfig, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return cfg, err
	}
	config.Set(cfg)
	if err := utils.InitLogger(cfg.Log); err != nil {
		return cfg, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func buildApp(cfg config.AppConfig) (*app, error) {
	log := utils.Logger
	rules, err := cfg.UnlockRules()
	if err != nil {
		return nil, err
	}

	db, err := config.Open(cfg.Database, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := config.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto migration: %w", err)
	}

	a := &app{cfg: cfg, db: db, clock: clock.NewResolver(nil)}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	notifier, closeNotifier, err := newNotifier(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closeNotifier != nil {
		a.closers = append(a.closers, closeNotifier)
	}
	a.dispatcher = notify.NewDispatcher(notifier,
		notify.NewDeduper(utils.GetRedis(), "notify:"),
		time.Duration(cfg.Notify.TimeoutSec)*time.Second, log)

	txr := store.NewTransactor(db, cfg.Database.MaxRetries, log.Named("store"))
	l := ledger.New(txr, cfg.Quota, log)
	a.writing = services.NewWriting(services.Deps{
		Transactor: txr,
		Ledger:     l,
		Store:      store.New(db, cfg.Quota.MaxLength),
		Streak:     streak.New(db, l, cfg.Streak, a.clock.Now, log),
		Rules:      rules,
		Clock:      a.clock,
		Dispatcher: a.dispatcher,
		Timeout:    time.Duration(cfg.App.RequestTimeoutSec) * time.Second,
		Log:        log,
	})
	return a, nil
}

func newNotifier(cfg config.AppConfig, log *zap.Logger) (notify.Notifier, func() error, error) {
	switch cfg.Notify.Driver {
	case "smtp":
		m, err := notify.NewMailer(cfg.SMTP)
		return m, nil, err
	case "amqp":
		p, err := notify.NewPublisher(cfg.Notify.AMQPURL, cfg.Notify.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return notify.NewLogNotifier(log.Named("notify")), nil, nil
	}
}

// Close waits for pending notifications and releases connections.
func (a *app) Close() error {
	a.dispatcher.Wait()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func serve(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.App.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set in the config file or environment variables")
	}
	defer utils.Logger.Sync() //nolint:errcheck

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	metrics.MustRegister(prometheus.DefaultRegisterer)

	r := routes.SetupRouter(cfg, a.db, a.writing, a.clock)
	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.App.Port)
	return utils.GraceServer(":"+cfg.App.Port, r, func() {
		if err := a.Close(); err != nil {
			utils.Sugar.Errorf("shutdown: %v", err)
		}
	})
}
