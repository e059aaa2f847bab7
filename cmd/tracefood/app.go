package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"tracefood/internal/archive"
	"tracefood/internal/auth"
	"tracefood/internal/blob"
	"tracefood/internal/config"
	"tracefood/internal/core"
	"tracefood/internal/logging"
	"tracefood/internal/settlement"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	noColor    bool

	cfg *config.Config
	log *logging.Logger
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}, stderr)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, logger
	return nil
}

// runtime is an opened store plus the service and settlement chain on top.
type runtime struct {
	svc      *core.Service
	store    core.PersistentStore
	pipeline *settlement.Pipeline
	log      *logging.Logger
}

func (a *app) open(ctx context.Context, extra ...core.ServiceOption) (*runtime, error) {
	storeCfg := a.cfg.StorageConfig()
	storeCfg.BadgerLogger = a.log.Badger()
	store, err := core.OpenPersistentStore(ctx, storeCfg, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	pipeline, err := settlement.Open(ctx, a.cfg.SettlementConfig(), a.log.Named("settlement"))
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("open settlement: %w", err)
	}
	payout, err := a.cfg.PayoutAmount()
	if err != nil {
		closeStore(store)
		return nil, err
	}
	opts := []core.ServiceOption{
		core.WithLogger(a.log.Named("core")),
		core.WithAuditRecorder(core.NewLoggerAuditRecorder(a.log.Named("audit"))),
		core.WithIntentDispatcher(pipeline),
		core.WithPayoutAmount(payout),
	}
	opts = append(opts, extra...)
	return &runtime{
		svc:      core.NewService(store, opts...),
		store:    store,
		pipeline: pipeline,
		log:      a.log,
	}, nil
}

// Close drains pending payouts before releasing the store.
func (r *runtime) Close(ctx context.Context) error {
	err := r.pipeline.Close(ctx)
	if c, ok := r.store.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	if syncErr := r.log.Sync(); syncErr != nil {
		r.log.Debug("log sync failed", "error", syncErr)
	}
	return err
}

func closeStore(store core.PersistentStore) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

func (a *app) archive(ctx context.Context) (*archive.Archive, error) {
	store, err := blob.Open(ctx, a.cfg.BlobConfig())
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return archive.New(store, archive.WithPrefix(a.cfg.Blob.Prefix)), nil
}

func (a *app) authManager() (*auth.Manager, error) {
	m, err := auth.NewManager(auth.Config{
		Secret: a.cfg.Auth.Secret,
		Issuer: a.cfg.Auth.Issuer,
		TTL:    a.cfg.Auth.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set auth.secret or %s_AUTH_SECRET)", err, config.EnvPrefix)
	}
	return m, nil
}
