// Command auditctl is the operator tool for the audit log: key generation,
// integrity verification, offline compliance reports and retention purges.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"haven/internal/audit/codec"
	"haven/internal/audit/integrity"
	"haven/internal/audit/keys"
	auditservice "haven/internal/audit/service"
	auditpostgres "haven/internal/audit/store/postgres"
	"haven/internal/platform/config"
	"haven/internal/platform/logger"
	"haven/internal/platform/postgres"
)

func main() {
	root := newRootCmd(os.Stdout, openFromEnv)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openFromEnv builds an audit service over the configured database. The flush
// loop is not started; release drains anything the commands logged.
func openFromEnv(ctx context.Context) (*auditservice.Service, func(context.Context) error, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.Environment)

	keySet, err := keys.FromEnvValue(cfg.Audit.MasterKey)
	if err != nil {
		return nil, nil, err
	}
	recordCodec, err := codec.New(keySet.Encryption)
	if err != nil {
		return nil, nil, fmt.Errorf("build record codec: %w", err)
	}
	signer, err := integrity.NewSigner(keySet.Signing)
	if err != nil {
		return nil, nil, fmt.Errorf("build signer: %w", err)
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	svc, err := auditservice.New(auditpostgres.New(db), recordCodec, signer,
		auditservice.WithLogger(log),
		auditservice.WithStoreTimeout(cfg.Audit.StoreTimeout),
		auditservice.WithRetention(cfg.Audit.RetentionDays, cfg.Audit.SecurityRetentionDays),
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	release := func(ctx context.Context) error {
		defer db.Close()
		return svc.Shutdown(ctx)
	}
	return svc, release, nil
}
