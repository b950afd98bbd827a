package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jdillenkofer/fixity/internal/auditlog"
	"github.com/jdillenkofer/fixity/internal/bitstore"
	bitstoreConfig "github.com/jdillenkofer/fixity/internal/bitstore/config"
	"github.com/jdillenkofer/fixity/internal/catalog"
	"github.com/jdillenkofer/fixity/internal/checksum"
	"github.com/jdillenkofer/fixity/internal/database"
	repositoryFactory "github.com/jdillenkofer/fixity/internal/database/repository"
	"github.com/jdillenkofer/fixity/internal/dependencyinjection"
	"github.com/jdillenkofer/fixity/internal/ledger"
	"github.com/jdillenkofer/fixity/internal/settings"
	"github.com/jdillenkofer/fixity/internal/verifier"
)

const defaultBitstoreConfig = `
{
  "type": "SqlBitstreamStore"
}
`

// app holds the components every subcommand works with.
type app struct {
	settings       *settings.Settings
	db             database.Database
	bitstreamStore bitstore.BitstreamStore
	registry       *checksum.Registry
	catalog        catalog.Catalog
	ledger         *ledger.Store
	auditLog       *auditlog.Log
	verifier       verifier.Verifier
}

func loadBitstoreConfig(path string) ([]byte, error) {
	if path == "" {
		return []byte(defaultBitstoreConfig), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read bitstore configuration: %w", err)
	}
	return b, nil
}

func openAuditLog(s *settings.Settings) (*auditlog.Log, error) {
	if s.AuditLogPath() == "" {
		return nil, nil
	}
	var signer auditlog.Signer
	if s.AuditLogSigningKey() != "" {
		privateKey, err := auditlog.LoadEd25519PrivateKey(s.AuditLogSigningKey())
		if err != nil {
			return nil, fmt.Errorf("could not load audit log signing key: %w", err)
		}
		signer = auditlog.NewEd25519Signer(privateKey)
	}
	return auditlog.OpenFile(s.AuditLogPath(), signer)
}

func openApp(ctx context.Context, s *settings.Settings) (a *app, err error) {
	a = &app{settings: s}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.Close(ctx))
			a = nil
		}
	}()

	dbType, err := database.ParseDatabaseType(s.DbType())
	if err != nil {
		return a, err
	}
	a.db, err = database.OpenDatabase(dbType, s.DataSource())
	if err != nil {
		return a, fmt.Errorf("could not open database: %w", err)
	}

	diContainer, err := dependencyinjection.NewContainer()
	if err != nil {
		return a, err
	}
	err = dependencyinjection.RegisterByTypeOf[database.Database](diContainer, a.db)
	if err != nil {
		return a, err
	}
	bitstoreJson, err := loadBitstoreConfig(s.BitstoreConfig())
	if err != nil {
		return a, err
	}
	bitstreamStore, err := bitstoreConfig.CreateBitstreamStoreFromJson(diContainer, bitstoreJson)
	if err != nil {
		return a, fmt.Errorf("could not create bitstream store: %w", err)
	}
	err = bitstreamStore.Start(ctx)
	if err != nil {
		return a, fmt.Errorf("could not start bitstream store: %w", err)
	}
	a.bitstreamStore = bitstreamStore

	a.registry = checksum.NewDefaultRegistry()
	if _, err = a.registry.Lookup(s.DefaultAlgorithm()); err != nil {
		return a, fmt.Errorf("invalid default algorithm: %w", err)
	}
	ingestAlgorithm, err := a.registry.Lookup(s.IngestAlgorithm())
	if err != nil {
		return a, fmt.Errorf("invalid ingest algorithm: %w", err)
	}

	containerRepository, err := repositoryFactory.NewContainerRepository(a.db)
	if err != nil {
		return a, err
	}
	bitstreamRepository, err := repositoryFactory.NewBitstreamRepository(a.db)
	if err != nil {
		return a, err
	}
	recordRepository, err := repositoryFactory.NewChecksumRecordRepository(a.db)
	if err != nil {
		return a, err
	}
	historyRepository, err := repositoryFactory.NewChecksumHistoryRepository(a.db)
	if err != nil {
		return a, err
	}

	a.catalog, err = catalog.New(a.db, containerRepository, bitstreamRepository, a.bitstreamStore, *ingestAlgorithm)
	if err != nil {
		return a, err
	}

	a.auditLog, err = openAuditLog(s)
	if err != nil {
		return a, fmt.Errorf("could not open audit log: %w", err)
	}
	var mirror ledger.HistoryMirror
	if a.auditLog != nil {
		mirror = a.auditLog
	}
	a.ledger, err = ledger.New(a.db, recordRepository, historyRepository, a.catalog, mirror)
	if err != nil {
		return a, err
	}

	a.verifier, err = verifier.New(a.ledger, a.catalog, a.bitstreamStore, a.registry, s.DefaultAlgorithm())
	if err != nil {
		return a, err
	}
	return a, nil
}

func (a *app) Close(ctx context.Context) error {
	var err error
	if a.auditLog != nil {
		err = errors.Join(err, a.auditLog.Close())
	}
	if a.bitstreamStore != nil {
		err = errors.Join(err, a.bitstreamStore.Stop(ctx))
	}
	if a.db != nil {
		err = errors.Join(err, a.db.Close())
	}
	if err != nil {
		slog.Error(fmt.Sprintf("Error while shutting down: %s", err))
	}
	return err
}
