package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jacentio/docket/badgerstore"
	"github.com/jacentio/docket/dynamo"
	"github.com/jacentio/docket/memstore"
	"github.com/jacentio/docket/store"
)

// session is one command's client and the connector behind it.
type session struct {
	client *store.Client
	conn   store.Connector
	logger *zap.Logger
	closer func() error
}

func (s *session) Close() error {
	_ = s.logger.Sync()
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// config resolves the effective configuration: file, environment, flags.
func (o *RootOptions) config() (store.Config, error) {
	cfg := store.DefaultConfig()
	if o.ConfigPath != "" {
		loaded, err := store.LoadConfig(o.ConfigPath)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, "load config", err)
		}
		cfg = *loaded
	} else {
		cfg.ApplyEnv()
	}

	if o.Backend != "" {
		cfg.Backend = o.Backend
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Collection != "" {
		cfg.Collection = o.Collection
	}
	if o.Endpoint != "" {
		cfg.Endpoint = o.Endpoint
	}
	if o.BadgerDir != "" {
		cfg.BadgerDir = o.BadgerDir
	}
	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// newLogger logs to stderr; warnings only unless verbose.
func (o *RootOptions) newLogger() (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.OutputPaths = []string{"stderr"}
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if o.Verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

func (o *RootOptions) open(ctx context.Context) (*session, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	logger, err := o.newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	s := &session{conn: o.conn, logger: logger}
	if s.conn == nil {
		switch cfg.Backend {
		case "badger":
			db, err := badgerstore.Open(cfg.BadgerDir,
				badgerstore.WithLogger(logger),
				badgerstore.WithPartitionKeyAttr(cfg.PartitionKeyAttr))
			if err != nil {
				return nil, WrapExitError(ExitFailure, "open badger store", err)
			}
			s.conn, s.closer = db, db.Close
		case "dynamo":
			db, err := dynamo.NewFromConfig(ctx, cfg, logger)
			if err != nil {
				return nil, WrapExitError(ExitFailure, "connect to dynamodb", err)
			}
			s.conn = db
		default:
			s.conn = memstore.New(memstore.WithPartitionKeyAttr(cfg.PartitionKeyAttr))
		}
	}

	logger.Debug("session opened",
		zap.String("backend", cfg.Backend),
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))

	s.client = store.New(s.conn, cfg)
	s.client.SetLogger(logger)
	return s, nil
}

// withSession opens a session, runs fn and closes the session.
func withSession(ctx context.Context, opts *RootOptions, fn func(s *session) error) error {
	s, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// createCollection creates the session's collection on connectors that
// manage collections.
func (s *session) createCollection(ctx context.Context, throughput int) error {
	cfg := s.client.Config()
	switch c := s.conn.(type) {
	case *memstore.Store:
		return c.CreateCollection(cfg.Database, cfg.Collection, throughput)
	case *badgerstore.Store:
		return c.CreateCollection(cfg.Database, cfg.Collection, throughput)
	case *dynamo.Store:
		return c.CreateCollection(ctx, cfg.Database, cfg.Collection, throughput)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("backend %T does not manage collections", s.conn))
}

func (s *session) deleteCollection(ctx context.Context) error {
	cfg := s.client.Config()
	switch c := s.conn.(type) {
	case *memstore.Store:
		return c.DeleteCollection(cfg.Database, cfg.Collection)
	case *badgerstore.Store:
		return c.DeleteCollection(cfg.Database, cfg.Collection)
	case *dynamo.Store:
		return c.DeleteCollection(ctx, cfg.Database, cfg.Collection)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("backend %T does not manage collections", s.conn))
}
