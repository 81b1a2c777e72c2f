// Package dbinit creates and verifies the databases the platform needs.
//
// Initialization is idempotent: every statement is an IF NOT EXISTS form,
// so running it against an already initialized cluster changes nothing.
// Dropping data only happens with Options.Reset, which the install
// sequence never sets.
//
// Statements target CockroachDB (the platform's default store), which
// accepts database-qualified CREATE SCHEMA. Plain Postgres works for the
// database statements and the "public" schema.
package dbinit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/config"
)

// DriverName is the database/sql driver registered by lib/pq.
const DriverName = "postgres"

// ErrAborted is returned when a reset was not confirmed.
var ErrAborted = errors.New("database reset aborted")

// ErrMissing is returned when a database is still absent after creation.
var ErrMissing = errors.New("database missing after initialization")

// Options mirrors the two switches of the platform's reset routine.
type Options struct {
	// Reset drops every configured database before recreating it.
	Reset bool

	// SkipConfirmation suppresses the reset prompt.
	SkipConfirmation bool
}

// Confirmer asks the operator to approve a destructive action.
// console.Prompter satisfies it.
type Confirmer interface {
	Confirm(question, expected string) (bool, error)
}

// Status is what Run did to one database.
type Status struct {
	Name    string
	Schemas []string
	Dropped bool
}

// Initializer runs the statements against an open connection pool.
type Initializer struct {
	db      *sqlx.DB
	specs   []config.DatabaseSpec
	confirm Confirmer
	logger  zerolog.Logger
}

// Open returns a lazily connecting pool for dsn. Use Connect to wait for
// the server.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Connect pings db until it answers or policy is exhausted. Freshly
// started database containers often refuse connections for a few seconds.
func Connect(ctx context.Context, db *sqlx.DB, policy config.RetryPolicy, clk clock.Clock, logger zerolog.Logger) error {
	args := policy.CallArgs(func() error {
		return db.PingContext(ctx)
	}, clk, ctx.Done())
	args.NotifyFunc = func(err error, attempt int) {
		logger.Debug().Err(err).Int("attempt", attempt).Msg("database not reachable yet")
	}

	err := retry.Call(args)
	if err == nil {
		return nil
	}
	if retry.IsRetryStopped(err) && ctx.Err() != nil {
		return ctx.Err()
	}
	if last := retry.LastError(err); last != nil {
		err = last
	}
	return fmt.Errorf("failed to connect to database: %w", err)
}

// New builds an Initializer. confirm may be nil when resets always run
// with SkipConfirmation.
func New(db *sqlx.DB, specs []config.DatabaseSpec, confirm Confirmer, logger zerolog.Logger) *Initializer {
	return &Initializer{db: db, specs: specs, confirm: confirm, logger: logger}
}

// Run creates (and with opts.Reset, first drops) every configured
// database and schema, then checks each database exists.
func (i *Initializer) Run(ctx context.Context, opts Options) ([]Status, error) {
	if opts.Reset && !opts.SkipConfirmation {
		if err := i.confirmReset(); err != nil {
			return nil, err
		}
	}

	statuses := make([]Status, 0, len(i.specs))
	for _, spec := range i.specs {
		status, err := i.initDatabase(ctx, spec, opts.Reset)
		if err != nil {
			return statuses, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Initialize opens cfg.DSN, waits for the server under cfg.Connect and
// runs the initializer over cfg.Databases. The pool is closed on return.
func Initialize(ctx context.Context, cfg config.DatabaseConfig, opts Options, confirm Confirmer, clk clock.Clock, logger zerolog.Logger) ([]Status, error) {
	db, err := Open(cfg.DSN)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	if err := Connect(ctx, db, cfg.Connect, clk, logger); err != nil {
		return nil, err
	}
	return New(db, cfg.Databases, confirm, logger).Run(ctx, opts)
}

func (i *Initializer) confirmReset() error {
	if i.confirm == nil {
		return fmt.Errorf("%w: no confirmation source", ErrAborted)
	}
	names := make([]string, 0, len(i.specs))
	for _, spec := range i.specs {
		names = append(names, spec.Name)
	}
	ok, err := i.confirm.Confirm(
		fmt.Sprintf("This will DROP databases %v and all their data. Type 'yes' to proceed: ", names),
		"yes",
	)
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if !ok {
		return ErrAborted
	}
	return nil
}

func (i *Initializer) initDatabase(ctx context.Context, spec config.DatabaseSpec, reset bool) (Status, error) {
	status := Status{Name: spec.Name}
	db := pq.QuoteIdentifier(spec.Name)

	if reset {
		if err := i.exec(ctx, "DROP DATABASE IF EXISTS "+db+" CASCADE"); err != nil {
			return status, fmt.Errorf("failed to drop database %s: %w", spec.Name, err)
		}
		status.Dropped = true
	}

	if err := i.exec(ctx, "CREATE DATABASE IF NOT EXISTS "+db); err != nil {
		return status, fmt.Errorf("failed to create database %s: %w", spec.Name, err)
	}

	for _, schema := range spec.Schemas {
		stmt := "CREATE SCHEMA IF NOT EXISTS " + db + "." + pq.QuoteIdentifier(schema)
		if err := i.exec(ctx, stmt); err != nil {
			return status, fmt.Errorf("failed to create schema %s.%s: %w", spec.Name, schema, err)
		}
		status.Schemas = append(status.Schemas, schema)
	}

	var count int
	if err := i.db.GetContext(ctx, &count, "SELECT count(*) FROM pg_catalog.pg_database WHERE datname = $1", spec.Name); err != nil {
		return status, fmt.Errorf("failed to verify database %s: %w", spec.Name, err)
	}
	if count == 0 {
		return status, fmt.Errorf("%w: %s", ErrMissing, spec.Name)
	}

	i.logger.Debug().Str("database", spec.Name).Strs("schemas", status.Schemas).Bool("dropped", status.Dropped).Msg("database initialized")
	return status, nil
}

func (i *Initializer) exec(ctx context.Context, stmt string) error {
	i.logger.Debug().Str("sql", stmt).Msg("exec")
	_, err := i.db.ExecContext(ctx, stmt)
	return err
}
