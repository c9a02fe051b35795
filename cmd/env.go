package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/coverpoint/identity-cli/internal/activity"
	"github.com/coverpoint/identity-cli/internal/backfill"
	"github.com/coverpoint/identity-cli/internal/db"
	"github.com/coverpoint/identity-cli/internal/household"
	"github.com/coverpoint/identity-cli/internal/identity"
)

// env wires the stores and services for one command invocation.
type env struct {
	pool  *pgxpool.Pool
	sqldb *sql.DB

	contacts   identity.ContactStore
	households household.Store
	activities activity.Store
	sources    backfill.SourceStore

	resolver     *identity.Resolver
	logger       *activity.Logger
	matcher      *household.Matcher
	linker       *household.Linker
	intake       *household.Intake
	orchestrator *backfill.Orchestrator
}

// initEnv opens the configured backend and assembles the service graph.
func initEnv(ctx context.Context) (*env, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	e := &env{}

	switch cfg.Store.Driver {
	case "postgres":
		pool, err := openPool(ctx)
		if err != nil {
			return nil, err
		}
		e.pool = pool
		e.contacts = identity.NewPostgresStore(pool)
		e.households = household.NewPostgresStore(pool)
		e.activities = activity.NewPostgresStore(pool)
		e.sources = backfill.NewPostgresStore(pool)
	case "sqlite":
		sqldb, err := db.OpenSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		e.sqldb = sqldb
		e.contacts = identity.NewSQLiteStore(sqldb)
		e.households = household.NewSQLiteStore(sqldb)
		e.activities = activity.NewSQLiteStore(sqldb)
		e.sources = backfill.NewSQLiteStore(sqldb)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	var rules *household.SourceRules
	if cfg.Intake.SourceRules != "" {
		r, err := household.LoadSourceRules(cfg.Intake.SourceRules)
		if err != nil {
			return nil, err
		}
		rules = r
	}

	e.wire(rules, rateLimiter(cfg.Backfill.RateLimit), cfg.Backfill.Concurrency)
	return e, nil
}

// wire assembles the service graph over the already-chosen stores.
func (e *env) wire(rules *household.SourceRules, limiter *rate.Limiter, concurrency int) {
	e.resolver = identity.NewResolver(e.contacts)
	e.logger = activity.NewLogger(e.activities)
	e.matcher = household.NewMatcher(e.households, e.contacts, rules)
	e.linker = household.NewLinker(e.households, e.matcher, activity.NewRecorder(e.logger))
	e.intake = household.NewIntake(e.households, rules)
	e.orchestrator = backfill.NewOrchestrator(
		e.sources, e.contacts, e.resolver, e.logger, limiter, concurrency)
}

func (e *env) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.sqldb != nil {
		e.sqldb.Close()
	}
}

// openPool creates a pgxpool.Pool from store config.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "parse connection string")
	}
	poolCfg.MaxConns = cfg.Store.MaxConns
	poolCfg.MinConns = cfg.Store.MinIdleConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping database")
	}

	return pool, nil
}

func rateLimiter(rowsPerSec float64) *rate.Limiter {
	if rowsPerSec <= 0 {
		return nil
	}
	burst := int(rowsPerSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rowsPerSec), burst)
}
