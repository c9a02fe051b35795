package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the fields a given mode needs are present and sane.
// Modes: "store" for commands that open the database, "serve" for the admin
// HTTP server (store checks plus listener settings).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "store":
		problems = append(problems, c.validateStore()...)
	case "serve":
		problems = append(problems, c.validateStore()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var problems []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, `store.driver must be "postgres" or "sqlite"`)
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Store.MaxConns < 1 {
		problems = append(problems, "store.max_conns must be >= 1")
	}

	if c.Backfill.RateLimit < 0 {
		problems = append(problems, "backfill.rate_limit must be >= 0")
	}
	if c.Backfill.Concurrency < 1 || c.Backfill.Concurrency > 16 {
		problems = append(problems, "backfill.concurrency must be between 1 and 16")
	}

	return problems
}
