package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/GoCodeAlone/tradestore/store"
)

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	key := fs.String("key", store.DefaultConfigKey, "Config key")
	activate := fs.Bool("activate", false, "Activate the version after loading it")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), `Usage: tradestore config <subcommand> [options] [args]

Manage versioned config documents.

Subcommands:
  load <version> <file.yaml>   Store a YAML document as a new inactive version
  activate <version>           Make version the only active one for the key
  show                         Print the active version

Options:
`)
		fs.PrintDefaults()
	}
	if len(args) == 0 {
		fs.Usage()
		return fmt.Errorf("subcommand required: load, activate, or show")
	}
	subcmd := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch subcmd {
	case "load":
		if fs.NArg() != 2 {
			fs.Usage()
			return fmt.Errorf("load needs <version> <file.yaml>")
		}
		version, err := parseVersion(fs.Arg(0))
		if err != nil {
			return err
		}
		doc, err := os.ReadFile(fs.Arg(1))
		if err != nil {
			return fmt.Errorf("read %s: %w", fs.Arg(1), err)
		}
		return withStore(ctx, func(s *store.PGStore) error {
			cv, err := s.Configs().CreateFromYAML(ctx, *key, version, string(doc), nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "loaded %s v%d (schema_hash %s)\n", cv.Key, cv.Version, deref(cv.SchemaHash))
			if !*activate {
				return nil
			}
			return activateConfig(ctx, s, *key, version)
		})
	case "activate":
		if fs.NArg() != 1 {
			fs.Usage()
			return fmt.Errorf("activate needs <version>")
		}
		version, err := parseVersion(fs.Arg(0))
		if err != nil {
			return err
		}
		return withStore(ctx, func(s *store.PGStore) error {
			return activateConfig(ctx, s, *key, version)
		})
	case "show":
		return withStore(ctx, func(s *store.PGStore) error {
			cv, err := s.Configs().GetActive(ctx, *key)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no active version for %q", *key)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "# %s v%d, created %s\n%s", cv.Key, cv.Version, cv.CreatedAt.UTC().Format(time.RFC3339), cv.YAML)
			return nil
		})
	default:
		fs.Usage()
		return fmt.Errorf("unknown subcommand: %s", subcmd)
	}
}

// activateConfig retries when a concurrent activation of the same key wins
// the race on uq_config__key_active.
func activateConfig(ctx context.Context, s *store.PGStore, key string, version int32) error {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	op := func() (*store.ConfigVersion, error) {
		cv, err := s.Configs().Activate(ctx, key, version)
		if err != nil && !errors.Is(err, store.ErrDuplicate) && !store.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return cv, err
	}
	cv, err := backoff.RetryWithData(op, backoff.WithContext(bo, ctx))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "activated %s v%d\n", cv.Key, cv.Version)
	return nil
}

func withStore(ctx context.Context, fn func(s *store.PGStore) error) error {
	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	pool, err := store.Connect(ctx, e.pgConfig())
	if err != nil {
		return err
	}
	s := store.NewPGStore(pool, e.logger)
	defer s.Close()
	return fn(s)
}

func parseVersion(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid version %q: want a positive integer", s)
	}
	return int32(v), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
