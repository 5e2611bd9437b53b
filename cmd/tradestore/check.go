package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/GoCodeAlone/tradestore/store"
)

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	pool, err := store.Connect(ctx, e.pgConfig())
	if err != nil {
		return err
	}
	defer pool.Close()

	h := store.CheckDB(ctx, pool)
	for _, c := range h.Checks {
		status := "ok"
		if !c.OK {
			status = "FAIL"
		}
		fmt.Fprintf(stdout, "%-15s %-4s %s\n", c.Name, status, c.Detail)
	}
	if !h.OK {
		return fmt.Errorf("database check failed")
	}
	return nil
}

func (e *env) pgConfig() store.PGConfig {
	return store.PGConfig{
		URL:            e.cfg.DatabaseURL,
		MaxConns:       4,
		ConnectTimeout: e.cfg.ConnectTimeout,
		Logger:         e.logger,
	}
}
