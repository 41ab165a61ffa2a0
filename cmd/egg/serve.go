package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"egg/interpreter-go/pkg/parser"
	"egg/interpreter-go/pkg/server"
	"egg/interpreter-go/pkg/store"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addr := fs.String("addr", ":8080", "listen address")
	dbPath := fs.String("db", "", "bbolt file backing /programs (disabled when empty)")
	timeout := fs.Duration("timeout", server.DefaultTimeout, "per-run timeout")
	maxSteps := fs.Int("max-steps", 1_000_000, "per-run step limit (0 is unlimited)")
	maxDepth := fs.Int("max-depth", 0, "per-run call depth limit (0 uses the default)")
	cacheBytes := fs.Int64("cache-bytes", 32<<20, "parse cache budget in bytes")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", fs.Args())
		return 1
	}

	cache, err := parser.NewCache(*cacheBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create parse cache: %v\n", err)
		return 1
	}
	defer cache.Close()

	var programs *store.Store
	if *dbPath != "" {
		programs, err = store.Open(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open program store: %v\n", err)
			return 1
		}
		defer programs.Close()
	}

	srv := server.New(server.Config{
		Timeout:  *timeout,
		MaxSteps: *maxSteps,
		MaxDepth: *maxDepth,
		Cache:    cache,
		Store:    programs,
		Logger:   logger,
	})

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		sig, ok := <-sigc
		if !ok {
			return
		}
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		if err := srv.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := srv.Listen(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		return 1
	}
	return 0
}
