package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"docmodel/internal/app"
	"docmodel/internal/config"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// a missing .env is fine
	_ = godotenv.Load()

	args, p, err := config.Parse(os.Args[1:])
	switch {
	case p == nil:
		fmt.Fprintln(os.Stderr, err)
		return 2
	case errors.Is(err, arg.ErrHelp):
		p.WriteHelp(os.Stdout)
		return 0
	case err != nil:
		p.WriteUsage(os.Stderr)
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	case p.Subcommand() == nil:
		p.WriteHelp(os.Stderr)
		return 2
	}

	logger, err := config.NewLogger(args.Dev, args.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(args, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.Close()

	if err := dispatch(ctx, a, args); err != nil {
		logger.Error("command failed", zap.Error(err))
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, a *app.App, args *config.Args) error {
	switch {
	case args.Run != nil:
		res, err := a.Run(ctx, args.Run)
		if res != nil {
			printJSON(res)
		}
		return err
	case args.Preview != nil:
		res, err := a.Preview(ctx, args.Preview)
		if err != nil {
			return err
		}
		printJSON(res)
	case args.Jobs != nil:
		jobs, err := a.Models.ListJobs()
		if err != nil {
			return err
		}
		printJSON(jobs)
	case args.RunJob != nil:
		res, err := a.Models.RunJob(ctx, args.RunJob.JobID)
		if res != nil {
			printJSON(res)
		}
		return err
	case args.Watch != nil:
		return a.Watch(ctx)
	case args.MCP != nil:
		return a.ServeMCP(ctx, args.MCP, version)
	case args.Approvals != nil:
		pending, err := a.ResolveApprovals(args.Approvals)
		if err != nil {
			return err
		}
		printJSON(pending)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		zap.L().Error("encode output", zap.Error(err))
	}
}
