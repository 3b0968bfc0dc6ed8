package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/config"
	"github.com/cuongbtq/musicgen/internal/tracker"
	"github.com/cuongbtq/musicgen/shared/logger"
)

const usage = `usage: musicgen [-config path] <command> [flags]

commands:
  submit   submit a generation and follow it to the end
  extend   continue a finished track, or the one given by -audio-id
  resume   continue following the job saved in the snapshot file
  status   print the saved snapshot
  reset    forget the saved job
`

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("MUSICGEN_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/musicgen/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateTrackerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.Kitchen,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := tracker.NewFileStore(cfg.Tracker.SnapshotPath)
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "status":
		return printSnapshot(ctx, store)
	case "reset":
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear snapshot: %w", err)
		}
		fmt.Println("snapshot cleared")
		return nil
	}

	tr := tracker.New(tracker.Config{
		Key:          "cli",
		PollInterval: cfg.Tracker.PollInterval,
		MaxRetries:   cfg.Tracker.MaxRetries,
		MaxPolls:     cfg.Tracker.MaxPolls,
		Backend: tracker.NewHTTPBackend(tracker.HTTPBackendConfig{
			BaseURL:       cfg.Tracker.APIBaseURL,
			SubmitTimeout: cfg.Tracker.SubmitTimeout,
			PollTimeout:   cfg.Tracker.PollTimeout,
			Logger:        appLogger.Logger,
		}),
		Store:  store,
		Sink:   newTerminalSink(os.Stdout),
		Logger: appLogger.Logger,
	})
	defer tr.Close()

	switch cmd {
	case "submit":
		req, err := parseSubmit(args)
		if err != nil {
			return err
		}
		if err := refuseActive(ctx, store); err != nil {
			return err
		}
		if err := tr.Submit(ctx, req); err != nil {
			return err
		}

	case "extend":
		req, err := parseExtend(args)
		if err != nil {
			return err
		}
		if err := restoreSource(ctx, tr, store); err != nil {
			return err
		}
		if err := tr.Extend(ctx, req); err != nil {
			return err
		}

	case "resume":
		resumed, err := tr.Resume(ctx)
		if err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
		if !resumed {
			fmt.Println("nothing to resume")
			return nil
		}

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	snap, err := tr.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		appLogger.Info("Interrupted, run `musicgen resume` to continue", slog.String("snapshot", cfg.Tracker.SnapshotPath))
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(snap.Job.AudioURL)
	return nil
}

// refuseActive keeps a new submission from silently replacing a job still in flight
func refuseActive(ctx context.Context, store tracker.Store) error {
	snap, err := store.Load(ctx)
	if errors.Is(err, tracker.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if !snap.State.IsTerminal() {
		return fmt.Errorf("a job is still %s, use resume or reset first", snap.State)
	}
	return store.Clear(ctx)
}

// restoreSource loads a completed job as the default extend source.
// Failed jobs are dropped; a job in flight blocks the extension.
func restoreSource(ctx context.Context, tr *tracker.Tracker, store tracker.Store) error {
	snap, err := store.Load(ctx)
	if errors.Is(err, tracker.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	switch {
	case snap.State == tracker.StateComplete:
		if _, err := tr.Resume(ctx); err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
		return nil
	case snap.State.IsTerminal():
		return store.Clear(ctx)
	default:
		return fmt.Errorf("a job is still %s, use resume or reset first", snap.State)
	}
}

func printSnapshot(ctx context.Context, store tracker.Store) error {
	snap, err := store.Load(ctx)
	if errors.Is(err, tracker.ErrNoSnapshot) {
		fmt.Println("no saved job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	fmt.Println(formatSnapshot(*snap))
	return nil
}

func parseSubmit(args []string) (dto.GenerateRequest, error) {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	var req dto.GenerateRequest
	fs.StringVar(&req.Prompt, "prompt", "", "Prompt or lyrics")
	fs.StringVar(&req.Style, "style", "", "Style, required in custom mode")
	fs.StringVar(&req.Title, "title", "", "Title, required in custom mode")
	fs.StringVar(&req.Tags, "tags", "", "Comma separated tags")
	fs.StringVar(&req.Model, "model", "", "Provider model")
	fs.StringVar(&req.Tempo, "tempo", "", "Tempo hint")
	instrumental := fs.Bool("instrumental", false, "Generate without vocals")
	custom := fs.Bool("custom", false, "Custom mode")
	fs.BoolVar(&req.Test, "test", false, "Ask the service for a canned answer")

	if err := fs.Parse(args); err != nil {
		return req, err
	}
	req.Instrumental = instrumental
	req.CustomMode = custom
	return req, nil
}

func parseExtend(args []string) (dto.ExtendRequest, error) {
	fs := flag.NewFlagSet("extend", flag.ContinueOnError)
	var req dto.ExtendRequest
	fs.StringVar(&req.AudioID, "audio-id", "", "Track to extend, defaults to the saved job")
	fs.StringVar(&req.Prompt, "prompt", "", "Prompt for the continuation")
	fs.StringVar(&req.Style, "style", "", "Style")
	fs.StringVar(&req.Title, "title", "", "Title")
	fs.StringVar(&req.Model, "model", "", "Provider model")
	continueAt := fs.Float64("continue-at", -1, "Second to continue from")

	if err := fs.Parse(args); err != nil {
		return req, err
	}
	if *continueAt >= 0 {
		req.ContinueAt = continueAt
	}
	return req, nil
}
