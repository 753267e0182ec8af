package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"linehaul/engine"
	"linehaul/store"
)

var (
	genTerminal string
	genDate     string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create today's (or --date's) dispatch events for a terminal",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genTerminal, "terminal", "", "terminal id or code")
	generateCmd.Flags().StringVar(&genDate, "date", "", "execution date YYYY-MM-DD (default today)")
	_ = generateCmd.MarkFlagRequired("terminal")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	term, err := resolveTerminal(ctx, db, genTerminal)
	if err != nil {
		return err
	}

	// Events land in the outbox for the serving process to drain.
	eng := engine.New(engine.Config{
		AppConfig: cfg,
		DB:        db,
		Logger:    log,
	})
	defer eng.Stop()

	date := genDate
	if date == "" {
		date = eng.Dispatcher().Today()
	}
	res, err := eng.Dispatcher().GenerateDaily(ctx, term.ID, date, "cli")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: created %d, skipped %d\n", term.Code, res.Date, len(res.Created), len(res.Skipped))
	return nil
}

func resolveTerminal(ctx context.Context, db *store.DB, ref string) (*store.Terminal, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		t, err := db.GetTerminal(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("terminal %d not found", id)
		}
		return t, err
	}
	t, err := db.GetTerminalByCode(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("terminal %q not found", ref)
	}
	return t, err
}
