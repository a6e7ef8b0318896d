package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/mattjoyce/widgetsync/internal/config"
	"github.com/mattjoyce/widgetsync/internal/storage"
)

func runJournalNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Fprintln(os.Stderr, "Usage: widgetsync journal show [--config PATH] [--after SEQ] [--limit N] [--json]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "show":
		return runJournalShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown journal action: %s\n", args[0])
		return 1
	}
}

func runJournalShow(args []string) int {
	fs := flag.NewFlagSet("journal show", flag.ContinueOnError)
	configPath := configPathFlag(fs)
	after := fs.Int64("after", 0, "Only entries with a larger sequence number")
	limit := fs.Int("limit", 50, "Maximum entries to print")
	jsonOut := fs.Bool("json", false, "Print entries as JSON lines")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if !cfg.Journal.Enabled {
		fmt.Fprintln(os.Stderr, "Display journal is disabled (journal.enabled: false)")
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := storage.NewJournal(db).Since(ctx, cfg.Widgets.Document, *after, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read journal: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if *jsonOut {
			if err := enc.Encode(e); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to encode entry: %v\n", err)
				return 1
			}
			continue
		}
		fmt.Printf("%6d  %-16s  %-12s  %-8s  %s  parent=%s\n",
			e.Seq, humanize.Time(e.CreatedAt), orDash(e.KernelID), humanize.Bytes(uint64(len(e.Content))),
			e.MsgID, orDash(e.ParentID))
	}
	return 0
}
