package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mcdev12/cafeclock/go/internal/dbconfig"
	"github.com/mcdev12/cafeclock/go/internal/events"
	"github.com/mcdev12/cafeclock/go/internal/snapshot"
)

const defaultSeedFile = "go/internal/assets/sessions.json"

// Seeds the countdown snapshot table so a fresh server restores displays on boot
func main() {
	path := defaultSeedFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot; timestamps may be ISO strings or epoch numbers
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var payloads []events.SessionPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	store, pool, err := snapshot.Open(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert and count
	var (
		total   = len(payloads)
		saved   int
		skipped int
		errs    int
	)

	for _, p := range payloads {
		session := p.Session()
		if session.ID == "" || !session.IsRunning() {
			skipped++
			continue
		}
		if err := store.Save(ctx, session); err != nil {
			fmt.Fprintf(os.Stderr, "error saving session %s: %v\n", session.ID, err)
			errs++
			continue
		}
		saved++
	}

	// 4) Print summary
	fmt.Printf(
		"Snapshot seed complete: %d total, %d saved, %d skipped, %d errors\n",
		total, saved, skipped, errs,
	)
}
