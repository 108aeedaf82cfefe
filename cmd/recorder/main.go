// Command recorder is the pitch-side capture tool. Events typed on
// stdin land in a local SQLite outbox immediately; a background sync
// worker uploads them whenever the venue has coverage.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/gaelstats/sideline/internal/capture/outbox"
	"github.com/gaelstats/sideline/internal/capture/syncer"
	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/pkg/logger"
)

const defaultSyncInterval = 30 * time.Second

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		club     = flag.String("club", "", "Club identifier (required)")
		match    = flag.String("match", "", "Match identifier (required)")
		dbPath   = flag.String("db", "outbox.db", "Path to the local outbox database")
		interval = flag.Duration("interval", defaultSyncInterval, "Background sync interval")
		logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	if *club == "" || *match == "" {
		os.Stderr.WriteString("both -club and -match are required\n")
		os.Exit(1)
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()
	_ = logger.SetLevelString(*logLevel)
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	box, err := outbox.New(*dbPath)
	if err != nil {
		os.Stderr.WriteString("failed to open outbox: " + err.Error() + "\n")
		return
	}
	defer box.Close()

	sync := syncer.New(box, syncer.NewClient(*baseURL, *club),
		syncer.WithInterval(*interval),
		syncer.WithLogger(log),
	)
	go sync.Run(ctx)

	if pending, err := box.PendingCount(ctx); err == nil && pending > 0 {
		fmt.Printf("resuming with %d unsent entries\n", pending)
	}

	repl(ctx, box, sync, *match)
}

// captureLine is one stdin event in JSON form. corrects names the
// client_event_id of an earlier capture to replace; the sync worker
// resolves the server sequence once that entry is confirmed.
type captureLine struct {
	Type     model.EventType `json:"event_type"`
	Team     model.Team      `json:"team"`
	ActorRef string          `json:"actor_ref,omitempty"`
	Minute   int             `json:"minute"`
	Payload  model.Payload   `json:"payload,omitempty"`
	Corrects string          `json:"corrects,omitempty"`
}

func repl(ctx context.Context, box *outbox.Outbox, sync *syncer.Syncer, matchID string) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("one JSON event per line; commands: sync, pending, failed, quit")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			return
		case "sync":
			sync.Kick()
			continue
		case "pending":
			if n, err := box.PendingCount(ctx); err == nil {
				fmt.Printf("%d pending\n", n)
			}
			continue
		case "failed":
			printFailed(ctx, box)
			continue
		}

		var c captureLine
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			fmt.Println("bad input:", err)
			continue
		}
		id := uuid.NewString()
		err := box.Enqueue(ctx, outbox.Entry{
			ClientEventID:    id,
			MatchID:          matchID,
			Type:             c.Type,
			Team:             c.Team,
			ActorRef:         c.ActorRef,
			Minute:           c.Minute,
			Payload:          c.Payload,
			CorrectsClientID: c.Corrects,
		})
		if err != nil {
			fmt.Println("capture failed:", err)
			continue
		}
		fmt.Println("captured", id)
		sync.Kick()
	}
}

func printFailed(ctx context.Context, box *outbox.Outbox) {
	failed, err := box.Failed(ctx)
	if err != nil {
		fmt.Println("read failed entries:", err)
		return
	}
	if len(failed) == 0 {
		fmt.Println("no failed entries")
		return
	}
	for _, e := range failed {
		fmt.Printf("%s %s minute=%d: %s\n", e.ClientEventID, e.Type, e.Minute, e.LastError)
	}
}
