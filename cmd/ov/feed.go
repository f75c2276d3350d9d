package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/events"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Follow the event timeline live",
	Long: `Tail the event log. New events print as agents produce them; SQLite's
WAL makes writers visible without polling the whole table. Interrupt to
stop.`,
	RunE: runFeed,
}

func runFeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eventStore, err := events.Open(cfg.EventsDBPath())
	if err != nil {
		return err
	}
	defer eventStore.Close()

	// Start following from the current high-water mark, printing the
	// recent tail first so the feed has context.
	lastSeen, err := eventStore.LastID()
	if err != nil {
		return err
	}
	recent, err := eventStore.GetTimeline(events.Query{
		Since: time.Now().Add(-time.Minute),
	})
	if err != nil {
		return err
	}
	for _, e := range recent {
		printEvent(e)
	}

	// The watcher only wakes the loop early; the interval tick alone keeps
	// the feed correct, so a failed watcher degrades to pure polling.
	var watchEvents chan fsnotify.Event
	var watchErrors chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "watcher unavailable, polling instead: %v\n", err)
	} else {
		defer watcher.Close()
		// Watch the state dir, not the db file: WAL writes land in -wal/-shm
		// siblings and some editors replace files wholesale.
		if err := watcher.Add(cfg.StateDir()); err != nil {
			fmt.Fprintf(os.Stderr, "watch %s failed, polling instead: %v\n", cfg.StateDir(), err)
		} else {
			watchEvents = watcher.Events
			watchErrors = watcher.Errors
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Fallback tick: fsnotify can miss WAL checkpoint writes.
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-interrupt:
			return nil
		case err := <-watchErrors:
			fmt.Fprintf(os.Stderr, "watcher failed, polling instead: %v\n", err)
			watchEvents, watchErrors = nil, nil
		case <-watchEvents:
		case <-ticker.C:
		}

		lastSeen, err = printNewEvents(eventStore, lastSeen)
		if err != nil {
			return err
		}
	}
}

// printNewEvents prints events inserted after lastSeen and returns the new
// high-water mark.
func printNewEvents(store *events.Store, lastSeen int64) (int64, error) {
	evs, err := store.GetTimeline(events.Query{AfterID: lastSeen})
	if err != nil {
		return lastSeen, err
	}
	for _, e := range evs {
		printEvent(e)
		lastSeen = e.ID
	}
	return lastSeen, nil
}
