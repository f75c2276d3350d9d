package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/events"
	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/internal/tmux"
	"github.com/sprinteroz/overstory/internal/watchdog"
)

var watchdogFlags struct {
	once bool
}

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Evaluate agent health and apply state transitions",
	Long: `Sweep the session registry: dead tmux sessions become zombies, idle
agents become stalled, and persistent agents are flipped out of booting.
Runs on the configured interval until interrupted; --once sweeps one time
and exits.`,
	RunE: runWatchdog,
}

func init() {
	watchdogCmd.Flags().BoolVar(&watchdogFlags.once, "once", false, "sweep once and exit")
}

func runWatchdog(cmd *cobra.Command, args []string) error {
	if err := CheckTmux(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := debugLogger(cfg)
	defer logger.Close()

	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		return err
	}
	defer sessions.Close()

	eventStore, err := events.Open(cfg.EventsDBPath())
	if err != nil {
		return err
	}
	defer eventStore.Close()

	w := watchdog.New(sessions, tmux.NewRunner(), eventStore, watchdog.Thresholds{
		StaleMs:  cfg.StaleThresholdMs(),
		ZombieMs: cfg.ZombieThresholdMs(),
	}, logger)

	if watchdogFlags.once {
		transitions, err := w.Sweep()
		if err != nil {
			return err
		}
		if len(transitions) == 0 {
			fmt.Println("All sessions healthy.")
		}
		for _, t := range transitions {
			fmt.Printf("%s: %s -> %s\n", t.AgentName, t.From, stateName(t.To))
		}
		return nil
	}

	interval := time.Duration(cfg.Watchdog.Tier0IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	fmt.Printf("Watchdog sweeping every %s (ctrl-c to stop)\n", interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := w.Run(ctx, interval); err != context.Canceled {
		return err
	}
	return nil
}
