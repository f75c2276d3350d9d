package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/events"
	"github.com/sprinteroz/overstory/internal/oops"
)

var traceFlags struct {
	agent string
	run   string
	since time.Duration
	limit int
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Show the event timeline",
	Long: `Read the append-only event log: spawns, tool activity, mail, state
transitions, and errors. Filter by agent or run; default is the global
timeline.`,
	RunE: runTrace,
}

func init() {
	f := traceCmd.Flags()
	f.StringVar(&traceFlags.agent, "agent", "", "events for one agent")
	f.StringVar(&traceFlags.run, "run", "", "events for one run")
	f.DurationVar(&traceFlags.since, "since", 0, "only events newer than this age")
	f.IntVar(&traceFlags.limit, "limit", 200, "maximum events to show")
}

func runTrace(cmd *cobra.Command, args []string) error {
	if traceFlags.agent != "" && traceFlags.run != "" {
		return oops.New(oops.CodeValidation, "pass at most one of --agent and --run")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eventStore, err := events.Open(cfg.EventsDBPath())
	if err != nil {
		return err
	}
	defer eventStore.Close()

	q := events.Query{Limit: traceFlags.limit}
	if traceFlags.since > 0 {
		q.Since = time.Now().Add(-traceFlags.since)
	}

	var evs []*events.Event
	switch {
	case traceFlags.agent != "":
		evs, err = eventStore.GetByAgent(traceFlags.agent, q)
	case traceFlags.run != "":
		evs, err = eventStore.GetByRun(traceFlags.run, q)
	default:
		evs, err = eventStore.GetTimeline(q)
	}
	if err != nil {
		return err
	}

	if len(evs) == 0 {
		fmt.Println("No events.")
		return nil
	}
	for _, e := range evs {
		printEvent(e)
	}
	return nil
}

func printEvent(e *events.Event) {
	detail := ""
	if e.ToolName != "" {
		detail = " " + e.ToolName
		if e.ToolDurMs != nil {
			detail += fmt.Sprintf(" (%dms)", *e.ToolDurMs)
		}
	}
	if e.Data != "" {
		detail += " " + e.Data
	}
	fmt.Printf("%s  %-5s %-14s %s%s\n",
		e.CreatedAt.Local().Format("15:04:05.000"), e.Level, e.Type, e.AgentName, detail)
}
