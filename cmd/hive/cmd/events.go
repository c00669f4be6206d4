package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/msto63/hive/internal/eventlog"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/spf13/cobra"
)

var (
	eventsKind  string
	eventsLimit int
	eventsPrune time.Duration
	eventsDB    string
	eventsBody  bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Read the event log",
	Long: `List recorded sensor dumps (SDD), state logs (SSL) and error logs (SEL),
newest first.

Examples:
  hive events --kind sel --limit 20
  hive events --prune 336h`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsKind, "kind", "", "event kind: sdd, ssl or sel")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum number of events")
	eventsCmd.Flags().DurationVar(&eventsPrune, "prune", 0, "delete events older than this and exit")
	eventsCmd.Flags().StringVar(&eventsDB, "db", "", "event database (default: eventlog.path from config)")
	eventsCmd.Flags().BoolVar(&eventsBody, "body", false, "print the full event blocks")
}

// parseKind accepts "sel" as well as "LOG_SEL"
func parseKind(s string) (eventlog.Kind, error) {
	if s == "" {
		return "", nil
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "LOG_") {
		name = "LOG_" + name
	}
	switch kind := eventlog.Kind(name); kind {
	case eventlog.KindSDD, eventlog.KindSSL, eventlog.KindSEL:
		return kind, nil
	}
	return "", apperr.Newf("unknown event kind %q", s).WithCode(apperr.CodeInvalidInput)
}

func runEvents(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(eventsKind)
	if err != nil {
		return err
	}

	path := eventsDB
	if path == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.EventLog.Path
	}

	store, err := eventlog.OpenSQLite(path)
	if err != nil {
		printError("failed to open event log", err)
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if eventsPrune > 0 {
		n, err := store.Prune(ctx, eventsPrune)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d events older than %s\n", n, eventsPrune)
		return nil
	}

	events, err := store.Query(ctx, eventlog.Filter{Kind: kind, Limit: eventsLimit})
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events.")
		return nil
	}

	for _, e := range events {
		fmt.Printf("%s  %-7s %-12s state=%d %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind, e.EventID, e.State, e.Exception)
		if eventsBody {
			fmt.Println(e.Body)
		}
	}
	return nil
}
