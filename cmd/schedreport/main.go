// Command schedreport prints a scheduling summary from the ledger database:
// transmitted-event counts per satellite, ground stations with committed
// contact time, and schedule-request outcomes with their reasons.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/signalsfoundry/mission-ledger/internal/logging"
	"github.com/signalsfoundry/mission-ledger/internal/store"
	"github.com/signalsfoundry/mission-ledger/model"
)

func main() {
	dbPath := flag.String("db", "mission-ledger.db", "Path to the sqlite database")
	orderType := flag.String("order-type", "", "Restrict the request breakdown to one order type (image, maintenance, outage)")
	flag.Parse()

	log := logging.Noop()
	ctx := context.Background()

	db, err := store.Open(*dbPath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database %q: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer db.Close()

	if err := report(ctx, db, model.OrderType(*orderType)); err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}
}

func report(ctx context.Context, db *store.Store, orderType model.OrderType) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	kinds, err := db.TransmittedCounts(ctx)
	if err != nil {
		return fmt.Errorf("transmitted counts: %w", err)
	}
	fmt.Fprintln(w, "TRANSMITTED EVENTS BY SATELLITE")
	fmt.Fprintln(w, "satellite\tkind\tcount")
	for _, row := range kinds {
		fmt.Fprintf(w, "%s\t%s\t%d\n", row.AssetID, row.Kind, row.Count)
	}
	if len(kinds) == 0 {
		fmt.Fprintln(w, "(none)")
	}
	fmt.Fprintln(w)

	active, err := db.ActiveContactCounts(ctx)
	if err != nil {
		return fmt.Errorf("active contacts: %w", err)
	}
	stations := make([]string, 0, len(active))
	for gs := range active {
		stations = append(stations, gs)
	}
	sort.Strings(stations)
	fmt.Fprintln(w, "ACTIVE CONTACTS BY GROUND STATION")
	fmt.Fprintln(w, "ground station\tcontacts")
	for _, gs := range stations {
		fmt.Fprintf(w, "%s\t%d\n", gs, active[gs])
	}
	if len(stations) == 0 {
		fmt.Fprintln(w, "(none)")
	}
	fmt.Fprintln(w)

	statuses, err := db.RequestStatusCounts(ctx, orderType)
	if err != nil {
		return fmt.Errorf("request breakdown: %w", err)
	}
	fmt.Fprintln(w, "SCHEDULE REQUESTS")
	fmt.Fprintln(w, "order type\tstatus\treason\tcount")
	for _, row := range statuses {
		reason := row.StatusMessage
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", row.OrderType, row.Status, reason, row.Count)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(w, "(none)")
	}
	return nil
}
