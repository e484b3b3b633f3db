package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"synctree/internal/bom"
	"synctree/internal/config"
	"synctree/internal/domain"
	"synctree/internal/service"
)

// skippedPreview is how many skipped BOM rows are listed before collapsing the rest.
const skippedPreview = 5

// parseArgs parses fs allowing flags after positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func supplierFlag(fs *flag.FlagSet, help string) *string {
	s := fs.String("supplier", "", help)
	fs.StringVar(s, "s", "", "shorthand for --supplier")
	return s
}

func checkSupplier(stderr io.Writer, supplier string) (string, error) {
	if supplier != "" && !config.IsKnownSupplier(supplier) {
		fmt.Fprintf(stderr, "Error: Invalid supplier '%s'. Must be 'digikey' or 'mouser'\n", supplier)
		return "", errUsage
	}
	return strings.ToLower(supplier), nil
}

// --- add ---

func runAdd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	flags.register(fs)
	supplierOpt := supplierFlag(fs, "specific supplier to use (default: try all configured suppliers)")

	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		fmt.Fprintln(stderr, "Usage: synctree add <part-number> [--supplier digikey|mouser] [--verbose] [--dry-run]")
		return errUsage
	}
	partNumber := pos[0]
	supplier, err := checkSupplier(stderr, *supplierOpt)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, flags, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(stdout, "Searching for part: %s\n", partNumber)
	if supplier != "" {
		fmt.Fprintf(stdout, "Using supplier: %s\n", supplier)
	}

	result, err := a.svc.SyncPart(ctx, partNumber, supplier)
	if errors.Is(err, service.ErrPartNotFound) {
		searched := supplier
		if searched == "" {
			searched = strings.Join(a.svc.Suppliers(), ", ")
		}
		fmt.Fprintf(stderr, "Part '%s' not found\n   Searched in: %s\n", partNumber, searched)
		return errUsage
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "\nSuccessfully synced part to InvenTree!")
	fmt.Fprintln(stdout, "\nPart Information:")
	fmt.Fprintf(stdout, "   Manufacturer: %s\n", result.Manufacturer)
	fmt.Fprintf(stdout, "   MPN: %s\n", result.ManufacturerPartNumber)
	fmt.Fprintf(stdout, "   Supplier: %s\n", result.Supplier)
	fmt.Fprintf(stdout, "   SKU: %s\n", result.SupplierPartNumber)
	if flags.verbose {
		fmt.Fprintln(stdout, "\nDetails:")
		fmt.Fprintf(stdout, "   Description: %s\n", result.Description)
		fmt.Fprintf(stdout, "   InvenTree Part ID: %d\n", result.InvenTreePartID)
		fmt.Fprintf(stdout, "   InvenTree Supplier Part ID: %d\n", result.InvenTreeSupplierPartID)
	}
	return nil
}

// --- bom ---

func runBom(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("bom", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	flags.register(fs)

	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		fmt.Fprintln(stderr, "Usage: synctree bom <assembly-part-number> <bom-file|s3://bucket/key> [--verbose] [--dry-run]")
		return errUsage
	}
	assemblyPN, source := pos[0], pos[1]

	a, err := newApp(ctx, flags, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(stdout, "Reading BOM file: %s\n", source)
	rows, skipped, err := bom.ReadSource(ctx, source, a.cfg.S3)
	if errors.Is(err, bom.ErrSourceNotFound) {
		fmt.Fprintf(stderr, "Error: File not found: %s\n", source)
		return errUsage
	}
	if err != nil {
		return err
	}
	printSkipped(stdout, skipped)
	if len(rows) == 0 {
		fmt.Fprintln(stderr, "No valid BOM items found in file")
		return errUsage
	}
	fmt.Fprintf(stdout, "Found %d BOM items\n\n", len(rows))

	progress := func(done, total int, row domain.BomRowResult) {
		if row.Success && !flags.verbose {
			return
		}
		mark := "ok  "
		if !row.Success {
			mark = "FAIL"
		}
		fmt.Fprintf(stdout, "  [%d/%d] %s row %d: %s\n", done, total, mark, row.Row, row.Message)
	}

	fmt.Fprintf(stdout, "Creating assembly part: %s\n", assemblyPN)
	summary, err := a.svc.ImportBOM(ctx, assemblyPN, rows, progress)
	if summary == nil {
		return fmt.Errorf("create assembly part %s: %w", assemblyPN, err)
	}

	fmt.Fprintf(stdout, "\nBOM import complete for %s (ID: %d)\n", summary.Assembly.Name, summary.Assembly.InvenTreePartID)
	fmt.Fprintf(stdout, "   Successfully added: %d items\n", summary.SuccessCount)
	if summary.ErrorCount > 0 {
		fmt.Fprintf(stdout, "   Failed: %d items\n", summary.ErrorCount)
	}
	// Failed rows are part of the summary; only an interrupted import is an error.
	return err
}

func printSkipped(w io.Writer, skipped []domain.SkippedRow) {
	if len(skipped) == 0 {
		return
	}
	fmt.Fprintf(w, "Skipped %d rows:\n", len(skipped))
	for i, s := range skipped {
		if i == skippedPreview {
			fmt.Fprintf(w, "   ... and %d more\n", len(skipped)-skippedPreview)
			break
		}
		fmt.Fprintf(w, "   %s\n", s.Reason)
	}
}

// --- sync ---

func runSync(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	flags.register(fs)
	supplierOpt := supplierFlag(fs, "specific supplier to sync (default: all configured suppliers)")

	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	supplier, err := checkSupplier(stderr, *supplierOpt)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, flags, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintln(stdout, "Starting supplier part synchronization...")
	if supplier != "" {
		fmt.Fprintf(stdout, "   Syncing supplier: %s\n", supplier)
	} else {
		fmt.Fprintln(stdout, "   Syncing all configured suppliers")
	}

	var summary domain.ResyncSummary
	for st := range a.svc.ResyncAll(ctx, supplier) {
		summary.Add(st)
		printResyncStatus(stdout, st, flags.verbose)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "\nSynchronization complete!")
	fmt.Fprintln(stdout, "\nSummary:")
	fmt.Fprintf(stdout, "   Total parts processed: %d\n", summary.Total)
	fmt.Fprintf(stdout, "   Up to date: %d\n", summary.UpToDate)
	fmt.Fprintf(stdout, "   Updated: %d\n", summary.Updated)
	if summary.NotFound > 0 {
		fmt.Fprintf(stdout, "   Not found in supplier: %d\n", summary.NotFound)
	}
	if summary.Errors > 0 {
		fmt.Fprintf(stdout, "   Errors: %d\n", summary.Errors)
	}
	return nil
}

func printResyncStatus(w io.Writer, st domain.ResyncStatus, verbose bool) {
	switch st.Status {
	case domain.ResyncUpToDate:
		if verbose {
			fmt.Fprintf(w, "  ok      %s: %s - %s\n", st.Supplier, st.SKU, st.Message)
		}
	case domain.ResyncUpdated:
		fmt.Fprintf(w, "  updated %s: %s - %s\n", st.Supplier, st.SKU, st.Message)
		if verbose {
			fields := make([]string, 0, len(st.Changes))
			for f := range st.Changes {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				c := st.Changes[f]
				fmt.Fprintf(w, "      %s: %v -> %v\n", f, c.Old, c.New)
			}
		}
	case domain.ResyncNotFound:
		fmt.Fprintf(w, "  missing %s: %s - %s\n", st.Supplier, st.SKU, st.Message)
	default:
		fmt.Fprintf(w, "  error   %s: %s - %s\n", st.Supplier, st.SKU, st.Message)
	}
}

// --- config ---

func runConfig(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st := cfg.Status()

	configured := func(ok bool) string {
		if ok {
			return "configured"
		}
		return "not configured"
	}
	fmt.Fprintln(stdout, "SyncTree Configuration")
	fmt.Fprintf(stdout, "   InvenTree: %s\n", configured(st.InvenTree.Configured))
	fmt.Fprintf(stdout, "   Digikey: %s\n", configured(st.Digikey.Configured))
	fmt.Fprintf(stdout, "   Mouser: %s\n", configured(st.Mouser.Configured))
	fmt.Fprintf(stdout, "   Part key: %s\n", st.PartKey)
	fmt.Fprintf(stdout, "   Image cache: %s\n", st.ImageDir)
	fmt.Fprintf(stdout, "   Sync history: %s\n", configured(st.History))
	if len(st.Suppliers) > 0 {
		fmt.Fprintf(stdout, "   Suppliers: %s\n", strings.Join(st.Suppliers, ", "))
	}

	if len(st.Details) > 0 {
		fmt.Fprintln(stdout, "\nDetails:")
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		for _, d := range st.Details {
			fmt.Fprintf(tw, "   %s:\t%s\n", d.Name, d.Value)
		}
		tw.Flush()
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stdout, "\nConfiguration error: %v\n", err)
	}
	return nil
}

// --- history ---

func runHistory(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", 20, "number of runs to list")

	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Postgres.Enabled() {
		fmt.Fprintln(stderr, "Sync history is not configured. Set POSTGRES_HOST to enable it.")
		return errUsage
	}
	history, err := openHistory(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer history.Close()

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if len(pos) > 0 {
		items, err := history.ListRunItems(ctx, pos[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "REFERENCE\tSUPPLIER\tSTATUS\tINVENTREE ID\tMESSAGE")
		for _, it := range items {
			id := "-"
			if it.InvenTreeID != nil {
				id = fmt.Sprint(*it.InvenTreeID)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.Reference, it.Supplier, it.Status, id, it.Message)
		}
		return nil
	}

	runs, err := history.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "ID\tKIND\tTARGET\tSTARTED\tDURATION\tTOTAL\tOK\tFAILED")
	for _, r := range runs {
		duration := "running"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.Kind, r.Target, r.StartedAt.Local().Format(time.DateTime), duration, r.Total, r.Succeeded, r.Failed)
	}
	return nil
}
