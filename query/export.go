package query

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/yairfalse/kerava/types"
)

// Format selects the export rendering.
type Format string

// Supported export formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a format name from the command line.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatTable, FormatJSON, FormatCSV:
		return Format(name), nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or csv)", name)
}

// Exporter renders query results in one of the supported formats.
type Exporter struct {
	Format Format
}

// Records renders an inventory listing.
func (e Exporter) Records(w io.Writer, records []types.ResourceRecord) error {
	switch e.Format {
	case FormatJSON:
		return writeJSON(w, records)
	case FormatCSV:
		rows := [][]string{{"account_id", "department", "resource_type", "resource_id", "region", "monthly_cost", "collected_at"}}
		for _, r := range records {
			rows = append(rows, []string{
				r.AccountID, r.Department, r.ResourceType, r.ResourceID, r.Region,
				formatCost(r.MonthlyCost), r.CollectedAt.UTC().Format(time.RFC3339),
			})
		}
		return csv.NewWriter(w).WriteAll(rows)
	default:
		tw := newTable(w)
		fmt.Fprintln(tw, "ACCOUNT\tDEPARTMENT\tTYPE\tRESOURCE\tREGION\tMONTHLY COST")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t$%s\n",
				r.AccountID, r.Department, r.ResourceType, truncate(r.ResourceID, 48), r.Region, formatCost(r.MonthlyCost))
		}
		return tw.Flush()
	}
}

// Summary renders an inventory summary.
func (e Exporter) Summary(w io.Writer, summary *Summary) error {
	switch e.Format {
	case FormatJSON:
		return writeJSON(w, summary)
	case FormatCSV:
		rows := [][]string{{"dimension", "value", "count"}}
		for _, entry := range sortedCounts(summary.ByType) {
			rows = append(rows, []string{"type", entry.key, strconv.Itoa(entry.count)})
		}
		for _, entry := range sortedCounts(summary.ByDepartment) {
			rows = append(rows, []string{"department", entry.key, strconv.Itoa(entry.count)})
		}
		for _, entry := range sortedCounts(summary.ByRegion) {
			rows = append(rows, []string{"region", entry.key, strconv.Itoa(entry.count)})
		}
		return csv.NewWriter(w).WriteAll(rows)
	default:
		fmt.Fprintf(w, "Inventory Summary:\n")
		fmt.Fprintf(w, "   Total resources: %d\n", summary.TotalResources)
		fmt.Fprintf(w, "   Total monthly cost: $%s\n\n", formatCost(summary.TotalMonthlyCost))

		tw := newTable(w)
		fmt.Fprintln(tw, "TYPE\tCOUNT")
		for _, entry := range sortedCounts(summary.ByType) {
			fmt.Fprintf(tw, "%s\t%d\n", entry.key, entry.count)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(w)
		tw = newTable(w)
		fmt.Fprintln(tw, "DEPARTMENT\tCOUNT\tMONTHLY COST")
		for _, entry := range sortedCounts(summary.ByDepartment) {
			fmt.Fprintf(tw, "%s\t%d\t$%s\n", entry.key, entry.count, formatCost(summary.CostByDepartment[entry.key]))
		}
		return tw.Flush()
	}
}

// CostReport renders a cost breakdown.
func (e Exporter) CostReport(w io.Writer, report *CostReport) error {
	switch e.Format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatCSV:
		rows := [][]string{{"department", "monthly_cost"}}
		for _, entry := range sortedCosts(report.ByDepartment) {
			rows = append(rows, []string{entry.key, formatCost(entry.cost)})
		}
		return csv.NewWriter(w).WriteAll(rows)
	default:
		fmt.Fprintf(w, "Cost Report (%s):\n", report.GeneratedAt.Format("2006-01-02"))
		fmt.Fprintf(w, "   Monthly: $%s\n", formatCost(report.TotalMonthly))
		fmt.Fprintf(w, "   Projected yearly: $%s\n\n", formatCost(report.ProjectedYearly))

		tw := newTable(w)
		fmt.Fprintln(tw, "DEPARTMENT\tMONTHLY COST")
		for _, entry := range sortedCosts(report.ByDepartment) {
			fmt.Fprintf(tw, "%s\t$%s\n", entry.key, formatCost(entry.cost))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if len(report.TopResources) == 0 {
			return nil
		}
		fmt.Fprintf(w, "\nMost expensive resources:\n")
		tw = newTable(w)
		fmt.Fprintln(tw, "RESOURCE\tTYPE\tACCOUNT\tMONTHLY COST")
		for _, r := range report.TopResources {
			fmt.Fprintf(tw, "%s\t%s\t%s\t$%s\n", truncate(r.ResourceID, 48), r.ResourceType, r.AccountID, formatCost(r.MonthlyCost))
		}
		return tw.Flush()
	}
}

// Stale renders stale resources, oldest first.
func (e Exporter) Stale(w io.Writer, stale []StaleResource) error {
	switch e.Format {
	case FormatJSON:
		return writeJSON(w, stale)
	case FormatCSV:
		rows := [][]string{{"account_id", "resource_type", "resource_id", "age_days"}}
		for _, s := range stale {
			rows = append(rows, []string{s.Record.AccountID, s.Record.ResourceType, s.Record.ResourceID, strconv.Itoa(s.AgeDays)})
		}
		return csv.NewWriter(w).WriteAll(rows)
	default:
		tw := newTable(w)
		fmt.Fprintln(tw, "RESOURCE\tTYPE\tACCOUNT\tAGE (DAYS)")
		for _, s := range stale {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", truncate(s.Record.ResourceID, 48), s.Record.ResourceType, s.Record.AccountID, s.AgeDays)
		}
		return tw.Flush()
	}
}

// Idle renders idle resources with their potential savings.
func (e Exporter) Idle(w io.Writer, idle []IdleResource) error {
	switch e.Format {
	case FormatJSON:
		return writeJSON(w, idle)
	case FormatCSV:
		rows := [][]string{{"account_id", "resource_type", "resource_id", "reason", "monthly_savings"}}
		for _, i := range idle {
			rows = append(rows, []string{i.Record.AccountID, i.Record.ResourceType, i.Record.ResourceID, i.Reason, formatCost(i.MonthlySavings)})
		}
		return csv.NewWriter(w).WriteAll(rows)
	default:
		tw := newTable(w)
		fmt.Fprintln(tw, "RESOURCE\tTYPE\tACCOUNT\tREASON\tSAVINGS")
		for _, i := range idle {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t$%s\n",
				truncate(i.Record.ResourceID, 48), i.Record.ResourceType, i.Record.AccountID, i.Reason, formatCost(i.MonthlySavings))
		}
		return tw.Flush()
	}
}

// Findings renders security findings, high severity first.
func (e Exporter) Findings(w io.Writer, findings []Finding) error {
	sort.SliceStable(findings, func(i, j int) bool {
		order := map[string]int{"high": 2, "medium": 1}
		return order[findings[i].Severity] > order[findings[j].Severity]
	})

	switch e.Format {
	case FormatJSON:
		return writeJSON(w, findings)
	case FormatCSV:
		rows := [][]string{{"account_id", "resource_type", "resource_id", "issue", "severity"}}
		for _, f := range findings {
			rows = append(rows, []string{f.Record.AccountID, f.Record.ResourceType, f.Record.ResourceID, f.Issue, f.Severity})
		}
		return csv.NewWriter(w).WriteAll(rows)
	default:
		tw := newTable(w)
		fmt.Fprintln(tw, "RESOURCE\tTYPE\tACCOUNT\tISSUE\tSEVERITY")
		for _, f := range findings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				truncate(f.Record.ResourceID, 48), f.Record.ResourceType, f.Record.AccountID, f.Issue, f.Severity)
		}
		return tw.Flush()
	}
}

// Helpers

type countEntry struct {
	key   string
	count int
}

func sortedCounts(m map[string]int) []countEntry {
	entries := make([]countEntry, 0, len(m))
	for key, count := range m {
		entries = append(entries, countEntry{key, count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return entries
}

type costEntry struct {
	key  string
	cost float64
}

// sortedCosts orders cost buckets most expensive first, with the key
// as tiebreaker so output stays deterministic.
func sortedCosts(m map[string]float64) []costEntry {
	entries := make([]costEntry, 0, len(m))
	for key, cost := range m {
		entries = append(entries, costEntry{key, cost})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].cost != entries[j].cost {
			return entries[i].cost > entries[j].cost
		}
		return entries[i].key < entries[j].key
	})
	return entries
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatCost(cost float64) string {
	return strconv.FormatFloat(cost, 'f', 2, 64)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
