// Package query answers questions about the collected inventory:
// what exists, what it costs, what sits idle, what looks insecure,
// and what has not been seen in a while.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yairfalse/kerava/cost"
	"github.com/yairfalse/kerava/types"
)

// Idle thresholds. A lambda below the invocation floor over its
// 30-day window counts as idle.
const (
	lambdaIdleInvocations = 10
	stalePeriod           = 24 * time.Hour
)

// RecordSource is the store capability the query engine needs.
type RecordSource interface {
	Scan(filter types.RecordFilter) ([]types.ResourceRecord, error)
}

var estimator = cost.NewEstimator()

// Summary aggregates the inventory by its main dimensions.
type Summary struct {
	TotalResources   int                `json:"total_resources"`
	TotalMonthlyCost float64            `json:"total_monthly_cost"`
	ByType           map[string]int     `json:"by_type"`
	ByDepartment     map[string]int     `json:"by_department"`
	ByRegion         map[string]int     `json:"by_region"`
	ByAccount        map[string]int     `json:"by_account"`
	CostByDepartment map[string]float64 `json:"cost_by_department"`
}

// CostReport breaks monthly spend down and projects it forward.
type CostReport struct {
	GeneratedAt     time.Time              `json:"generated_at"`
	TotalMonthly    float64                `json:"total_monthly"`
	ProjectedYearly float64                `json:"projected_yearly"`
	ByDepartment    map[string]float64     `json:"by_department"`
	ByType          map[string]float64     `json:"by_type"`
	ByAccount       map[string]float64     `json:"by_account"`
	TopResources    []types.ResourceRecord `json:"top_resources"`
}

// StaleResource is a record not refreshed within the staleness window.
type StaleResource struct {
	Record  types.ResourceRecord `json:"record"`
	AgeDays int                  `json:"age_days"`
}

// IdleResource is a resource that exists but does no work.
type IdleResource struct {
	Record         types.ResourceRecord `json:"record"`
	Reason         string               `json:"reason"`
	MonthlySavings float64              `json:"monthly_savings"`
}

// Finding is one security observation about a resource.
type Finding struct {
	Record   types.ResourceRecord `json:"record"`
	Issue    string               `json:"issue"`
	Severity string               `json:"severity"`
}

// Engine runs inventory queries against a record source.
type Engine struct {
	source RecordSource
	now    func() time.Time
}

// NewEngine creates a query engine.
func NewEngine(source RecordSource) *Engine {
	return &Engine{source: source, now: time.Now}
}

// Summary aggregates all records matching the filter.
func (e *Engine) Summary(filter types.RecordFilter) (*Summary, error) {
	records, err := e.source.Scan(filter)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ByType:           make(map[string]int),
		ByDepartment:     make(map[string]int),
		ByRegion:         make(map[string]int),
		ByAccount:        make(map[string]int),
		CostByDepartment: make(map[string]float64),
	}
	for _, record := range records {
		summary.TotalResources++
		summary.TotalMonthlyCost += record.MonthlyCost
		summary.ByType[record.ResourceType]++
		summary.ByDepartment[record.Department]++
		summary.ByRegion[record.Region]++
		summary.ByAccount[record.AccountID]++
		summary.CostByDepartment[record.Department] += record.MonthlyCost
	}
	return summary, nil
}

// CostReport aggregates spend and lists the topN most expensive
// resources, costliest first.
func (e *Engine) CostReport(filter types.RecordFilter, topN int) (*CostReport, error) {
	records, err := e.source.Scan(filter)
	if err != nil {
		return nil, err
	}

	report := &CostReport{
		GeneratedAt:  e.now().UTC(),
		ByDepartment: make(map[string]float64),
		ByType:       make(map[string]float64),
		ByAccount:    make(map[string]float64),
	}
	for _, record := range records {
		report.TotalMonthly += record.MonthlyCost
		report.ByDepartment[record.Department] += record.MonthlyCost
		report.ByType[record.ResourceType] += record.MonthlyCost
		report.ByAccount[record.AccountID] += record.MonthlyCost
	}
	report.ProjectedYearly = report.TotalMonthly * 12

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].MonthlyCost > records[j].MonthlyCost
	})
	if topN > 0 && len(records) > topN {
		records = records[:topN]
	}
	report.TopResources = records

	return report, nil
}

// Stale returns records older than the given number of days, oldest
// first.
func (e *Engine) Stale(filter types.RecordFilter, days int) ([]StaleResource, error) {
	records, err := e.source.Scan(filter)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	cutoff := now.Add(-time.Duration(days) * stalePeriod)

	var stale []StaleResource
	for _, record := range records {
		if record.CollectedAt.Before(cutoff) {
			stale = append(stale, StaleResource{
				Record:  record,
				AgeDays: int(now.Sub(record.CollectedAt) / stalePeriod),
			})
		}
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].Record.CollectedAt.Before(stale[j].Record.CollectedAt)
	})
	return stale, nil
}

// Idle flags resources that exist but do no work: stopped instances,
// functions without invocations, empty buckets.
func (e *Engine) Idle(filter types.RecordFilter) ([]IdleResource, error) {
	records, err := e.source.Scan(filter)
	if err != nil {
		return nil, err
	}

	var idle []IdleResource
	for _, record := range records {
		if reason, ok := idleReason(record); ok {
			idle = append(idle, IdleResource{
				Record:         record,
				Reason:         reason,
				MonthlySavings: record.MonthlyCost,
			})
			continue
		}
		if reason, savings, ok := downsizeCandidate(record); ok {
			idle = append(idle, IdleResource{
				Record:         record,
				Reason:         reason,
				MonthlySavings: savings,
			})
		}
	}
	return idle, nil
}

// Security checks each record for public exposure and missing
// encryption at rest.
func (e *Engine) Security(filter types.RecordFilter) ([]Finding, error) {
	records, err := e.source.Scan(filter)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, record := range records {
		if record.AttrBool("public_access") || record.AttrBool("publicly_accessible") || record.Attr("public_ip") != "" {
			findings = append(findings, Finding{
				Record:   record,
				Issue:    "publicly accessible",
				Severity: "high",
			})
		}
		if encrypted, present := encryptionState(record); present && !encrypted {
			findings = append(findings, Finding{
				Record:   record,
				Issue:    "not encrypted at rest",
				Severity: "medium",
			})
		}
	}
	return findings, nil
}

func idleReason(record types.ResourceRecord) (string, bool) {
	switch record.ResourceType {
	case "ec2":
		if record.Attr("state") == "stopped" {
			return "instance stopped", true
		}
	case "rds":
		if record.Attr("status") == "stopped" {
			return "database stopped", true
		}
	case "lambda":
		if record.AttrFloat("invocations_30d") < lambdaIdleInvocations {
			return "fewer than 10 invocations in 30 days", true
		}
	case "s3":
		if record.AttrFloat("object_count") == 0 {
			return "bucket is empty", true
		}
	}
	return "", false
}

// currentGen maps prior-generation ec2 instance families to their
// drop-in replacement, used to price the downsizing opportunity.
var currentGen = map[string]string{
	"t2": "t3",
	"m4": "m5",
	"c4": "c5",
	"r4": "r5",
}

// downsizeCandidate flags a running instance of a prior-generation
// family when switching to the current family would cost less.
func downsizeCandidate(record types.ResourceRecord) (string, float64, bool) {
	if record.ResourceType != "ec2" || record.Attr("state") != "running" {
		return "", 0, false
	}
	family, size, ok := strings.Cut(record.Attr("instance_type"), ".")
	if !ok {
		return "", 0, false
	}
	replacement, ok := currentGen[family]
	if !ok {
		return "", 0, false
	}

	attrs := make(map[string]any, len(record.Attributes))
	for k, v := range record.Attributes {
		attrs[k] = v
	}
	attrs["instance_type"] = replacement + "." + size

	savings := record.MonthlyCost - estimator.Estimate("ec2", attrs)
	if savings <= 0 {
		return "", 0, false
	}
	return fmt.Sprintf("previous generation instance, %s.%s available", replacement, size), savings, true
}

// encryptionState reads whichever encryption attribute the resource
// type carries. Records without one are not judged.
func encryptionState(record types.ResourceRecord) (encrypted, present bool) {
	for _, attr := range []string{"encryption", "storage_encrypted"} {
		if value, ok := record.Attributes[attr]; ok {
			if b, ok := value.(bool); ok {
				return b, true
			}
		}
	}
	return false, false
}
