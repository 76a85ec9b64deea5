// Package types defines the shared data model for Kerava: accounts,
// resource records, collection tasks and run reports.
package types

import (
	"fmt"
	"time"
)

// ResourceRecord is the normalized representation of one cloud resource.
// Every collector variant emits these and every query consumes them.
type ResourceRecord struct {
	AccountID    string         `json:"account_id"`
	AccountName  string         `json:"account_name"`
	Department   string         `json:"department"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Region       string         `json:"region"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	MonthlyCost  float64        `json:"estimated_monthly_cost"`
	CollectedAt  time.Time      `json:"collected_at"`
}

// RecordKey identifies a record uniquely across runs.
type RecordKey struct {
	AccountID    string
	ResourceType string
	ResourceID   string
}

// String renders the key in its storage form, account first so that
// byte order groups records by account.
func (k RecordKey) String() string {
	return k.AccountID + "|" + k.ResourceType + "#" + k.ResourceID
}

// Key returns the record's unique key.
func (r *ResourceRecord) Key() RecordKey {
	return RecordKey{
		AccountID:    r.AccountID,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
	}
}

// SortKey returns the within-account sort key.
func (r *ResourceRecord) SortKey() string {
	return r.ResourceType + "#" + r.ResourceID
}

// Validate ensures the record carries its identity fields.
func (r *ResourceRecord) Validate() error {
	if r.AccountID == "" {
		return fmt.Errorf("record account ID cannot be empty")
	}
	if r.ResourceType == "" {
		return fmt.Errorf("record resource type cannot be empty")
	}
	if r.ResourceID == "" {
		return fmt.Errorf("record resource ID cannot be empty")
	}
	return nil
}

// Attr returns a string attribute, or empty if absent or not a string.
func (r *ResourceRecord) Attr(key string) string {
	if r.Attributes == nil {
		return ""
	}
	if v, ok := r.Attributes[key].(string); ok {
		return v
	}
	return ""
}

// AttrFloat returns a numeric attribute as float64.
func (r *ResourceRecord) AttrFloat(key string) float64 {
	if r.Attributes == nil {
		return 0
	}
	switch v := r.Attributes[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// AttrBool returns a boolean attribute.
func (r *ResourceRecord) AttrBool(key string) bool {
	if r.Attributes == nil {
		return false
	}
	if v, ok := r.Attributes[key].(bool); ok {
		return v
	}
	return false
}

// Tags returns the resource's provider tags, if the collector stored any.
func (r *ResourceRecord) Tags() map[string]string {
	if r.Attributes == nil {
		return nil
	}
	switch v := r.Attributes["tags"].(type) {
	case map[string]string:
		return v
	case map[string]any:
		tags := make(map[string]string, len(v))
		for k, val := range v {
			if s, ok := val.(string); ok {
				tags[k] = s
			}
		}
		return tags
	}
	return nil
}

// RecordFilter selects records in scans and queries.
type RecordFilter struct {
	AccountID       string            `json:"account_id,omitempty"`
	ResourceType    string            `json:"resource_type,omitempty"`
	Department      string            `json:"department,omitempty"`
	Region          string            `json:"region,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
	CollectedAfter  time.Time         `json:"collected_after,omitempty"`
	CollectedBefore time.Time         `json:"collected_before,omitempty"`
	Limit           int               `json:"limit,omitempty"`
	Offset          int               `json:"offset,omitempty"`
}

// Matches checks if a record satisfies all filter criteria.
func (f RecordFilter) Matches(r *ResourceRecord) bool {
	return f.matchesBasicFields(r) && f.matchesTime(r) && f.matchesTags(r)
}

func (f RecordFilter) matchesBasicFields(r *ResourceRecord) bool {
	if f.AccountID != "" && r.AccountID != f.AccountID {
		return false
	}
	if f.ResourceType != "" && r.ResourceType != f.ResourceType {
		return false
	}
	if f.Department != "" && r.Department != f.Department {
		return false
	}
	if f.Region != "" && r.Region != f.Region {
		return false
	}
	return true
}

func (f RecordFilter) matchesTime(r *ResourceRecord) bool {
	if !f.CollectedAfter.IsZero() && !r.CollectedAt.After(f.CollectedAfter) {
		return false
	}
	if !f.CollectedBefore.IsZero() && !r.CollectedAt.Before(f.CollectedBefore) {
		return false
	}
	return true
}

func (f RecordFilter) matchesTags(r *ResourceRecord) bool {
	if len(f.Tags) == 0 {
		return true
	}
	tags := r.Tags()
	for key, value := range f.Tags {
		if tags[key] != value {
			return false
		}
	}
	return true
}
