package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResourceRecord_Keys(t *testing.T) {
	r := ResourceRecord{
		AccountID:    "111122223333",
		ResourceType: "ec2",
		ResourceID:   "i-abc123",
	}

	assert.Equal(t, RecordKey{"111122223333", "ec2", "i-abc123"}, r.Key())
	assert.Equal(t, "111122223333|ec2#i-abc123", r.Key().String())
	assert.Equal(t, "ec2#i-abc123", r.SortKey())
}

func TestResourceRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		record  ResourceRecord
		wantErr bool
	}{
		{
			name:   "valid record",
			record: ResourceRecord{AccountID: "1", ResourceType: "ec2", ResourceID: "i-1"},
		},
		{
			name:    "missing account",
			record:  ResourceRecord{ResourceType: "ec2", ResourceID: "i-1"},
			wantErr: true,
		},
		{
			name:    "missing type",
			record:  ResourceRecord{AccountID: "1", ResourceID: "i-1"},
			wantErr: true,
		},
		{
			name:    "missing resource ID",
			record:  ResourceRecord{AccountID: "1", ResourceType: "ec2"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResourceRecord_Attrs(t *testing.T) {
	r := ResourceRecord{
		Attributes: map[string]any{
			"instance_type": "t3.micro",
			"size_gb":       20.5,
			"port":          5432,
			"encrypted":     true,
			"tags":          map[string]string{"team": "data"},
		},
	}

	assert.Equal(t, "t3.micro", r.Attr("instance_type"))
	assert.Equal(t, "", r.Attr("missing"))
	assert.Equal(t, 20.5, r.AttrFloat("size_gb"))
	assert.Equal(t, 5432.0, r.AttrFloat("port"))
	assert.True(t, r.AttrBool("encrypted"))
	assert.Equal(t, "data", r.Tags()["team"])
}

func TestResourceRecord_TagsFromJSON(t *testing.T) {
	// Attributes round-tripped through JSON decode to map[string]any.
	r := ResourceRecord{
		Attributes: map[string]any{
			"tags": map[string]any{"env": "prod", "count": 3},
		},
	}

	tags := r.Tags()
	assert.Equal(t, "prod", tags["env"])
	_, hasCount := tags["count"]
	assert.False(t, hasCount)
}

func TestRecordFilter_Matches(t *testing.T) {
	now := time.Now()
	r := &ResourceRecord{
		AccountID:    "111122223333",
		Department:   "eng",
		ResourceType: "rds",
		Region:       "eu-west-1",
		CollectedAt:  now,
		Attributes:   map[string]any{"tags": map[string]string{"env": "prod"}},
	}

	tests := []struct {
		name   string
		filter RecordFilter
		want   bool
	}{
		{"empty filter matches", RecordFilter{}, true},
		{"type match", RecordFilter{ResourceType: "rds"}, true},
		{"type mismatch", RecordFilter{ResourceType: "ec2"}, false},
		{"department match", RecordFilter{Department: "eng"}, true},
		{"region mismatch", RecordFilter{Region: "us-east-1"}, false},
		{"tag match", RecordFilter{Tags: map[string]string{"env": "prod"}}, true},
		{"tag mismatch", RecordFilter{Tags: map[string]string{"env": "dev"}}, false},
		{"collected after", RecordFilter{CollectedAfter: now.Add(-time.Hour)}, true},
		{"collected after excludes", RecordFilter{CollectedAfter: now.Add(time.Hour)}, false},
		{"collected before excludes", RecordFilter{CollectedBefore: now.Add(-time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(r))
		})
	}
}

func TestAccount_Department(t *testing.T) {
	a := Account{ID: "1", Name: "platform-prod"}
	assert.Equal(t, "platform-prod", a.Department())

	a.Tags = map[string]string{"department": "platform"}
	assert.Equal(t, "platform", a.Department())
}

func TestAccount_Validate(t *testing.T) {
	assert.Error(t, Account{}.Validate())
	assert.Error(t, Account{ID: "111122223333"}.Validate())
	assert.NoError(t, Account{ID: "111122223333", RoleName: "InventoryRole"}.Validate())
}
