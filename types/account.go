package types

import "fmt"

// Account identifies one collection scope: an AWS account reachable
// through an assumable role. Accounts are read-only config input and
// immutable for the duration of a run.
type Account struct {
	ID         string            `yaml:"account_id" json:"account_id"`
	Name       string            `yaml:"name" json:"name"`
	RoleName   string            `yaml:"role_name" json:"role_name"`
	ExternalID string            `yaml:"external_id,omitempty" json:"external_id,omitempty"`
	Enabled    bool              `yaml:"enabled" json:"enabled"`
	Tags       map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Department returns the cost-attribution group for the account:
// the "department" tag when set, otherwise the account name.
func (a Account) Department() string {
	if d, ok := a.Tags["department"]; ok && d != "" {
		return d
	}
	return a.Name
}

// Validate ensures the account can be collected from.
func (a Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account ID cannot be empty")
	}
	if a.RoleName == "" {
		return fmt.Errorf("account %s: role name cannot be empty", a.ID)
	}
	return nil
}
