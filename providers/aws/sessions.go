// Package aws implements the AWS lister variants for Kerava. One
// lister per resource type; pagination is drained inside each variant.
package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/yairfalse/kerava/types"
)

// Region used for global services and STS calls.
const defaultRegion = "us-east-1"

// Sessions hands out per-account, per-region AWS configs by assuming
// the account's inventory role. Configs are cached for the life of
// the process; the credentials cache inside each config handles
// refresh.
type Sessions struct {
	mu    sync.Mutex
	base  aws.Config
	cache map[string]aws.Config
}

// NewSessions loads the default AWS config for the collector's own
// identity.
func NewSessions(ctx context.Context) (*Sessions, error) {
	base, err := config.LoadDefaultConfig(ctx, config.WithRegion(defaultRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Sessions{base: base, cache: make(map[string]aws.Config)}, nil
}

// NewSessionsFromConfig wraps an existing base config, for tests.
func NewSessionsFromConfig(base aws.Config) *Sessions {
	return &Sessions{base: base, cache: make(map[string]aws.Config)}
}

// Base returns the collector's own config, for clients that do not
// assume an account role (e.g. SNS notifications).
func (s *Sessions) Base() aws.Config {
	return s.base
}

// Config returns an AWS config scoped to the account's role in the
// given region. Region "global" resolves to the default region.
func (s *Sessions) Config(ctx context.Context, account types.Account, region string) (aws.Config, error) {
	if region == "" || region == "global" {
		region = defaultRegion
	}

	key := account.ID + "/" + region

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg, ok := s.cache[key]; ok {
		return cfg, nil
	}

	roleARN := fmt.Sprintf("arn:aws:iam::%s:role/%s", account.ID, account.RoleName)
	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(s.base), roleARN,
		func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "kerava-" + account.ID
			if account.ExternalID != "" {
				o.ExternalID = aws.String(account.ExternalID)
			}
		})

	cfg := s.base.Copy()
	cfg.Region = region
	cfg.Credentials = aws.NewCredentialsCache(provider)

	s.cache[key] = cfg
	return cfg, nil
}
