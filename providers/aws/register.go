package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yairfalse/kerava/providers"
	"github.com/yairfalse/kerava/types"
)

// Register wires every AWS lister variant into the registry, scoped
// through the session cache. Adding a resource type means adding a
// lister and one entry here.
func Register(registry *providers.Registry, sessions *Sessions) {
	registry.Register("ec2", func(ctx context.Context, account types.Account, region string) (providers.Lister, error) {
		cfg, err := sessions.Config(ctx, account, region)
		if err != nil {
			return nil, err
		}
		return NewEC2Lister(ec2.NewFromConfig(cfg)), nil
	})

	registry.Register("rds", func(ctx context.Context, account types.Account, region string) (providers.Lister, error) {
		cfg, err := sessions.Config(ctx, account, region)
		if err != nil {
			return nil, err
		}
		return NewRDSLister(rds.NewFromConfig(cfg)), nil
	})

	registry.Register("s3", func(ctx context.Context, account types.Account, region string) (providers.Lister, error) {
		cfg, err := sessions.Config(ctx, account, region)
		if err != nil {
			return nil, err
		}
		return NewS3Lister(s3.NewFromConfig(cfg), cloudwatch.NewFromConfig(cfg)), nil
	}, providers.Global())

	registry.Register("lambda", func(ctx context.Context, account types.Account, region string) (providers.Lister, error) {
		cfg, err := sessions.Config(ctx, account, region)
		if err != nil {
			return nil, err
		}
		return NewLambdaLister(lambda.NewFromConfig(cfg), cloudwatch.NewFromConfig(cfg)), nil
	})

	registry.Register("elb", func(ctx context.Context, account types.Account, region string) (providers.Lister, error) {
		cfg, err := sessions.Config(ctx, account, region)
		if err != nil {
			return nil, err
		}
		return NewELBLister(elasticloadbalancingv2.NewFromConfig(cfg)), nil
	})

	registry.Register("dynamodb", func(ctx context.Context, account types.Account, region string) (providers.Lister, error) {
		cfg, err := sessions.Config(ctx, account, region)
		if err != nil {
			return nil, err
		}
		return NewDynamoDBLister(dynamodb.NewFromConfig(cfg)), nil
	})
}
