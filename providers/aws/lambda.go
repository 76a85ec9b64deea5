package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kerava/providers"
	"github.com/yairfalse/kerava/types"
)

// Activity window for invocation metrics.
const lambdaMetricWindow = 30 * 24 * time.Hour

// LambdaLister lists Lambda functions in one region, enriched with
// 30-day invocation activity used by idle detection and costing.
type LambdaLister struct {
	client  LambdaAPI
	metrics CloudWatchAPI
	now     func() time.Time
}

// NewLambdaLister creates a lambda lister over the given clients.
func NewLambdaLister(client LambdaAPI, metrics CloudWatchAPI) *LambdaLister {
	return &LambdaLister{client: client, metrics: metrics, now: time.Now}
}

// List drains the function listing for the scope.
func (l *LambdaLister) List(ctx context.Context, _ types.Account, _ string) ([]providers.RawResource, error) {
	var resources []providers.RawResource
	var marker *string

	for {
		output, err := l.client.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}

		for _, fn := range output.Functions {
			resources = append(resources, l.convertFunction(ctx, fn))
		}

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}

	return resources, nil
}

func (l *LambdaLister) convertFunction(ctx context.Context, fn lambdatypes.FunctionConfiguration) providers.RawResource {
	name := aws.ToString(fn.FunctionName)
	attrs := map[string]any{
		"function_name": name,
		"runtime":       string(fn.Runtime),
		"handler":       aws.ToString(fn.Handler),
		"code_size":     fn.CodeSize,
		"memory_size":   int(aws.ToInt32(fn.MemorySize)),
		"timeout":       int(aws.ToInt32(fn.Timeout)),
		"last_modified": aws.ToString(fn.LastModified),
		"description":   aws.ToString(fn.Description),
		"role":          aws.ToString(fn.Role),
	}

	invocations := l.metricSum(ctx, name, "Invocations")
	errs := l.metricSum(ctx, name, "Errors")
	attrs["invocations_30d"] = invocations
	attrs["errors_30d"] = errs
	if invocations > 0 {
		attrs["error_rate"] = errs / invocations * 100
	}

	return providers.RawResource{
		ID:         aws.ToString(fn.FunctionArn),
		Name:       name,
		Attributes: attrs,
	}
}

func (l *LambdaLister) metricSum(ctx context.Context, functionName, metric string) float64 {
	if l.metrics == nil {
		return 0
	}

	now := l.now().UTC()
	output, err := l.metrics.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/Lambda"),
		MetricName: aws.String(metric),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("FunctionName"), Value: aws.String(functionName)},
		},
		StartTime:  aws.Time(now.Add(-lambdaMetricWindow)),
		EndTime:    aws.Time(now),
		Period:     aws.Int32(int32(lambdaMetricWindow / time.Second)),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticSum},
	})
	if err != nil {
		log.Warn().Err(err).Str("function", functionName).Str("metric", metric).Msg("lambda metric failed")
		return 0
	}
	if len(output.Datapoints) == 0 {
		return 0
	}
	return aws.ToFloat64(output.Datapoints[0].Sum)
}
