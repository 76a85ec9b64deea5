package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kerava/providers"
	"github.com/yairfalse/kerava/types"
)

// S3Lister lists all buckets in an account. S3 is registered global:
// the listing is account-wide, with each bucket's real region resolved
// per bucket.
type S3Lister struct {
	client  S3API
	metrics CloudWatchAPI
	now     func() time.Time
}

// NewS3Lister creates an s3 lister over the given clients.
func NewS3Lister(client S3API, metrics CloudWatchAPI) *S3Lister {
	return &S3Lister{client: client, metrics: metrics, now: time.Now}
}

// List drains the bucket listing. Per-bucket enrichment (location,
// versioning, encryption, ACL, size metrics) is best effort: a bucket
// that denies one sub-call is still inventoried.
func (l *S3Lister) List(ctx context.Context, account types.Account, _ string) ([]providers.RawResource, error) {
	output, err := l.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	var resources []providers.RawResource
	for _, bucket := range output.Buckets {
		resources = append(resources, l.describeBucket(ctx, account, bucket))
	}
	return resources, nil
}

func (l *S3Lister) describeBucket(ctx context.Context, account types.Account, bucket s3types.Bucket) providers.RawResource {
	name := aws.ToString(bucket.Name)
	attrs := map[string]any{
		"storage_class": "standard",
		"tags":          map[string]string{},
	}
	if bucket.CreationDate != nil {
		attrs["creation_date"] = bucket.CreationDate.UTC().Format(time.RFC3339)
	}

	attrs["bucket_region"] = l.bucketRegion(ctx, name)
	l.bucketVersioning(ctx, name, attrs)
	l.bucketEncryption(ctx, name, attrs)
	l.bucketACL(ctx, name, attrs)
	l.bucketTags(ctx, name, attrs)
	l.bucketMetrics(ctx, account, name, attrs)

	return providers.RawResource{ID: name, Name: name, Attributes: attrs}
}

func (l *S3Lister) bucketRegion(ctx context.Context, name string) string {
	output, err := l.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(name)})
	if err != nil {
		log.Warn().Err(err).Str("bucket", name).Msg("get bucket location failed")
		return "unknown"
	}
	// Empty LocationConstraint means us-east-1.
	if output.LocationConstraint == "" {
		return defaultRegion
	}
	return string(output.LocationConstraint)
}

func (l *S3Lister) bucketVersioning(ctx context.Context, name string, attrs map[string]any) {
	output, err := l.client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: aws.String(name)})
	if err != nil {
		attrs["versioning"] = "Unknown"
		return
	}
	if output.Status == "" {
		attrs["versioning"] = "Disabled"
		return
	}
	attrs["versioning"] = string(output.Status)
}

func (l *S3Lister) bucketEncryption(ctx context.Context, name string, attrs map[string]any) {
	_, err := l.client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: aws.String(name)})
	if err == nil {
		attrs["encryption"] = true
		return
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ServerSideEncryptionConfigurationNotFoundError" {
		attrs["encryption"] = false
		return
	}
	attrs["encryption"] = "Unknown"
}

func (l *S3Lister) bucketACL(ctx context.Context, name string, attrs map[string]any) {
	output, err := l.client.GetBucketAcl(ctx, &s3.GetBucketAclInput{Bucket: aws.String(name)})
	if err != nil {
		log.Warn().Err(err).Str("bucket", name).Msg("get bucket acl failed")
		return
	}

	public := false
	for _, grant := range output.Grants {
		if grant.Grantee != nil && grant.Grantee.Type == s3types.TypeGroup &&
			aws.ToString(grant.Grantee.URI) == "http://acs.amazonaws.com/groups/global/AllUsers" {
			public = true
			break
		}
	}
	attrs["public_access"] = public
}

func (l *S3Lister) bucketTags(ctx context.Context, name string, attrs map[string]any) {
	output, err := l.client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(name)})
	if err != nil {
		// NoSuchTagSet is the normal case for untagged buckets.
		return
	}
	tags := make(map[string]string, len(output.TagSet))
	for _, tag := range output.TagSet {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	attrs["tags"] = tags
}

func (l *S3Lister) bucketMetrics(ctx context.Context, account types.Account, name string, attrs map[string]any) {
	attrs["size_bytes"] = 0.0
	attrs["object_count"] = 0

	if l.metrics == nil {
		return
	}

	now := l.now().UTC()
	size, err := l.metricAverage(ctx, name, "BucketSizeBytes", "StandardStorage", now)
	if err != nil {
		log.Warn().Err(err).Str("bucket", name).Msg("bucket size metric failed")
	} else {
		attrs["size_bytes"] = size
	}

	count, err := l.metricAverage(ctx, name, "NumberOfObjects", "AllStorageTypes", now)
	if err != nil {
		log.Warn().Err(err).Str("bucket", name).Msg("bucket object count metric failed")
	} else {
		attrs["object_count"] = int(count)
	}
}

func (l *S3Lister) metricAverage(ctx context.Context, bucket, metric, storageType string, now time.Time) (float64, error) {
	output, err := l.metrics.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/S3"),
		MetricName: aws.String(metric),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("BucketName"), Value: aws.String(bucket)},
			{Name: aws.String("StorageType"), Value: aws.String(storageType)},
		},
		StartTime:  aws.Time(now.Add(-24 * time.Hour)),
		EndTime:    aws.Time(now),
		Period:     aws.Int32(86400),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
	})
	if err != nil {
		return 0, err
	}
	if len(output.Datapoints) == 0 {
		return 0, nil
	}
	return aws.ToFloat64(output.Datapoints[0].Average), nil
}
