package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/yairfalse/kerava/providers"
	"github.com/yairfalse/kerava/types"
)

// RDSLister lists RDS instances and clusters in one region.
type RDSLister struct {
	client RDSAPI
}

// NewRDSLister creates an rds lister over the given client.
func NewRDSLister(client RDSAPI) *RDSLister {
	return &RDSLister{client: client}
}

// List drains DB instances then DB clusters for the scope.
func (l *RDSLister) List(ctx context.Context, _ types.Account, _ string) ([]providers.RawResource, error) {
	resources, err := l.listInstances(ctx)
	if err != nil {
		return nil, err
	}

	clusters, err := l.listClusters(ctx)
	if err != nil {
		return nil, err
	}

	return append(resources, clusters...), nil
}

func (l *RDSLister) listInstances(ctx context.Context) ([]providers.RawResource, error) {
	var resources []providers.RawResource
	var marker *string

	for {
		output, err := l.client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe db instances: %w", err)
		}

		for _, instance := range output.DBInstances {
			resources = append(resources, convertRDSInstance(instance))
		}

		if output.Marker == nil {
			break
		}
		marker = output.Marker
	}

	return resources, nil
}

func (l *RDSLister) listClusters(ctx context.Context) ([]providers.RawResource, error) {
	var resources []providers.RawResource
	var marker *string

	for {
		output, err := l.client.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe db clusters: %w", err)
		}

		for _, cluster := range output.DBClusters {
			resources = append(resources, convertRDSCluster(cluster))
		}

		if output.Marker == nil {
			break
		}
		marker = output.Marker
	}

	return resources, nil
}

func convertRDSInstance(instance rdstypes.DBInstance) providers.RawResource {
	attrs := map[string]any{
		"kind":                "instance",
		"engine":              aws.ToString(instance.Engine),
		"engine_version":      aws.ToString(instance.EngineVersion),
		"instance_class":      aws.ToString(instance.DBInstanceClass),
		"status":              aws.ToString(instance.DBInstanceStatus),
		"allocated_storage":   int(aws.ToInt32(instance.AllocatedStorage)),
		"storage_encrypted":   aws.ToBool(instance.StorageEncrypted),
		"multi_az":            aws.ToBool(instance.MultiAZ),
		"publicly_accessible": aws.ToBool(instance.PubliclyAccessible),
		"tags":                convertRDSTags(instance.TagList),
	}
	if instance.DBSubnetGroup != nil {
		attrs["vpc_id"] = aws.ToString(instance.DBSubnetGroup.VpcId)
	}
	if instance.Endpoint != nil {
		attrs["endpoint"] = aws.ToString(instance.Endpoint.Address)
		attrs["port"] = int(aws.ToInt32(instance.Endpoint.Port))
	}
	if instance.InstanceCreateTime != nil {
		attrs["create_time"] = instance.InstanceCreateTime.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	id := aws.ToString(instance.DBInstanceIdentifier)
	return providers.RawResource{ID: id, Name: id, Attributes: attrs}
}

func convertRDSCluster(cluster rdstypes.DBCluster) providers.RawResource {
	attrs := map[string]any{
		"kind":              "cluster",
		"engine":            aws.ToString(cluster.Engine),
		"engine_version":    aws.ToString(cluster.EngineVersion),
		"status":            aws.ToString(cluster.Status),
		"storage_encrypted": aws.ToBool(cluster.StorageEncrypted),
		"multi_az":          aws.ToBool(cluster.MultiAZ),
		"cluster_members":   len(cluster.DBClusterMembers),
		"tags":              convertRDSTags(cluster.TagList),
	}

	id := aws.ToString(cluster.DBClusterIdentifier)
	return providers.RawResource{ID: id, Name: id, Attributes: attrs}
}

func convertRDSTags(tags []rdstypes.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		out[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return out
}
