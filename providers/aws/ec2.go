package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/kerava/providers"
	"github.com/yairfalse/kerava/types"
)

// EC2Lister lists EC2 instances in one region.
type EC2Lister struct {
	client EC2API
}

// NewEC2Lister creates an ec2 lister over the given client.
func NewEC2Lister(client EC2API) *EC2Lister {
	return &EC2Lister{client: client}
}

// List drains the instance listing for the scope.
func (l *EC2Lister) List(ctx context.Context, _ types.Account, _ string) ([]providers.RawResource, error) {
	var resources []providers.RawResource
	var nextToken *string

	for {
		output, err := l.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				resources = append(resources, convertEC2Instance(instance))
			}
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return resources, nil
}

func convertEC2Instance(instance ec2types.Instance) providers.RawResource {
	attrs := map[string]any{
		"instance_type": string(instance.InstanceType),
		"state":         string(instance.State.Name),
		"vpc_id":        aws.ToString(instance.VpcId),
		"subnet_id":     aws.ToString(instance.SubnetId),
		"private_ip":    aws.ToString(instance.PrivateIpAddress),
		"tags":          convertTags(instance.Tags),
	}
	if instance.PublicIpAddress != nil {
		attrs["public_ip"] = aws.ToString(instance.PublicIpAddress)
	}
	if instance.Placement != nil {
		attrs["availability_zone"] = aws.ToString(instance.Placement.AvailabilityZone)
	}
	if instance.LaunchTime != nil {
		attrs["launch_time"] = instance.LaunchTime.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if instance.Platform != "" {
		attrs["platform"] = string(instance.Platform)
	}
	var groups []string
	for _, sg := range instance.SecurityGroups {
		groups = append(groups, aws.ToString(sg.GroupId))
	}
	if len(groups) > 0 {
		attrs["security_groups"] = groups
	}

	return providers.RawResource{
		ID:         aws.ToString(instance.InstanceId),
		Name:       nameTag(instance.Tags),
		Attributes: attrs,
	}
}

func convertTags(tags []ec2types.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		out[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return out
}

func nameTag(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}
