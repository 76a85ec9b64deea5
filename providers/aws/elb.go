package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/yairfalse/kerava/providers"
	"github.com/yairfalse/kerava/types"
)

// ELBLister lists ELBv2 load balancers in one region.
type ELBLister struct {
	client ELBAPI
}

// NewELBLister creates an elb lister over the given client.
func NewELBLister(client ELBAPI) *ELBLister {
	return &ELBLister{client: client}
}

// List drains the load balancer listing for the scope.
func (l *ELBLister) List(ctx context.Context, _ types.Account, _ string) ([]providers.RawResource, error) {
	var resources []providers.RawResource
	var marker *string

	for {
		output, err := l.client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe load balancers: %w", err)
		}

		for _, lb := range output.LoadBalancers {
			resources = append(resources, convertLoadBalancer(lb))
		}

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}

	return resources, nil
}

func convertLoadBalancer(lb elbtypes.LoadBalancer) providers.RawResource {
	attrs := map[string]any{
		"type":     string(lb.Type),
		"scheme":   string(lb.Scheme),
		"vpc_id":   aws.ToString(lb.VpcId),
		"dns_name": aws.ToString(lb.DNSName),
	}
	if lb.State != nil {
		attrs["state"] = string(lb.State.Code)
	}
	if lb.CreatedTime != nil {
		attrs["created_time"] = lb.CreatedTime.UTC().Format(time.RFC3339)
	}
	// Internet-facing load balancers count as public for security checks.
	attrs["public_access"] = lb.Scheme == elbtypes.LoadBalancerSchemeEnumInternetFacing

	return providers.RawResource{
		ID:         aws.ToString(lb.LoadBalancerArn),
		Name:       aws.ToString(lb.LoadBalancerName),
		Attributes: attrs,
	}
}
