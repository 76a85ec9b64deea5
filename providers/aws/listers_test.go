package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kerava/providers"
	"github.com/yairfalse/kerava/types"
)

var testAccount = types.Account{ID: "111122223333", Name: "prod", RoleName: "InventoryRole"}

// EC2

type mockEC2Client struct {
	DescribeInstancesFunc func(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

func (m *mockEC2Client) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return m.DescribeInstancesFunc(ctx, params, optFns...)
}

func TestEC2Lister(t *testing.T) {
	mock := &mockEC2Client{
		DescribeInstancesFunc: func(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			return &ec2.DescribeInstancesOutput{
				Reservations: []ec2types.Reservation{{
					Instances: []ec2types.Instance{{
						InstanceId:       aws.String("i-abc123"),
						InstanceType:     ec2types.InstanceTypeT3Micro,
						State:            &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
						VpcId:            aws.String("vpc-1"),
						PrivateIpAddress: aws.String("10.0.0.5"),
						PublicIpAddress:  aws.String("54.1.2.3"),
						Tags: []ec2types.Tag{
							{Key: aws.String("Name"), Value: aws.String("web-1")},
							{Key: aws.String("env"), Value: aws.String("prod")},
						},
					}},
				}},
			}, nil
		},
	}

	resources, err := NewEC2Lister(mock).List(context.Background(), testAccount, "us-east-1")
	require.NoError(t, err)
	require.Len(t, resources, 1)

	r := resources[0]
	assert.Equal(t, "i-abc123", r.ID)
	assert.Equal(t, "web-1", r.Name)
	assert.Equal(t, "t3.micro", r.Attributes["instance_type"])
	assert.Equal(t, "running", r.Attributes["state"])
	assert.Equal(t, "54.1.2.3", r.Attributes["public_ip"])
	assert.Equal(t, map[string]string{"Name": "web-1", "env": "prod"}, r.Attributes["tags"])
}

func TestEC2Lister_Pagination(t *testing.T) {
	calls := 0
	mock := &mockEC2Client{
		DescribeInstancesFunc: func(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			calls++
			if params.NextToken == nil {
				return &ec2.DescribeInstancesOutput{
					Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{{
						InstanceId: aws.String("i-1"),
						State:      &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
					}}}},
					NextToken: aws.String("page2"),
				}, nil
			}
			return &ec2.DescribeInstancesOutput{
				Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{{
					InstanceId: aws.String("i-2"),
					State:      &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped},
				}}}},
			}, nil
		},
	}

	resources, err := NewEC2Lister(mock).List(context.Background(), testAccount, "us-east-1")
	require.NoError(t, err)
	assert.Len(t, resources, 2)
	assert.Equal(t, 2, calls)
}

func TestEC2Lister_Error(t *testing.T) {
	mock := &mockEC2Client{
		DescribeInstancesFunc: func(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	_, err := NewEC2Lister(mock).List(context.Background(), testAccount, "us-east-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "describe instances")
}

// RDS

type mockRDSClient struct {
	DescribeDBInstancesFunc func(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	DescribeDBClustersFunc  func(ctx context.Context, params *rds.DescribeDBClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error)
}

func (m *mockRDSClient) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	return m.DescribeDBInstancesFunc(ctx, params, optFns...)
}

func (m *mockRDSClient) DescribeDBClusters(ctx context.Context, params *rds.DescribeDBClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error) {
	return m.DescribeDBClustersFunc(ctx, params, optFns...)
}

func TestRDSLister(t *testing.T) {
	mock := &mockRDSClient{
		DescribeDBInstancesFunc: func(_ context.Context, _ *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
			return &rds.DescribeDBInstancesOutput{
				DBInstances: []rdstypes.DBInstance{{
					DBInstanceIdentifier: aws.String("orders-db"),
					DBInstanceStatus:     aws.String("available"),
					DBInstanceClass:      aws.String("db.t3.micro"),
					Engine:               aws.String("postgres"),
					StorageEncrypted:     aws.Bool(false),
					PubliclyAccessible:   aws.Bool(true),
				}},
			}, nil
		},
		DescribeDBClustersFunc: func(_ context.Context, _ *rds.DescribeDBClustersInput, _ ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error) {
			return &rds.DescribeDBClustersOutput{
				DBClusters: []rdstypes.DBCluster{{
					DBClusterIdentifier: aws.String("orders-cluster"),
					Status:              aws.String("available"),
					Engine:              aws.String("aurora-postgresql"),
					DBClusterMembers:    []rdstypes.DBClusterMember{{}, {}},
				}},
			}, nil
		},
	}

	resources, err := NewRDSLister(mock).List(context.Background(), testAccount, "eu-west-1")
	require.NoError(t, err)
	require.Len(t, resources, 2)

	assert.Equal(t, "orders-db", resources[0].ID)
	assert.Equal(t, "instance", resources[0].Attributes["kind"])
	assert.Equal(t, false, resources[0].Attributes["storage_encrypted"])
	assert.Equal(t, true, resources[0].Attributes["publicly_accessible"])

	assert.Equal(t, "orders-cluster", resources[1].ID)
	assert.Equal(t, "cluster", resources[1].Attributes["kind"])
	assert.Equal(t, 2, resources[1].Attributes["cluster_members"])
}

// S3

type mockS3Client struct {
	buckets     []s3types.Bucket
	encryptErr  error
	publicGrant bool
}

func (m *mockS3Client) ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	return &s3.ListBucketsOutput{Buckets: m.buckets}, nil
}

func (m *mockS3Client) GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	return &s3.GetBucketLocationOutput{LocationConstraint: s3types.BucketLocationConstraintEuWest1}, nil
}

func (m *mockS3Client) GetBucketVersioning(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
	return &s3.GetBucketVersioningOutput{Status: s3types.BucketVersioningStatusEnabled}, nil
}

func (m *mockS3Client) GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
	if m.encryptErr != nil {
		return nil, m.encryptErr
	}
	return &s3.GetBucketEncryptionOutput{}, nil
}

func (m *mockS3Client) GetBucketAcl(ctx context.Context, params *s3.GetBucketAclInput, optFns ...func(*s3.Options)) (*s3.GetBucketAclOutput, error) {
	grants := []s3types.Grant{}
	if m.publicGrant {
		grants = append(grants, s3types.Grant{Grantee: &s3types.Grantee{
			Type: s3types.TypeGroup,
			URI:  aws.String("http://acs.amazonaws.com/groups/global/AllUsers"),
		}})
	}
	return &s3.GetBucketAclOutput{Grants: grants}, nil
}

func (m *mockS3Client) GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
	return &s3.GetBucketTaggingOutput{TagSet: []s3types.Tag{
		{Key: aws.String("team"), Value: aws.String("data")},
	}}, nil
}

type mockCloudWatchClient struct {
	GetMetricStatisticsFunc func(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

func (m *mockCloudWatchClient) GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	return m.GetMetricStatisticsFunc(ctx, params, optFns...)
}

func TestS3Lister(t *testing.T) {
	s3Mock := &mockS3Client{
		buckets:     []s3types.Bucket{{Name: aws.String("logs-bucket"), CreationDate: aws.Time(time.Now())}},
		publicGrant: true,
	}
	cwMock := &mockCloudWatchClient{
		GetMetricStatisticsFunc: func(_ context.Context, params *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
			if aws.ToString(params.MetricName) == "BucketSizeBytes" {
				return &cloudwatch.GetMetricStatisticsOutput{
					Datapoints: []cwtypes.Datapoint{{Average: aws.Float64(float64(10 << 30))}},
				}, nil
			}
			return &cloudwatch.GetMetricStatisticsOutput{
				Datapoints: []cwtypes.Datapoint{{Average: aws.Float64(1200)}},
			}, nil
		},
	}

	resources, err := NewS3Lister(s3Mock, cwMock).List(context.Background(), testAccount, "global")
	require.NoError(t, err)
	require.Len(t, resources, 1)

	r := resources[0]
	assert.Equal(t, "logs-bucket", r.ID)
	assert.Equal(t, "eu-west-1", r.Attributes["bucket_region"])
	assert.Equal(t, "Enabled", r.Attributes["versioning"])
	assert.Equal(t, true, r.Attributes["encryption"])
	assert.Equal(t, true, r.Attributes["public_access"])
	assert.Equal(t, float64(10<<30), r.Attributes["size_bytes"])
	assert.Equal(t, 1200, r.Attributes["object_count"])
	assert.Equal(t, map[string]string{"team": "data"}, r.Attributes["tags"])
}

// Lambda

type mockLambdaClient struct {
	ListFunctionsFunc func(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
}

func (m *mockLambdaClient) ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
	return m.ListFunctionsFunc(ctx, params, optFns...)
}

func TestLambdaLister(t *testing.T) {
	mock := &mockLambdaClient{
		ListFunctionsFunc: func(_ context.Context, _ *lambda.ListFunctionsInput, _ ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
			return &lambda.ListFunctionsOutput{
				Functions: []lambdatypes.FunctionConfiguration{{
					FunctionArn:  aws.String("arn:aws:lambda:us-east-1:111122223333:function:ingest"),
					FunctionName: aws.String("ingest"),
					Runtime:      lambdatypes.RuntimeProvidedal2023,
					MemorySize:   aws.Int32(512),
				}},
			}, nil
		},
	}
	cwMock := &mockCloudWatchClient{
		GetMetricStatisticsFunc: func(_ context.Context, params *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
			if aws.ToString(params.MetricName) == "Invocations" {
				return &cloudwatch.GetMetricStatisticsOutput{Datapoints: []cwtypes.Datapoint{{Sum: aws.Float64(5000)}}}, nil
			}
			return &cloudwatch.GetMetricStatisticsOutput{Datapoints: []cwtypes.Datapoint{{Sum: aws.Float64(50)}}}, nil
		},
	}

	resources, err := NewLambdaLister(mock, cwMock).List(context.Background(), testAccount, "us-east-1")
	require.NoError(t, err)
	require.Len(t, resources, 1)

	r := resources[0]
	assert.Equal(t, "ingest", r.Name)
	assert.Equal(t, 512, r.Attributes["memory_size"])
	assert.Equal(t, 5000.0, r.Attributes["invocations_30d"])
	assert.Equal(t, 50.0, r.Attributes["errors_30d"])
	assert.Equal(t, 1.0, r.Attributes["error_rate"])
}

// ELB

type mockELBClient struct {
	DescribeLoadBalancersFunc func(ctx context.Context, params *elasticloadbalancingv2.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error)
}

func (m *mockELBClient) DescribeLoadBalancers(ctx context.Context, params *elasticloadbalancingv2.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
	return m.DescribeLoadBalancersFunc(ctx, params, optFns...)
}

func TestELBLister(t *testing.T) {
	mock := &mockELBClient{
		DescribeLoadBalancersFunc: func(_ context.Context, _ *elasticloadbalancingv2.DescribeLoadBalancersInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
			return &elasticloadbalancingv2.DescribeLoadBalancersOutput{
				LoadBalancers: []elbtypes.LoadBalancer{{
					LoadBalancerArn:  aws.String("arn:aws:elasticloadbalancing:us-east-1:111122223333:loadbalancer/app/web/1"),
					LoadBalancerName: aws.String("web"),
					Type:             elbtypes.LoadBalancerTypeEnumApplication,
					Scheme:           elbtypes.LoadBalancerSchemeEnumInternetFacing,
					State:            &elbtypes.LoadBalancerState{Code: elbtypes.LoadBalancerStateEnumActive},
				}},
			}, nil
		},
	}

	resources, err := NewELBLister(mock).List(context.Background(), testAccount, "us-east-1")
	require.NoError(t, err)
	require.Len(t, resources, 1)

	r := resources[0]
	assert.Equal(t, "web", r.Name)
	assert.Equal(t, "application", r.Attributes["type"])
	assert.Equal(t, "active", r.Attributes["state"])
	assert.Equal(t, true, r.Attributes["public_access"])
}

// DynamoDB

type mockDynamoDBClient struct {
	ListTablesFunc    func(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	DescribeTableFunc func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

func (m *mockDynamoDBClient) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	return m.ListTablesFunc(ctx, params, optFns...)
}

func (m *mockDynamoDBClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return m.DescribeTableFunc(ctx, params, optFns...)
}

func TestDynamoDBLister(t *testing.T) {
	mock := &mockDynamoDBClient{
		ListTablesFunc: func(_ context.Context, _ *dynamodb.ListTablesInput, _ ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
			return &dynamodb.ListTablesOutput{TableNames: []string{"inventory"}}, nil
		},
		DescribeTableFunc: func(_ context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return &dynamodb.DescribeTableOutput{Table: &ddbtypes.TableDescription{
				TableName:      params.TableName,
				TableStatus:    ddbtypes.TableStatusActive,
				ItemCount:      aws.Int64(42),
				TableSizeBytes: aws.Int64(1 << 30),
				ProvisionedThroughput: &ddbtypes.ProvisionedThroughputDescription{
					ReadCapacityUnits:  aws.Int64(10),
					WriteCapacityUnits: aws.Int64(5),
				},
			}}, nil
		},
	}

	resources, err := NewDynamoDBLister(mock).List(context.Background(), testAccount, "us-east-1")
	require.NoError(t, err)
	require.Len(t, resources, 1)

	r := resources[0]
	assert.Equal(t, "inventory", r.ID)
	assert.Equal(t, "ACTIVE", r.Attributes["status"])
	assert.Equal(t, int64(42), r.Attributes["item_count"])
	assert.Equal(t, 10.0, r.Attributes["read_capacity"])
	assert.Equal(t, "PROVISIONED", r.Attributes["billing_mode"])
}

func TestRegister(t *testing.T) {
	registry := providers.NewRegistry()
	Register(registry, NewSessionsFromConfig(aws.Config{Region: "us-east-1"}))

	assert.True(t, registry.Has("ec2"))
	assert.True(t, registry.Has("dynamodb"))
	assert.True(t, registry.IsGlobal("s3"))
	assert.False(t, registry.IsGlobal("elb"))
	assert.Equal(t, []string{"dynamodb", "ec2", "elb", "lambda", "rds", "s3"}, registry.Types())
}
