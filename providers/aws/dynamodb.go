package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/yairfalse/kerava/providers"
	"github.com/yairfalse/kerava/types"
)

// DynamoDBLister lists DynamoDB tables in one region.
type DynamoDBLister struct {
	client DynamoDBAPI
}

// NewDynamoDBLister creates a dynamodb lister over the given client.
func NewDynamoDBLister(client DynamoDBAPI) *DynamoDBLister {
	return &DynamoDBLister{client: client}
}

// List drains the table listing and describes each table.
func (l *DynamoDBLister) List(ctx context.Context, _ types.Account, _ string) ([]providers.RawResource, error) {
	var resources []providers.RawResource
	var startTable *string

	for {
		output, err := l.client.ListTables(ctx, &dynamodb.ListTablesInput{ExclusiveStartTableName: startTable})
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}

		for _, name := range output.TableNames {
			desc, err := l.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
			if err != nil {
				return nil, fmt.Errorf("describe table %s: %w", name, err)
			}
			resources = append(resources, convertTable(desc.Table))
		}

		if output.LastEvaluatedTableName == nil {
			break
		}
		startTable = output.LastEvaluatedTableName
	}

	return resources, nil
}

func convertTable(table *ddbtypes.TableDescription) providers.RawResource {
	name := aws.ToString(table.TableName)
	attrs := map[string]any{
		"status":     string(table.TableStatus),
		"item_count": aws.ToInt64(table.ItemCount),
		"size_bytes": float64(aws.ToInt64(table.TableSizeBytes)),
	}

	attrs["billing_mode"] = string(ddbtypes.BillingModeProvisioned)
	if table.BillingModeSummary != nil {
		attrs["billing_mode"] = string(table.BillingModeSummary.BillingMode)
	}
	if table.ProvisionedThroughput != nil {
		attrs["read_capacity"] = float64(aws.ToInt64(table.ProvisionedThroughput.ReadCapacityUnits))
		attrs["write_capacity"] = float64(aws.ToInt64(table.ProvisionedThroughput.WriteCapacityUnits))
	}
	if table.SSEDescription != nil {
		attrs["encryption"] = table.SSEDescription.Status == ddbtypes.SSEStatusEnabled
	}

	return providers.RawResource{ID: name, Name: name, Attributes: attrs}
}
