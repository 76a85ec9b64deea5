package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kerava/query"
	"github.com/yairfalse/kerava/types"
)

var (
	queryAccount    string
	queryType       string
	queryDepartment string
	queryRegion     string
	queryTags       map[string]string
	queryLimit      int
	queryFormat     string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "List collected resources",
	Long: `List resources from the local inventory store, filtered by account,
resource type, department, region or tags.`,
	Example: `  kerava query
  kerava query --type ec2 --region us-east-1
  kerava query --department platform --format json
  kerava query --tag env=prod --limit 20`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryAccount, "account", "", "Filter by account ID")
	queryCmd.Flags().StringVar(&queryType, "type", "", "Filter by resource type")
	queryCmd.Flags().StringVar(&queryDepartment, "department", "", "Filter by department")
	queryCmd.Flags().StringVar(&queryRegion, "region", "", "Filter by region")
	queryCmd.Flags().StringToStringVar(&queryTags, "tag", nil, "Filter by tag (key=value, repeatable)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "Limit the number of results")
	queryCmd.Flags().StringVar(&queryFormat, "format", "table", "Output format (table, json, csv)")
}

func queryFilter() types.RecordFilter {
	return types.RecordFilter{
		AccountID:    queryAccount,
		ResourceType: queryType,
		Department:   queryDepartment,
		Region:       queryRegion,
		Tags:         queryTags,
		Limit:        queryLimit,
	}
}

func runQuery(cmd *cobra.Command, _ []string) error {
	format, err := query.ParseFormat(queryFormat)
	if err != nil {
		return err
	}

	app, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	records, err := app.store.Scan(queryFilter())
	if err != nil {
		return err
	}

	return query.Exporter{Format: format}.Records(os.Stdout, records)
}
