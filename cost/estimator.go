// Package cost estimates monthly resource cost from collected
// attributes. Estimates are heuristic tier tables, not billing data;
// the estimator is pure so queries can re-aggregate without
// re-collection.
package cost

// HoursPerMonth is the flat month length used for hourly rates.
const HoursPerMonth = 730

// Per-request and per-GB-second Lambda rates.
const (
	lambdaRequestRate  = 0.0000002
	lambdaGBSecondRate = 0.0000166667
)

// Hourly rates by instance class. Unknown classes fall back to the
// "default" entry.
var ec2HourlyRates = map[string]float64{
	"t2.micro":   0.0116,
	"t2.small":   0.023,
	"t2.medium":  0.0464,
	"t3.micro":   0.0104,
	"t3.small":   0.0208,
	"t3.medium":  0.0416,
	"m5.large":   0.096,
	"m5.xlarge":  0.192,
	"m5.2xlarge": 0.384,
	"default":    0.05,
}

var rdsHourlyRates = map[string]float64{
	"db.t2.micro":  0.017,
	"db.t3.micro":  0.017,
	"db.t3.small":  0.034,
	"db.m5.large":  0.171,
	"db.m5.xlarge": 0.342,
	"default":      0.10,
}

// GB-month storage rates by class.
var s3StorageRates = map[string]float64{
	"standard":     0.023,
	"standard_ia":  0.0125,
	"glacier":      0.004,
	"deep_archive": 0.00099,
}

// DynamoDB provisioned capacity and storage rates.
const (
	dynamoRCUHourly = 0.00013
	dynamoWCUHourly = 0.00065
	dynamoGBMonth   = 0.25
	elbHourly       = 0.0225
)

// Estimator maps a normalized record to an estimated monthly cost.
// The zero value is ready to use.
type Estimator struct{}

// NewEstimator returns a cost estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

type attrs map[string]any

func (a attrs) str(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

func (a attrs) num(key string) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Estimate returns the estimated monthly USD cost for one resource.
// Deterministic and side-effect free.
func (e *Estimator) Estimate(resourceType string, attributes map[string]any) float64 {
	a := attrs(attributes)

	switch resourceType {
	case "ec2":
		return estimateEC2(a)
	case "rds":
		return estimateRDS(a)
	case "s3":
		return estimateS3(a)
	case "lambda":
		return estimateLambda(a)
	case "dynamodb":
		return estimateDynamoDB(a)
	case "elb":
		return elbHourly * HoursPerMonth
	}
	return 0
}

func estimateEC2(a attrs) float64 {
	// Stopped instances only accrue storage, which we don't meter here.
	if a.str("state") != "running" {
		return 0
	}
	rate, ok := ec2HourlyRates[a.str("instance_type")]
	if !ok {
		rate = ec2HourlyRates["default"]
	}
	return rate * HoursPerMonth
}

func estimateRDS(a attrs) float64 {
	if a.str("status") != "available" {
		return 0
	}
	rate, ok := rdsHourlyRates[a.str("instance_class")]
	if !ok {
		rate = rdsHourlyRates["default"]
	}
	return rate * HoursPerMonth
}

func estimateS3(a attrs) float64 {
	sizeGB := a.num("size_bytes") / (1 << 30)
	class := a.str("storage_class")
	rate, ok := s3StorageRates[class]
	if !ok {
		rate = s3StorageRates["standard"]
	}
	return sizeGB * rate
}

func estimateLambda(a attrs) float64 {
	invocations := a.num("invocations_30d")
	memoryMB := a.num("memory_size")
	if memoryMB == 0 {
		memoryMB = 128
	}
	// Assume 100ms average duration per invocation.
	gbSeconds := (memoryMB / 1024) * (invocations * 0.1)
	return invocations*lambdaRequestRate + gbSeconds*lambdaGBSecondRate
}

func estimateDynamoDB(a attrs) float64 {
	sizeGB := a.num("size_bytes") / (1 << 30)
	storage := sizeGB * dynamoGBMonth
	if a.str("billing_mode") == "PAY_PER_REQUEST" {
		return storage
	}
	rcu := a.num("read_capacity")
	wcu := a.num("write_capacity")
	return storage + (rcu*dynamoRCUHourly+wcu*dynamoWCUHourly)*HoursPerMonth
}
