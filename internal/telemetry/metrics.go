// Package telemetry emits fulfillment metrics to CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	MetricFulfillmentOutcome = "FulfillmentOutcome"
	MetricFulfillmentLatency = "FulfillmentLatency"
	MetricRequestLatency     = "RequestLatency"

	DimTrigger = "Trigger"
	DimOutcome = "Outcome"
	DimMethod  = "Method"
	DimRoute   = "Route"
	DimStatus  = "Status"

	requestMetricTimeout = 2 * time.Second
)

// Metrics records the result of each orchestrator invocation.
type Metrics interface {
	RecordOutcome(ctx context.Context, trigger, outcome string)
	RecordLatency(ctx context.Context, trigger string, d time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes one datum per call. Failures are logged and
// never surface to the caller.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordOutcome emits FulfillmentOutcome with Trigger and Outcome dimensions.
func (m *CloudWatchMetrics) RecordOutcome(ctx context.Context, trigger, outcome string) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricFulfillmentOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimTrigger), Value: aws.String(trigger)},
			{Name: aws.String(DimOutcome), Value: aws.String(outcome)},
		},
	})
}

// RecordLatency emits FulfillmentLatency in milliseconds.
func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, trigger string, d time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricFulfillmentLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimTrigger), Value: aws.String(trigger)},
		},
	})
}

// RecordRequest emits RequestLatency for one HTTP request. It satisfies the
// HTTP chassis' metrics hook, which carries no context.
func (m *CloudWatchMetrics) RecordRequest(method, route, status string, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), requestMetricTimeout)
	defer cancel()
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricRequestLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimMethod), Value: aws.String(method)},
			{Name: aws.String(DimRoute), Value: aws.String(route)},
			{Name: aws.String(DimStatus), Value: aws.String(status)},
		},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record metric",
			"error", err.Error(),
			"metric", aws.ToString(datum.MetricName),
		)
	}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordOutcome(context.Context, string, string)        {}
func (NoopMetrics) RecordLatency(context.Context, string, time.Duration) {}

var (
	_ Metrics = (*CloudWatchMetrics)(nil)
	_ Metrics = NoopMetrics{}
)
