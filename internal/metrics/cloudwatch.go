package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"chainflow/config"
	"chainflow/logger"
)

// maxDatumsPerCall is the PutMetricData batch limit.
const maxDatumsPerCall = 1000

type putMetricAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch buffers emitted metrics and publishes them on Flush.
type CloudWatch struct {
	client    putMetricAPI
	namespace string

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
	id      MetricHandlerID
	log     *logger.Entry
}

// NewCloudWatch loads the AWS configuration and registers the publisher as a
// metric handler.
func NewCloudWatch(ctx context.Context, cfg config.CloudWatchConfig) (*CloudWatch, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	cw := newCloudWatch(cloudwatch.NewFromConfig(awsCfg), cfg.Namespace)
	cw.log.WithFields(logger.Fields{
		"region":    awsCfg.Region,
		"namespace": cw.namespace,
	}).Info("initialized CloudWatch client")
	return cw, nil
}

func newCloudWatch(client putMetricAPI, namespace string) *CloudWatch {
	cw := &CloudWatch{
		client:    client,
		namespace: namespace,
		log:       logger.GetLogger().WithComponent("cloudwatch"),
	}
	cw.id = RegisterMetricHandler(cw.handle)
	return cw
}

func (c *CloudWatch) handle(m Metric) {
	value, ok := toFloat64(m.Value)
	if !ok {
		c.log.WithFields(logger.Fields{"metric": m.Name}).Debug("non-numeric metric value; skipping publish")
		return
	}

	unit := cwtypes.StandardUnitCount
	if raw, ok := m.Fields["unit"].(string); ok {
		if parsed, found := metricUnitFromString(raw); found {
			unit = parsed
		}
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(m.Component)}}
	for k, v := range m.Fields {
		if k == "unit" {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	datum := cwtypes.MetricDatum{
		MetricName: aws.String(m.Name),
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(value),
	}
	if !m.Timestamp.IsZero() {
		datum.Timestamp = aws.Time(m.Timestamp)
	}

	c.mu.Lock()
	c.pending = append(c.pending, datum)
	c.mu.Unlock()
}

// Flush publishes everything buffered since the last flush.
func (c *CloudWatch) Flush(ctx context.Context) error {
	c.mu.Lock()
	data := c.pending
	c.pending = nil
	c.mu.Unlock()

	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := start + maxDatumsPerCall
		if end > len(data) {
			end = len(data)
		}
		if _, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: data[start:end],
		}); err != nil {
			return fmt.Errorf("publish CloudWatch metrics: %w", err)
		}
	}

	if len(data) > 0 {
		names := make([]string, 0, len(data))
		for _, d := range data {
			names = append(names, aws.ToString(d.MetricName))
		}
		c.log.WithFields(logger.Fields{"count": len(data), "metrics": strings.Join(names, ",")}).Debug("published metrics to CloudWatch")
	}
	return nil
}

// Close stops receiving metrics.
func (c *CloudWatch) Close() {
	UnregisterMetricHandler(c.id)
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "milliseconds":
		return cwtypes.StandardUnitMilliseconds, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
