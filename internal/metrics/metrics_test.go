package metrics

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainflow/logger"
)

func TestObserveSymbol(t *testing.T) {
	r := NewRecorder(logger.Discard())
	r.ObserveSymbol(SymbolObservation{
		Symbol:      "nifty",
		Outcome:     "written",
		Rows:        12,
		Skipped:     map[string]int{"fetch": 2, "prior": 1},
		CallDiffSum: 3.5,
		PutDiffSum:  -1,
	})
	r.ObserveSymbol(SymbolObservation{Symbol: "banknifty", Outcome: "skipped"})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("nifty", "written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("banknifty", "skipped")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.rows))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.skipped.WithLabelValues("fetch")))
	assert.Equal(t, 3.5, testutil.ToFloat64(r.diffSum.WithLabelValues("nifty", "call")))
	assert.Equal(t, -1.0, testutil.ToFloat64(r.diffSum.WithLabelValues("nifty", "put")))
}

func TestMetricHandlers(t *testing.T) {
	var got []Metric
	id := RegisterMetricHandler(func(m Metric) { got = append(got, m) })
	defer UnregisterMetricHandler(id)

	EmitMetric(logger.Discard(), "writer", "rows_written", 5, "", logger.Fields{"table": "Option_NIFTY"})
	EmitMetric(logger.Discard(), "writer", "", 5, "", nil)

	require.Len(t, got, 1)
	assert.Equal(t, "counter", got[0].Type)
	assert.Equal(t, "Option_NIFTY", got[0].Fields["table"])

	UnregisterMetricHandler(id)
	EmitMetric(logger.Discard(), "writer", "rows_written", 5, "", nil)
	assert.Len(t, got, 1)
	assert.Equal(t, MetricHandlerID(0), RegisterMetricHandler(nil))
}

type fakeCloudWatch struct {
	mu    sync.Mutex
	calls []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCloudWatchFlush(t *testing.T) {
	fake := &fakeCloudWatch{}
	cw := newCloudWatch(fake, "Chainflow")
	defer cw.Close()

	EmitMetric(logger.Discard(), "engine", "rows_written", 7, "counter", logger.Fields{"symbol": "nifty"})
	EmitMetric(logger.Discard(), "engine", "note", "text", "counter", nil)
	require.NoError(t, cw.Flush(context.Background()))

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, "Chainflow", aws.ToString(call.Namespace))
	require.Len(t, call.MetricData, 1)
	assert.Equal(t, "rows_written", aws.ToString(call.MetricData[0].MetricName))
	assert.Equal(t, 7.0, aws.ToFloat64(call.MetricData[0].Value))
	assert.Len(t, call.MetricData[0].Dimensions, 2)

	require.NoError(t, cw.Flush(context.Background()))
	assert.Len(t, fake.calls, 1)
}
