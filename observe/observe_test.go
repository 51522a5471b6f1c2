package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/apiguard/events"
	"github.com/mark3labs/apiguard/model"
	"github.com/mark3labs/apiguard/schema"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	return out.GetCounter().GetValue()
}

func TestMetrics_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	em := events.New()
	sub := m.Attach(em)

	v := model.NewValidator(em)
	ok := model.New("Ok", schema.Object(schema.Field("ok", schema.Boolean())))
	ctx := context.Background()
	_, _ = v.Validate(ctx, ok, map[string]any{"ok": true}, model.Options{})
	_, _ = v.Validate(ctx, ok, map[string]any{"ok": 1}, model.Options{})
	_, _ = v.Validate(ctx, ok, map[string]any{"ok": true, "x": 1}, model.Options{StrictTypes: true})

	assert.Equal(t, 3.0, counterValue(t, m.EventsTotal.WithLabelValues(string(events.BeforeValidation), "Ok", "")))
	assert.Equal(t, 2.0, counterValue(t, m.EventsTotal.WithLabelValues(string(events.ValidationSuccess), "Ok", "")))
	assert.Equal(t, 2.0, counterValue(t, m.FailuresTotal.WithLabelValues("Ok", "")))

	require.True(t, em.Off(sub))
	_, _ = v.Validate(ctx, ok, map[string]any{"ok": true}, model.Options{})
	assert.Equal(t, 3.0, counterValue(t, m.EventsTotal.WithLabelValues(string(events.BeforeValidation), "Ok", "")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "apiguard_validation_events_total")
	assert.Contains(t, names, "apiguard_validation_failures_total")
}

func TestWriteText_ParsesBack(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Record(events.Event{Kind: events.ValidationError, Model: "Pet", Operation: "pets.get"})
	m.Record(events.Event{Kind: events.AfterValidation, Model: "Pet", Operation: "pets.get"})

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(&buf)
	require.NoError(t, err)

	require.Contains(t, families, "apiguard_validation_events_total")
	assert.Len(t, families["apiguard_validation_events_total"].GetMetric(), 2)
	failures := families["apiguard_validation_failures_total"]
	require.NotNil(t, failures)
	require.Len(t, failures.GetMetric(), 1)
	assert.Equal(t, 1.0, failures.GetMetric()[0].GetCounter().GetValue())
}

type recordingPublisher struct {
	channel string
	msgs    [][]byte
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	if b, ok := message.([]byte); ok {
		p.msgs = append(p.msgs, b)
	}
	return redis.NewIntResult(1, p.err)
}

func TestRedisForwarder_PublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	f := NewRedisForwarder(pub, WithChannel("test:events"))
	f.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	em := events.New()
	f.Attach(em)
	em.Emit(events.Event{Kind: events.ValidationError, Model: "Pet", Operation: "pets.get", Err: errors.New("bad"), Message: "ERROR"})

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "test:events", pub.channel)

	var got Message
	require.NoError(t, json.Unmarshal(pub.msgs[0], &got))
	assert.Equal(t, Message{
		Kind:      events.ValidationError,
		Model:     "Pet",
		Operation: "pets.get",
		Message:   "ERROR",
		Error:     "bad",
		Time:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}, got)
}

func TestRedisForwarder_FailuresDoNotReachEmitter(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("down")}
	f := NewRedisForwarder(pub)
	assert.Equal(t, DefaultChannel, f.Channel())

	em := events.New()
	f.Attach(em)
	assert.NotPanics(t, func() { em.Emit(events.Event{Kind: events.AfterValidation}) })
	assert.Error(t, f.Forward(events.Event{Kind: events.AfterValidation}))
}

func TestRedisForwarder_LiveRedis(t *testing.T) {
	addr := os.Getenv("APIGUARD_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := DialRedis(ctx, addr)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	f := NewRedisForwarder(client, WithChannel("apiguard:test:events"))
	sub := client.Subscribe(ctx, f.Channel())
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, f.Forward(events.Event{Kind: events.ValidationSuccess, Model: "Pet"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got Message
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "Pet", got.Model)
}
