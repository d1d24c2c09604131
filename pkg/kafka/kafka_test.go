package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed++
	return nil
}

func TestPublishEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "snappy")

	require.NoError(t, p.PublishBatch(context.Background(), "decisions", []Message{
		{Key: []byte("BTCUSDT"), Value: map[string]any{"side": "LONG"}, Headers: map[string]string{"scan_id": "s1"}},
		{Key: []byte("ETHUSDT"), Value: "raw"},
		{Value: []byte{0x1, 0x2}},
	}))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "decisions", w.msgs[0].Topic)
	assert.Equal(t, []byte("BTCUSDT"), w.msgs[0].Key)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "LONG", decoded["side"])
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, "scan_id", w.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte("raw"), w.msgs[1].Value)
	assert.Equal(t, []byte{0x1, 0x2}, w.msgs[2].Value)

	assert.NoError(t, p.PublishBatch(context.Background(), "decisions", nil))
	assert.Len(t, w.msgs, 3)
}

func TestPublishMessageAndErrors(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "gzip")
	require.NoError(t, p.PublishMessage(context.Background(), "logs", []string{"a"}))
	assert.Nil(t, w.msgs[0].Key)

	w.err = errors.New("broker down")
	err := p.Publish(context.Background(), "decisions", []byte("k"), "v")
	assert.ErrorContains(t, err, "broker down")
	assert.ErrorContains(t, err, "decisions")

	err = p.Publish(context.Background(), "decisions", nil, func() {})
	assert.ErrorContains(t, err, "marshal value")
}

func TestCloseIsIdempotent(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "none")
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
}

func TestNewProducerNeedsBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
	_, err = NewConsumer()
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Gzip, parseCompression("gzip"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Snappy, parseCompression("unknown"))
	assert.Equal(t, kafka.Compression(0), parseCompression("none"))
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.LessOrEqual(t, backoffWithJitter(0, 0, 1), 50*time.Millisecond)
}

func TestPermanentErrors(t *testing.T) {
	base := errors.New("bad payload")
	err := fmt.Errorf("decode: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestHookFuncsDefaults(t *testing.T) {
	var got error
	h := HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { got = err }}

	ctx, _, data, err := h.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.NotNil(t, ctx)
	assert.Equal(t, []byte("x"), data)
	h.AfterHandle(ctx, "t", kafka.Message{}, data, nil)

	boom := errors.New("boom")
	h.OnError(ctx, "t", kafka.Message{}, data, boom)
	assert.Equal(t, boom, got)
}
