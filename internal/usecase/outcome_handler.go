package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CryptoSignal/internal/domain/models"
	drepo "CryptoSignal/internal/domain/repository"
	"CryptoSignal/pkg/kafka"

	"github.com/go-playground/validator/v10"
	segkafka "github.com/segmentio/kafka-go"
)

// OutcomeHandler consumes realized outcomes from Kafka and stores them.
// Malformed messages are permanent failures and go straight to the DLQ.
type OutcomeHandler struct {
	topic    string
	store    drepo.OutcomeStore
	metrics  drepo.Metrics
	validate *validator.Validate
}

func NewOutcomeHandler(topic string, store drepo.OutcomeStore, metrics drepo.Metrics) *OutcomeHandler {
	return &OutcomeHandler{topic: topic, store: store, metrics: metrics, validate: validator.New()}
}

func (h *OutcomeHandler) Topic() string { return h.topic }

func (h *OutcomeHandler) Handle(ctx context.Context, data []byte) error {
	start := time.Now()
	var o models.OutcomeSample
	if err := json.Unmarshal(data, &o); err != nil {
		return kafka.Permanent(fmt.Errorf("decode outcome: %w", err))
	}
	if err := h.validate.Struct(&o); err != nil {
		return kafka.Permanent(fmt.Errorf("invalid outcome: %w", err))
	}
	if err := h.store.StoreOutcome(ctx, &o); err != nil {
		return err
	}
	h.metrics.RecordLatency("outcome_store", time.Since(start).Seconds())
	return nil
}

// ErrorHook counts handler failures once retries are exhausted.
func (h *OutcomeHandler) ErrorHook() kafka.HookFuncs {
	return kafka.HookFuncs{
		Err: func(_ context.Context, _ string, _ segkafka.Message, _ []byte, err error) {
			if kafka.IsPermanent(err) {
				h.metrics.RecordError("outcome_invalid")
				return
			}
			h.metrics.RecordError("outcome_store")
		},
	}
}

var _ kafka.MessageHandler = (*OutcomeHandler)(nil)
