package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"skymind/internal/flights"
	"skymind/internal/predict"
)

// DefaultKafkaTopic is used when no topic is configured.
const DefaultKafkaTopic = "skymind.flights"

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaConfig selects brokers and topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaWriter publishes each row as a JSON message keyed by icao24, with a
// "kind" header of state or prediction.
type KafkaWriter struct {
	writer kafkaMessageWriter
	closer func() error
	topic  string
	log    *slog.Logger
}

// NewKafkaWriter builds a synchronous kafka-go writer.
func NewKafkaWriter(cfg KafkaConfig, log *slog.Logger) (*KafkaWriter, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultKafkaTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newKafkaWriter(w, w.Close, cfg.Topic, log), nil
}

func newKafkaWriter(w kafkaMessageWriter, closer func() error, topic string, log *slog.Logger) *KafkaWriter {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaWriter{
		writer: w,
		closer: closer,
		topic:  topic,
		log:    log.With(slog.String("component", "kafka_writer"), slog.String("topic", topic)),
	}
}

func (k *KafkaWriter) WriteRows(ctx context.Context, rows []flights.LabeledRow) error {
	msgs := make([]kafka.Message, 0, len(rows))
	for _, r := range rows {
		msg, err := message(r.ICAO24, KindState, stateRecord{Kind: KindState, LabeledRow: r})
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return k.publish(ctx, msgs)
}

func (k *KafkaWriter) WritePredictions(ctx context.Context, preds []predict.Prediction) error {
	msgs := make([]kafka.Message, 0, len(preds))
	for _, p := range preds {
		msg, err := message(p.Row.ICAO24, KindPrediction, newPredictionRecord(p))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return k.publish(ctx, msgs)
}

func (k *KafkaWriter) publish(ctx context.Context, msgs []kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		k.log.Error("publish failed", "messages", len(msgs), "err", err)
		return fmt.Errorf("kafka publish: %w", err)
	}
	k.log.Debug("published", "messages", len(msgs))
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaWriter) Close() error {
	if k.closer == nil {
		return nil
	}
	return k.closer()
}

func message(key, kind string, v any) (kafka.Message, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s %s: %w", kind, key, err)
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(kind)}},
	}, nil
}
