// Package kafka relays persisted sensor readings to a Kafka topic as
// CloudEvents.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jittakal/datalogger/internal/config/dto"
	"github.com/jittakal/datalogger/internal/ingest"
	"github.com/jittakal/datalogger/pkg/reading"
)

// Event types published by the forwarder.
const (
	EventTypeLine   = "com.datalogger.reading.line"
	EventTypeRecord = "com.datalogger.reading.record"
)

// keyRaw partitions readings that carry no slave id.
const keyRaw = "raw"

// Ensure implementation satisfies interface at compile time.
var _ ingest.Forwarder = (*Forwarder)(nil)

// Forwarder publishes readings with a synchronous producer.
type Forwarder struct {
	producer sarama.SyncProducer
	topic    string
	source   string
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewForwarder connects a producer to cfg.Brokers.
func NewForwarder(cfg dto.ForwardConfig, logger *slog.Logger) (*Forwarder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.ClientID = "datalogger"
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = compressionCodec(cfg.Compression)
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1
	if cfg.TimeoutMS > 0 {
		saramaConfig.Producer.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}

	if err := configureSecurity(saramaConfig, cfg); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	f := newForwarder(producer, cfg, logger)
	logger.Info("Kafka forwarder created",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"security_protocol", cfg.SecurityProtocol,
	)
	return f, nil
}

func newForwarder(producer sarama.SyncProducer, cfg dto.ForwardConfig, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		producer: producer,
		topic:    cfg.Topic,
		source:   eventSource(cfg.Source),
		logger:   logger,
		now:      time.Now,
	}
}

// Forward publishes p to the configured topic.
func (f *Forwarder) Forward(ctx context.Context, p reading.Payload, rc reading.RequestContext) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return fmt.Errorf("forwarder is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	event, key, err := BuildEvent(p, rc, f.source, f.now())
	if err != nil {
		return err
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: f.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(eventBytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("ce_specversion"), Value: []byte(event.SpecVersion())},
			{Key: []byte("ce_type"), Value: []byte(event.Type())},
			{Key: []byte("ce_source"), Value: []byte(event.Source())},
			{Key: []byte("ce_id"), Value: []byte(event.ID())},
		},
	}

	partition, offset, err := f.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	f.logger.Debug("reading forwarded",
		"topic", f.topic,
		"partition", partition,
		"offset", offset,
		"event_id", event.ID(),
		"event_type", event.Type(),
		"key", key,
	)
	return nil
}

// Close flushes and closes the producer.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	if err := f.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	f.logger.Info("Kafka forwarder closed")
	return nil
}

// BuildEvent wraps p in a CloudEvent and returns it with its message key.
func BuildEvent(p reading.Payload, rc reading.RequestContext, source string, at time.Time) (cloudevents.Event, string, error) {
	event := cloudevents.NewEvent()
	event.SetSpecVersion(cloudevents.VersionV1)
	event.SetID(uuid.New().String())
	event.SetSource(source)
	event.SetTime(at)

	var data any
	key := keyRaw

	switch p.Kind {
	case reading.KindLine:
		event.SetType(EventTypeLine)
		data = map[string]string{reading.FieldCSVLine: p.Line}

	case reading.KindRecord:
		event.SetType(EventTypeRecord)
		data = p.Record
		if md := p.Metadata(); md.SlaveID != nil {
			key = strconv.Itoa(*md.SlaveID)
			event.SetSubject("slave/" + key)
		}

	default:
		return event, "", fmt.Errorf("cannot forward payload of kind %q", p.Kind)
	}

	if rc.RemoteAddress != "" {
		event.SetExtension("remoteaddress", rc.RemoteAddress)
	}
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return event, "", fmt.Errorf("failed to set event data: %w", err)
	}
	if err := event.Validate(); err != nil {
		return event, "", fmt.Errorf("invalid CloudEvent: %w", err)
	}
	return event, key, nil
}

// eventSource appends the host name to base.
func eventSource(base string) string {
	if base == "" {
		base = "/datalogger"
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return base
	}
	return base + "/" + host
}
