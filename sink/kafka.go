package sink

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ranita-Rajan/TarTrackers-Pothole-Detector/dedup"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/pkg/errors"
)

// KafkaConfig holds connection settings for the report topic.
type KafkaConfig struct {
	BootstrapServers string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
	Topic            string
	CompressionType  string
	Acks             string
	LingerMS         int
	FlushTimeout     time.Duration
}

// NewKafkaConfigFromEnv reads Kafka settings from environment variables,
// falling back to defaults suitable for a local broker.
func NewKafkaConfigFromEnv() *KafkaConfig {
	return &KafkaConfig{
		BootstrapServers: getEnv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"),
		SecurityProtocol: getEnv("KAFKA_SECURITY_PROTOCOL", "PLAINTEXT"),
		SASLMechanism:    getEnv("KAFKA_SASL_MECHANISM", ""),
		SASLUsername:     getEnv("KAFKA_SASL_USERNAME", ""),
		SASLPassword:     getEnv("KAFKA_SASL_PASSWORD", ""),
		Topic:            getEnv("KAFKA_TOPIC", "pothole-reports"),
		CompressionType:  getEnv("KAFKA_COMPRESSION_TYPE", "snappy"),
		Acks:             getEnv("KAFKA_ACKS", "all"),
		LingerMS:         getEnvInt("KAFKA_LINGER_MS", 10),
		FlushTimeout:     15 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// KafkaSink publishes reports to a Kafka topic as JSON messages keyed by
// report ID. Delivery confirmations are drained by a background goroutine;
// Publish itself only enqueues.
type KafkaSink struct {
	producer     *kafka.Producer
	config       *KafkaConfig
	deliveryChan chan kafka.Event

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewKafkaSink connects to the configured broker and starts the delivery
// report handler.
func NewKafkaSink(cfg *KafkaConfig) (*KafkaSink, error) {
	producerConfig := &kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
		"security.protocol": cfg.SecurityProtocol,
		"compression.type":  cfg.CompressionType,
		"acks":              cfg.Acks,
		"linger.ms":         cfg.LingerMS,
	}
	if cfg.SASLMechanism != "" {
		_ = producerConfig.SetKey("sasl.mechanism", cfg.SASLMechanism)
		_ = producerConfig.SetKey("sasl.username", cfg.SASLUsername)
		_ = producerConfig.SetKey("sasl.password", cfg.SASLPassword)
	}
	p, err := kafka.NewProducer(producerConfig)
	if err != nil {
		return nil, errors.Wrap(err, "can't create kafka producer")
	}
	s := &KafkaSink{
		producer:     p,
		config:       cfg,
		deliveryChan: make(chan kafka.Event, 1024),
		done:         make(chan struct{}),
	}
	s.wg.Add(1)
	go s.handleDeliveryReports()
	return s, nil
}

func (s *KafkaSink) handleDeliveryReports() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case e := <-s.deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}
			if m.TopicPartition.Error != nil {
				s.failed.Add(1)
			} else {
				s.acked.Add(1)
			}
		}
	}
}

// Publish enqueues the report for delivery.
func (s *KafkaSink) Publish(ctx context.Context, report dedup.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "can't serialize report")
	}
	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(report.ID.String()),
		Value: payload,
	}
	if err := s.producer.Produce(message, s.deliveryChan); err != nil {
		s.failed.Add(1)
		return errors.Wrap(err, "can't enqueue report")
	}
	s.sent.Add(1)
	return nil
}

// Stats reports sent/acked/failed message counters.
func (s *KafkaSink) Stats() (sent, acked, failed int64) {
	return s.sent.Load(), s.acked.Load(), s.failed.Load()
}

// Close flushes pending messages and shuts the producer down.
func (s *KafkaSink) Close() error {
	remaining := s.producer.Flush(int(s.config.FlushTimeout.Milliseconds()))
	close(s.done)
	s.wg.Wait()
	s.producer.Close()
	if remaining > 0 {
		return errors.Errorf("%d messages still pending after flush", remaining)
	}
	return nil
}
