package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"

	"github.com/eaidavid/sistema-sub001/internal/models"
)

// Producer publishes recorded commissions to the ledger topic for
// downstream consumers (reporting, payout). Durability is owned by
// Postgres; a publish failure is logged by the caller, not retried.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

func NewProducer(config ProducerConfig) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.Println("Kafka producer initialized successfully")
	return &Producer{
		producer: producer,
		topic:    config.Topic,
	}, nil
}

func (p *Producer) PublishCommission(ctx context.Context, msg models.LedgerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger message: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		// Key by affiliate so one affiliate's ledger stays ordered
		// within a partition.
		Key:       sarama.StringEncoder(msg.Affiliate),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	log.Printf("Ledger message sent to partition %d at offset %d", partition, offset)
	return nil
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	log.Println("Kafka producer closed")
	return nil
}
