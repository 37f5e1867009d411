package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/metrics"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/normalizer"
	"github.com/IBM/sarama"
)

// OfferSource tags offers coming from this service.
const OfferSource = "amazon-paapi"

// OfferPublisher writes normalized items to the offers topic in the shared Offer schema.
type OfferPublisher struct {
	producer sarama.SyncProducer
	topic    string
	metrics  *metrics.Registry
	now      func() time.Time
}

// NewSaramaConfig is the producer configuration every bf-offers service uses.
func NewSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	return config
}

func NewOfferPublisher(brokers []string, topic string, m *metrics.Registry) (*OfferPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to start sarama producer: %w", err)
	}
	return NewOfferPublisherFromProducer(producer, topic, m), nil
}

func NewOfferPublisherFromProducer(producer sarama.SyncProducer, topic string, m *metrics.Registry) *OfferPublisher {
	return &OfferPublisher{producer: producer, topic: topic, metrics: m, now: time.Now}
}

// ToOffer converts an item. Items without a parsable price are not offers.
func ToOffer(item models.NormalizedItem, receivedAt time.Time) (models.Offer, bool) {
	if item.Price == nil {
		return models.Offer{}, false
	}
	price, ok := normalizer.ParsePrice(*item.Price)
	if !ok {
		return models.Offer{}, false
	}
	return models.Offer{
		ProductName:   item.Title,
		Price:         price,
		OriginalPrice: price,
		Details:       item.URL,
		Source:        OfferSource,
		ReceivedAt:    receivedAt,
	}, true
}

// PublishItems sends one message per priced item, keyed by ASIN.
func (p *OfferPublisher) PublishItems(ctx context.Context, items []models.NormalizedItem) error {
	var msgs []*sarama.ProducerMessage
	now := p.now().UTC()

	for _, item := range items {
		offer, ok := ToOffer(item, now)
		if !ok {
			continue
		}
		data, err := json.Marshal(offer)
		if err != nil {
			log.Printf("Failed to marshal offer %s: %v", item.ASIN, err)
			continue
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(item.ASIN),
			Value: sarama.ByteEncoder(data),
		})
	}

	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("failed to write batch to kafka: %w", err)
	}
	p.metrics.ObservePublished(len(msgs))
	log.Printf("Published %d offers to %s", len(msgs), p.topic)
	return nil
}

// Close closes the producer
func (p *OfferPublisher) Close() error {
	return p.producer.Close()
}
