package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/catalog"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
	"github.com/IBM/sarama"
)

// EventWishlistItemAdded is the only wishlist event that warms the cache.
const EventWishlistItemAdded = "wishlist_item_added"

const maxKeywords = 200

// Searcher runs a cached catalog search.
type Searcher interface {
	Search(ctx context.Context, r catalog.SearchRequest) (*models.ProductsResponse, error)
}

// CacheWarmer searches Amazon for every product a user adds to a wishlist so the
// first real query is a cache hit.
type CacheWarmer struct {
	searcher Searcher
	timeout  time.Duration
}

func NewCacheWarmer(s Searcher) *CacheWarmer {
	return &CacheWarmer{searcher: s, timeout: 30 * time.Second}
}

// ParseWishlistEvent parses a wishlist event from JSON
func ParseWishlistEvent(data []byte) (*models.WishlistEvent, error) {
	var event models.WishlistEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to parse wishlist event: %w", err)
	}
	return &event, nil
}

// Handle processes one raw Kafka message.
func (w *CacheWarmer) Handle(ctx context.Context, data []byte) error {
	event, err := ParseWishlistEvent(data)
	if err != nil {
		return err
	}
	if event.Type != EventWishlistItemAdded {
		return nil
	}
	keywords := strings.TrimSpace(event.ProductName)
	if keywords == "" {
		return nil
	}
	if utf8.RuneCountInString(keywords) > maxKeywords {
		keywords = string([]rune(keywords)[:maxKeywords])
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	resp, err := w.searcher.Search(ctx, catalog.SearchRequest{Keywords: keywords})
	if err != nil {
		return fmt.Errorf("failed to warm cache for %q: %w", keywords, err)
	}
	source := ""
	if resp.Meta != nil {
		source = resp.Meta.Source
	}
	log.Printf("Warmed cache for wishlist item %q (user %d): %d items from %s", keywords, event.TelegramID, len(resp.Items), source)
	return nil
}

// WishlistConsumer feeds wishlist-events messages to a handler.
type WishlistConsumer struct {
	ready   chan bool
	handler func(context.Context, []byte) error
}

func NewWishlistConsumer(handler func(context.Context, []byte) error) *WishlistConsumer {
	return &WishlistConsumer{
		ready:   make(chan bool),
		handler: handler,
	}
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (c *WishlistConsumer) Setup(sarama.ConsumerGroupSession) error {
	log.Println("Wishlist consumer session started")
	close(c.ready)
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (c *WishlistConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim handles messages until the claim closes. Handler errors are logged and
// the message is still marked, so one bad event cannot block the partition.
func (c *WishlistConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := c.handler(session.Context(), message.Value); err != nil {
			log.Printf("Error handling wishlist event: %v", err)
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// NewConsumerConfig is the consumer group configuration shared with the backend.
func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	return config
}

// consumeRetryDelay is the wait after a failed Consume call.
var consumeRetryDelay = 5 * time.Second

var newConsumerGroup = func(brokers []string, groupID string) (sarama.ConsumerGroup, error) {
	return sarama.NewConsumerGroup(brokers, groupID, NewConsumerConfig())
}

// StartWishlistConsumer joins groupID on topic in the background and returns without
// waiting for a session, so an unhealthy cluster never delays the caller. The group is
// closed when ctx is cancelled and the returned channel is closed after that.
func StartWishlistConsumer(ctx context.Context, brokers []string, topic, groupID string, handler func(context.Context, []byte) error) (<-chan struct{}, error) {
	client, err := newConsumerGroup(brokers, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	done := make(chan struct{})
	go consumeLoop(ctx, client, topic, NewWishlistConsumer(handler), done)
	log.Printf("Wishlist consumer joining group %s on %s", groupID, topic)
	return done, nil
}

func consumeLoop(ctx context.Context, client sarama.ConsumerGroup, topic string, consumer *WishlistConsumer, done chan struct{}) {
	defer close(done)
	defer client.Close()
	for {
		// Consume returns on every rebalance and must be called again.
		if err := client.Consume(ctx, []string{topic}, consumer); err != nil {
			log.Printf("Error from consumer: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(consumeRetryDelay):
			}
		}
		if ctx.Err() != nil {
			return
		}
		consumer.ready = make(chan bool)
	}
}
