package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the cache uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoItem is one cache row. expires_at (epoch seconds) is the table's TTL attribute.
type dynamoItem struct {
	Key       string `dynamodbav:"cache_key"`
	Data      string `dynamodbav:"data"`
	StoredAt  int64  `dynamodbav:"stored_at"`
	TTLMillis int64  `dynamodbav:"ttl_ms"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// DynamoCache stores entries in a DynamoDB table keyed by cache_key.
type DynamoCache struct {
	client     DynamoAPI
	table      string
	defaultTTL time.Duration
	now        func() time.Time
}

// NewDynamoCache loads AWS credentials from the environment and checks the table exists.
func NewDynamoCache(ctx context.Context, table, region string, defaultTTL time.Duration) (*DynamoCache, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	c := NewDynamoCacheFromClient(dynamodb.NewFromConfig(cfg), table, defaultTTL)
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func NewDynamoCacheFromClient(client DynamoAPI, table string, defaultTTL time.Duration) *DynamoCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &DynamoCache{client: client, table: table, defaultTTL: defaultTTL, now: time.Now}
}

func (c *DynamoCache) Name() string { return "dynamodb" }

func (c *DynamoCache) Ping(ctx context.Context) error {
	if _, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.table)}); err != nil {
		return fmt.Errorf("failed to describe table %s: %w", c.table, err)
	}
	return nil
}

func (c *DynamoCache) Get(ctx context.Context, key string) (*Entry, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            keyAttr(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil || item.Data == "" {
		log.Printf("Removing corrupt dynamodb cache entry %s", key)
		c.deleteQuietly(ctx, key)
		return nil, nil
	}

	entry := &Entry{Data: []byte(item.Data), Timestamp: item.StoredAt, TTL: item.TTLMillis}
	// DynamoDB TTL deletion can lag for hours, so expiry is enforced here too.
	if entry.Expired(c.now()) {
		c.deleteQuietly(ctx, key)
		return nil, nil
	}
	return entry, nil
}

func (c *DynamoCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	entry := newEntry(data, ttl, c.now())
	av, err := attributevalue.MarshalMap(dynamoItem{
		Key:       key,
		Data:      string(entry.Data),
		StoredAt:  entry.Timestamp,
		TTLMillis: entry.TTL,
		ExpiresAt: entry.ExpiresAt().Unix() + 1,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if _, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(c.table), Item: av}); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (c *DynamoCache) Delete(ctx context.Context, key string) error {
	if _, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: aws.String(c.table), Key: keyAttr(key)}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Clear scans the table and deletes every row.
func (c *DynamoCache) Clear(ctx context.Context) error {
	p := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:            aws.String(c.table),
		ProjectionExpression: aws.String("cache_key"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to scan cache table: %w", err)
		}
		for _, row := range page.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(row, &item); err != nil || item.Key == "" {
				continue
			}
			if err := c.Delete(ctx, item.Key); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cleanup is a no-op: the table's TTL attribute expires rows.
func (c *DynamoCache) Cleanup(ctx context.Context) (int, error) { return 0, nil }

func (c *DynamoCache) deleteQuietly(ctx context.Context, key string) {
	if err := c.Delete(ctx, key); err != nil {
		log.Printf("Failed to delete dynamodb cache entry %s: %v", key, err)
	}
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"cache_key": &types.AttributeValueMemberS{Value: key},
	}
}
