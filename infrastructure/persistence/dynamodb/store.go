package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Store is the DynamoDB-backed snapshot store. One item per logical
// key in a single table: the engine's durable surface is three small
// blobs, not a relational schema.
type Store struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewStore creates a DynamoDB snapshot store
func NewStore(client *dynamodb.Client, tableName string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

var _ ports.SnapshotStore = (*Store)(nil)

// snapshotItem is the DynamoDB item structure for one logical key
type snapshotItem struct {
	PK        string `dynamodbav:"PK"` // SNAPSHOT#<logical key>
	SK        string `dynamodbav:"SK"` // Always "LATEST"
	Key       string `dynamodbav:"SnapshotKey"`
	Payload   []byte `dynamodbav:"Payload"`
	Bytes     int    `dynamodbav:"Bytes"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("SNAPSHOT#%s", key)},
		"SK": &types.AttributeValueMemberS{Value: "LATEST"},
	}
}

// Get retrieves the payload stored under a logical key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(key),
	}

	result, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", key, err)
	}
	if result.Item == nil {
		return nil, ports.ErrKeyNotFound
	}

	var item snapshotItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", key, err)
	}
	return item.Payload, nil
}

// Set durably stores a payload under a logical key
func (s *Store) Set(ctx context.Context, key string, payload []byte) error {
	item, err := attributevalue.MarshalMap(snapshotItem{
		PK:        fmt.Sprintf("SNAPSHOT#%s", key),
		SK:        "LATEST",
		Key:       key,
		Payload:   payload,
		Bytes:     len(payload),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", key, err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}

	s.logger.Debug("Snapshot written to DynamoDB",
		zap.String("key", key),
		zap.Int("bytes", len(payload)),
	)
	return nil
}

// Delete removes a logical key
func (s *Store) Delete(ctx context.Context, key string) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(key),
	}
	if _, err := s.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the table is reachable
func (s *Store) Ping(ctx context.Context) error {
	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	}
	if _, err := s.client.DescribeTable(ctx, input); err != nil {
		return fmt.Errorf("failed to reach table %s: %w", s.tableName, err)
	}
	return nil
}

// Close releases nothing; the SDK client holds no persistent connection
func (s *Store) Close() error {
	return nil
}
