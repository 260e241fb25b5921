package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wfsantos/agendabot/pkg/logging"
)

// Rows expire well past the 2h dialogue staleness window; the TTL only keeps
// the table from accumulating dead conversations.
const conversationTTL = 7 * 24 * time.Hour

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Store persists conversation rows to DynamoDB, keyed tenantId + phone.
type Store struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewStore builds a store backed by the provided DynamoDB client.
func NewStore(client dynamoAPI, tableName string, logger *logging.Logger) *Store {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		client:    client,
		tableName: tableName,
		logger:    logger,
		tracer:    otel.Tracer("agendabot.internal.conversation"),
	}
}

// Get fetches the conversation for (tenant, phone). An absent row comes back
// as a fresh idle conversation, never an error.
func (s *Store) Get(ctx context.Context, tenantID, phone string) (*Conversation, error) {
	if tenantID == "" || phone == "" {
		return nil, errors.New("conversation: tenant id and phone required")
	}
	ctx, span := s.tracer.Start(ctx, "conversation.get",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       conversationKey(tenantID, phone),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: fetch row: %w", err)
	}
	if out.Item == nil {
		return &Conversation{TenantID: tenantID, Phone: phone, State: StateIdle}, nil
	}
	var conv Conversation
	if err := attributevalue.UnmarshalMap(out.Item, &conv); err != nil {
		return nil, fmt.Errorf("conversation: decode row: %w", err)
	}
	if conv.State == "" {
		conv.State = StateIdle
	}
	return &conv, nil
}

// Put writes the conversation row, last write wins. Concurrent messages for
// the same phone race deliberately; human-paced input makes the window
// acceptable without locks.
func (s *Store) Put(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return errors.New("conversation: row cannot be nil")
	}
	if conv.TenantID == "" || conv.Phone == "" {
		return errors.New("conversation: tenant id and phone required")
	}
	ctx, span := s.tracer.Start(ctx, "conversation.put",
		trace.WithAttributes(
			attribute.String("tenant.id", conv.TenantID),
			attribute.String("conversation.state", string(conv.State)),
		))
	defer span.End()

	now := time.Now().UTC()
	conv.UpdatedAt = now.Format(time.RFC3339Nano)
	conv.ExpiresAt = now.Add(conversationTTL).Unix()

	item, err := attributevalue.MarshalMap(conv)
	if err != nil {
		return fmt.Errorf("conversation: marshal row: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("conversation: persist row: %w", err)
	}
	return nil
}

func conversationKey(tenantID, phone string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"tenantId": &types.AttributeValueMemberS{Value: tenantID},
		"phone":    &types.AttributeValueMemberS{Value: phone},
	}
}
