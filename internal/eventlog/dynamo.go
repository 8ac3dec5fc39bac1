package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/notify-engine/internal/notification"
)

// DynamoStore persists event log entries in a single DynamoDB table keyed
// by notification id.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoEvent is the DynamoDB item shape for one audit entry.
// PK = NOTIF#<notification id>, SK = <RFC3339Nano timestamp>#<phase> so a
// single Query returns the entries in write order.
type dynamoEvent struct {
	PK                string `dynamodbav:"PK"`
	SK                string `dynamodbav:"SK"`
	Recipient         string `dynamodbav:"Recipient"`
	Channel           string `dynamodbav:"Channel"`
	Phase             string `dynamodbav:"Phase"`
	ProviderMessageID string `dynamodbav:"ProviderMessageId,omitempty"`
	ErrorCode         string `dynamodbav:"ErrorCode,omitempty"`
	ErrorMessage      string `dynamodbav:"ErrorMessage,omitempty"`
	ProcessingTimeMs  int64  `dynamodbav:"ProcessingTimeMs"`
	Timestamp         string `dynamodbav:"Timestamp"`
	TTL               int64  `dynamodbav:"TTL,omitempty"`
}

// NewDynamoStore creates a DynamoDB-backed event log store using the default
// credential chain.
func NewDynamoStore(ctx context.Context, tableName, region string) (*DynamoStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &DynamoStore{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}, nil
}

func (s *DynamoStore) Append(ctx context.Context, e *notification.EventLogEntry) error {
	item := dynamoEvent{
		PK:                "NOTIF#" + e.NotificationID,
		SK:                e.Timestamp.UTC().Format(time.RFC3339Nano) + "#" + string(e.Phase),
		Recipient:         e.Recipient,
		Channel:           string(e.Channel),
		Phase:             string(e.Phase),
		ProviderMessageID: e.ProviderMessageID,
		ErrorCode:         e.ErrorCode,
		ErrorMessage:      e.ErrorMessage,
		ProcessingTimeMs:  e.ProcessingTimeMs,
		Timestamp:         e.Timestamp.UTC().Format(time.RFC3339Nano),
		TTL:               e.Timestamp.Add(90 * 24 * time.Hour).Unix(), // 90 day retention
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting event to DynamoDB: %w", err)
	}
	return nil
}

func (s *DynamoStore) ListByNotification(ctx context.Context, notificationID string) ([]notification.EventLogEntry, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "NOTIF#" + notificationID},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}

	entries := make([]notification.EventLogEntry, 0, len(result.Items))
	for _, item := range result.Items {
		var ev dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &ev); err != nil {
			return nil, fmt.Errorf("unmarshaling event: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, ev.Timestamp)
		entries = append(entries, notification.EventLogEntry{
			NotificationID:    notificationID,
			Recipient:         ev.Recipient,
			Channel:           notification.Channel(ev.Channel),
			Phase:             notification.Phase(ev.Phase),
			ProviderMessageID: ev.ProviderMessageID,
			ErrorCode:         ev.ErrorCode,
			ErrorMessage:      ev.ErrorMessage,
			ProcessingTimeMs:  ev.ProcessingTimeMs,
			Timestamp:         ts,
		})
	}
	return entries, nil
}
