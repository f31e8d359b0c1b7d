package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/newsinsight/api/internal/domain"
)

// TrustedDeviceRepo provides typed DynamoDB operations for the
// trusted_devices table. PK: user_id, SK: fingerprint — a PutItem on the
// same pair is the upsert that refreshes the trust window.
type TrustedDeviceRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewTrustedDeviceRepo(client *dynamodb.Client, tableName string) *TrustedDeviceRepo {
	return &TrustedDeviceRepo{client: client, tableName: tableName}
}

func (r *TrustedDeviceRepo) Put(ctx context.Context, d *domain.TrustedDevice) error {
	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return fmt.Errorf("marshal trusted device: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *TrustedDeviceRepo) Get(ctx context.Context, userID, fingerprint string) (*domain.TrustedDevice, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("user_id", userID, "fingerprint", fingerprint),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("trusted device not found: %w", domain.ErrNotFound)
	}
	var d domain.TrustedDevice
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *TrustedDeviceRepo) Delete(ctx context.Context, userID, fingerprint string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("user_id", userID, "fingerprint", fingerprint),
	})
	return err
}
