package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/newsinsight/api/internal/domain"
)

// MFASettingsRepo provides typed DynamoDB operations for the mfa_settings
// table. PK: user_id (one-to-one with users). Methods and backup codes are
// stored as string sets so single-code removal can be expressed as an
// atomic DELETE on the set.
type MFASettingsRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewMFASettingsRepo(client *dynamodb.Client, tableName string) *MFASettingsRepo {
	return &MFASettingsRepo{client: client, tableName: tableName}
}

func (r *MFASettingsRepo) Put(ctx context.Context, s *domain.MFASettings) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal mfa settings: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *MFASettingsRepo) Get(ctx context.Context, userID string) (*domain.MFASettings, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("user_id", userID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("mfa settings not found: %w", domain.ErrNotFound)
	}
	var s domain.MFASettings
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ConsumeBackupCode atomically removes code from the user's backup-code set.
// The condition expression guarantees at-most-one successful consumption:
// a concurrent duplicate submission loses the conditional check and gets
// domain.ErrUnauthorized.
func (r *MFASettingsRepo) ConsumeBackupCode(ctx context.Context, userID, code string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("user_id", userID),
		UpdateExpression:    aws.String("DELETE backup_codes :set SET updated_at = :now"),
		ConditionExpression: aws.String("contains(backup_codes, :code)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":set":  &types.AttributeValueMemberSS{Value: []string{code}},
			":code": &types.AttributeValueMemberS{Value: code},
			":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("backup code not in set: %w", domain.ErrUnauthorized)
		}
		return err
	}
	return nil
}
