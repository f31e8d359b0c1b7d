package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/newsinsight/api/internal/domain"
)

// ChallengeRepo manages one-time-code rows in the mfa_attempts table.
// PK: user_id, SK: attempt_id (ULID). Because ULIDs sort by creation time,
// a descending query yields newest-first — the newest valid row is the
// authoritative one. Expired rows are never purged here; the expires_at
// TTL and validity filters make them invisible.
type ChallengeRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewChallengeRepo(client *dynamodb.Client, tableName string) *ChallengeRepo {
	return &ChallengeRepo{client: client, tableName: tableName}
}

func (r *ChallengeRepo) Put(ctx context.Context, c *domain.MFAChallenge) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// GetLatestValid returns the newest unused, unexpired challenge for
// (user, method, purpose), or ErrNotFound.
func (r *ChallengeRepo) GetLatestValid(ctx context.Context, userID, method, purpose string, now time.Time) (*domain.MFAChallenge, error) {
	return r.queryNewest(ctx, userID, now,
		"#m = :method AND purpose = :purpose AND used = :f AND expires_at > :now",
		map[string]types.AttributeValue{
			":method":  &types.AttributeValueMemberS{Value: method},
			":purpose": &types.AttributeValueMemberS{Value: purpose},
		})
}

// FindValidByCode returns the newest unused, unexpired challenge matching
// (user, method, purpose, code), or ErrNotFound.
func (r *ChallengeRepo) FindValidByCode(ctx context.Context, userID, method, purpose, code string, now time.Time) (*domain.MFAChallenge, error) {
	return r.queryNewest(ctx, userID, now,
		"#m = :method AND purpose = :purpose AND code = :code AND used = :f AND expires_at > :now",
		map[string]types.AttributeValue{
			":method":  &types.AttributeValueMemberS{Value: method},
			":purpose": &types.AttributeValueMemberS{Value: purpose},
			":code":    &types.AttributeValueMemberS{Value: code},
		})
}

// Consume marks the challenge used. The condition expression makes the
// read-then-mark sequence atomic: of any number of concurrent submissions
// of the same code, exactly one passes `used = false`, the rest get
// domain.ErrUnauthorized.
func (r *ChallengeRepo) Consume(ctx context.Context, userID, attemptID string, now time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 compositeKey("user_id", userID, "attempt_id", attemptID),
		UpdateExpression:    aws.String("SET used = :t"),
		ConditionExpression: aws.String("used = :f AND expires_at > :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   &types.AttributeValueMemberBOOL{Value: true},
			":f":   &types.AttributeValueMemberBOOL{Value: false},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("challenge already used or expired: %w", domain.ErrUnauthorized)
		}
		return err
	}
	return nil
}

func (r *ChallengeRepo) queryNewest(ctx context.Context, userID string, now time.Time, filter string, values map[string]types.AttributeValue) (*domain.MFAChallenge, error) {
	values[":uid"] = &types.AttributeValueMemberS{Value: userID}
	values[":f"] = &types.AttributeValueMemberBOOL{Value: false}
	values[":now"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)}
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String(filter),
		ExpressionAttributeNames: map[string]string{
			"#m": "method", // reserved word in DynamoDB expressions
		},
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("challenge not found: %w", domain.ErrNotFound)
	}
	var c domain.MFAChallenge
	if err := attributevalue.UnmarshalMap(out.Items[0], &c); err != nil {
		return nil, err
	}
	return &c, nil
}
