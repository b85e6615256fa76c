package dynamo

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/account-validity/internal/domain"
)

// AccountRepo reads the host application's account directory. This service
// never mutates it; accounts, their addresses and display names are owned by
// the host.
type AccountRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewAccountRepo(client *dynamodb.Client, tableName string) *AccountRepo {
	return &AccountRepo{client: client, tableName: tableName}
}

func (r *AccountRepo) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("account_id", accountID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListIDsPage returns a page of enabled account ids.
// cursor is a base64-encoded account_id used as ExclusiveStartKey.
// Returns the ids, a next cursor (empty string when no more pages), and any error.
func (r *AccountRepo) ListIDsPage(ctx context.Context, limit int32, cursor string) ([]string, string, error) {
	// "enable" is a DynamoDB reserved word, hence the name alias.
	input := &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		ProjectionExpression:     aws.String("account_id"),
		FilterExpression:         aws.String("#e = :one"),
		ExpressionAttributeNames: map[string]string{"#e": "enable"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		Limit: aws.Int32(limit),
	}
	if cursor != "" {
		accountID, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", domain.ErrBadRequest)
		}
		input.ExclusiveStartKey = strKey("account_id", accountID)
	}
	out, err := r.client.Scan(ctx, input)
	if err != nil {
		return nil, "", err
	}

	ids := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		if v, ok := item["account_id"].(*types.AttributeValueMemberS); ok {
			ids = append(ids, v.Value)
		}
	}
	nextCursor := ""
	if v, ok := out.LastEvaluatedKey["account_id"].(*types.AttributeValueMemberS); ok {
		nextCursor = encodeCursor(v.Value)
	}
	return ids, nextCursor, nil
}

func encodeCursor(accountID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(accountID))
}

func decodeCursor(cursor string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
