package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/account-validity/internal/domain"
)

// NoticeRepo provides typed DynamoDB operations for the renewal_notices table.
type NoticeRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewNoticeRepo(client *dynamodb.Client, tableName string) *NoticeRepo {
	return &NoticeRepo{client: client, tableName: tableName}
}

func (r *NoticeRepo) Put(ctx context.Context, n *domain.RenewalNotice) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal renewal notice: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListByAccount queries the account_id-created_at GSI, newest first.
func (r *NoticeRepo) ListByAccount(ctx context.Context, accountID string) ([]domain.RenewalNotice, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("account_id-created_at-index"),
		KeyConditionExpression: aws.String("account_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: accountID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	var notices []domain.RenewalNotice
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notices); err != nil {
		return nil, err
	}
	return notices, nil
}
