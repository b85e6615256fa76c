package dynamo

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/account-validity/internal/domain"
	"github.com/account-validity/internal/infrastructure/cache"
	pkgclock "github.com/account-validity/internal/pkg/clock"
	pkgtoken "github.com/account-validity/internal/pkg/token"
)

// ValidityRepo owns the account_validity table plus the renewal_tokens claim
// table. All exclusivity lives here: conditional writes stand in for the
// uniqueness constraints and row locks a relational store would provide, so
// no caller ever needs in-process locking.
type ValidityRepo struct {
	client     *dynamodb.Client
	table      string
	tokenTable string
	cache      cache.ExpirationCache
	clock      pkgclock.Clock
	period     int64 // validity period in ms, used for default expirations
}

func NewValidityRepo(client *dynamodb.Client, table, tokenTable string, c cache.ExpirationCache, clk pkgclock.Clock, periodMS int64) *ValidityRepo {
	return &ValidityRepo{
		client:     client,
		table:      table,
		tokenTable: tokenTable,
		cache:      c,
		clock:      clk,
		period:     periodMS,
	}
}

// SetValidity inserts or replaces the full validity record for an account and
// drops any cached expiration for it.
func (r *ValidityRepo) SetValidity(ctx context.Context, rec *domain.ValidityRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal validity record: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return err
	}
	r.cache.Invalidate(ctx, rec.AccountID)
	return nil
}

// GetExpiration returns the expiration timestamp for an account, or nil when
// the account has no validity record. Reads go through the expiration cache.
func (r *ValidityRepo) GetExpiration(ctx context.Context, accountID string) (*int64, error) {
	if ts, ok := r.cache.Get(ctx, accountID); ok {
		return &ts, nil
	}
	rec, err := r.get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	r.cache.Set(ctx, accountID, rec.ExpirationTS)
	return &rec.ExpirationTS, nil
}

// SetToken stores tok as the account's current renewal token and clears the
// consumed marker. Link-format tokens are additionally claimed in the token
// table inside the same transaction; a claim collision surfaces as
// domain.ErrTokenConflict for the caller to retry with fresh randomness.
func (r *ValidityRepo) SetToken(ctx context.Context, accountID, tok string) error {
	update := &types.Update{
		TableName:        aws.String(r.table),
		Key:              strKey("account_id", accountID),
		UpdateExpression: aws.String("SET renewal_token = :tok REMOVE token_used_ts_ms"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tok": &types.AttributeValueMemberS{Value: tok},
		},
		ConditionExpression: aws.String("attribute_exists(account_id)"),
	}

	if !pkgtoken.IsLinkFormat(tok) {
		_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 update.TableName,
			Key:                       update.Key,
			UpdateExpression:          update.UpdateExpression,
			ExpressionAttributeValues: update.ExpressionAttributeValues,
			ConditionExpression:       update.ConditionExpression,
		})
		if err != nil {
			if isConditionalCheckFailed(err) {
				return fmt.Errorf("no validity record for %s: %w", accountID, domain.ErrNotFound)
			}
			return err
		}
		return nil
	}

	// Claim rows expire well after the token itself stops mattering; the TTL
	// only keeps the table from accumulating dead claims.
	expiresAt := (r.clock.NowMS() + 2*r.period) / 1000

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName: aws.String(r.tokenTable),
					Item: map[string]types.AttributeValue{
						"token":      &types.AttributeValueMemberS{Value: tok},
						"account_id": &types.AttributeValueMemberS{Value: accountID},
						"expires_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)},
					},
					ConditionExpression: aws.String("attribute_not_exists(#t)"),
					ExpressionAttributeNames: map[string]string{
						"#t": "token",
					},
				},
			},
			{Update: update},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("token %s: %w", tok, domain.ErrTokenConflict)
		}
		return err
	}
	return nil
}

// ResolveToken looks up the account bound to a renewal token. Link tokens
// resolve globally through the claim table; manual tokens can only be looked
// up on the row of an already-identified account. When accountID is non-empty
// the resolved account must match it. A token that is no longer the account's
// current one resolves to domain.ErrNotFound, same as a token never issued.
func (r *ValidityRepo) ResolveToken(ctx context.Context, tok, accountID string) (string, int64, *int64, error) {
	resolved := accountID

	if pkgtoken.IsLinkFormat(tok) {
		out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(r.tokenTable),
			Key:       strKey("token", tok),
		})
		if err != nil {
			return "", 0, nil, err
		}
		if out.Item == nil {
			return "", 0, nil, fmt.Errorf("unknown renewal token: %w", domain.ErrNotFound)
		}
		owner, ok := out.Item["account_id"].(*types.AttributeValueMemberS)
		if !ok {
			return "", 0, nil, fmt.Errorf("token claim missing account: %w", domain.ErrNotFound)
		}
		if accountID != "" && accountID != owner.Value {
			return "", 0, nil, fmt.Errorf("token belongs to another account: %w", domain.ErrNotFound)
		}
		resolved = owner.Value
	}

	if resolved == "" {
		return "", 0, nil, fmt.Errorf("token lookup requires an account: %w", domain.ErrNotFound)
	}

	rec, err := r.get(ctx, resolved)
	if err != nil {
		return "", 0, nil, err
	}
	if rec == nil || rec.RenewalToken != tok {
		return "", 0, nil, fmt.Errorf("token is not current for %s: %w", resolved, domain.ErrNotFound)
	}
	return rec.AccountID, rec.ExpirationTS, rec.TokenUsedTS, nil
}

// ConsumeToken performs the renewal transition for a token-driven renewal as
// one conditional update: it only succeeds while tok is still the account's
// current, never-consumed token. Concurrent consumers of the same token are
// serialized here — exactly one wins, the rest get domain.ErrTokenUsed.
func (r *ValidityRepo) ConsumeToken(ctx context.Context, accountID, tok string, newExpiration, usedTS int64) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key:       strKey("account_id", accountID),
		UpdateExpression: aws.String(
			"SET expiration_ts_ms = :exp, notified = :zero, token_used_ts_ms = :used"),
		ConditionExpression: aws.String(
			"renewal_token = :tok AND attribute_not_exists(token_used_ts_ms)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":exp":  &types.AttributeValueMemberN{Value: strconv.FormatInt(newExpiration, 10)},
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":used": &types.AttributeValueMemberN{Value: strconv.FormatInt(usedTS, 10)},
			":tok":  &types.AttributeValueMemberS{Value: tok},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("token %s for %s: %w", tok, accountID, domain.ErrTokenUsed)
		}
		return err
	}
	r.cache.Invalidate(ctx, accountID)
	return nil
}

// SetNotified flips the notified flag for the current validity period.
func (r *ValidityRepo) SetNotified(ctx context.Context, accountID string, notified bool) error {
	n := 0
	if notified {
		n = 1
	}
	ue, err := buildUpdateExpr(map[string]interface{}{"notified": n})
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       strKey("account_id", accountID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ConditionExpression:       aws.String("attribute_exists(account_id)"),
	})
	if err != nil && isConditionalCheckFailed(err) {
		return fmt.Errorf("no validity record for %s: %w", accountID, domain.ErrNotFound)
	}
	return err
}

// SetDefaultExpiration gives the account a fresh expiration of now + period
// with the notified flag cleared. The write is an unconditional upsert: if a
// record already exists its expiration and notified flag are overwritten.
// Callers relying on "ensure an expiration exists" semantics get exactly the
// same overwrite — do not add a guard here without checking every call site.
func (r *ValidityRepo) SetDefaultExpiration(ctx context.Context, accountID string) (int64, error) {
	expiration := r.clock.NowMS() + r.period
	ue, err := buildUpdateExpr(map[string]interface{}{
		"expiration_ts_ms": expiration,
		"notified":         0,
	})
	if err != nil {
		return 0, err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       strKey("account_id", accountID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		return 0, err
	}
	r.cache.Invalidate(ctx, accountID)
	return expiration, nil
}

// ListExpiringWithin returns every account that has not been notified this
// period and whose expiration is at most windowMS away. Already-expired
// accounts are included (their distance to now is negative). Pages through
// the GSI until exhausted.
func (r *ValidityRepo) ListExpiringWithin(ctx context.Context, windowMS int64) ([]domain.ExpiringAccount, error) {
	cutoff := r.clock.NowMS() + windowMS

	var due []domain.ExpiringAccount
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.table),
			IndexName:              aws.String("notified-expiration-index"),
			KeyConditionExpression: aws.String("notified = :zero AND expiration_ts_ms <= :cutoff"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":zero":   &types.AttributeValueMemberN{Value: "0"},
				":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff, 10)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		var page []domain.ExpiringAccount
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		due = append(due, page...)
		if out.LastEvaluatedKey == nil {
			return due, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// AccountIDPager walks the host account directory one page at a time.
// Implemented by the directory's AccountRepo.
type AccountIDPager interface {
	ListIDsPage(ctx context.Context, limit int32, cursor string) ([]string, string, error)
}

// BootstrapMissing runs one migration pass: it walks the host account
// directory and inserts a validity record for every account that lacks one,
// stopping after batchSize inserts. Each default expiration is pulled back by
// a random offset of up to 10% of the period so a freshly-migrated server
// does not notify everyone at once. Returns the number of records inserted;
// the caller loops until a pass inserts fewer than batchSize.
func (r *ValidityRepo) BootstrapMissing(ctx context.Context, directory AccountIDPager, batchSize int) (int, error) {
	defaultExpiration := r.clock.NowMS() + r.period
	maxDelta := r.period / 10

	inserted := 0
	cursor := ""
	for {
		ids, next, err := directory.ListIDsPage(ctx, int32(batchSize), cursor)
		if err != nil {
			return inserted, err
		}

		for _, accountID := range ids {
			jitter, err := randInt64(maxDelta + 1)
			if err != nil {
				return inserted, err
			}
			ok, err := r.insertIfAbsent(ctx, accountID, defaultExpiration-jitter)
			if err != nil {
				return inserted, err
			}
			if ok {
				inserted++
				if inserted == batchSize {
					return inserted, nil
				}
			}
		}

		if next == "" {
			return inserted, nil
		}
		cursor = next
	}
}

func (r *ValidityRepo) insertIfAbsent(ctx context.Context, accountID string, expiration int64) (bool, error) {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item: map[string]types.AttributeValue{
			"account_id":       &types.AttributeValueMemberS{Value: accountID},
			"expiration_ts_ms": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiration, 10)},
			"notified":         &types.AttributeValueMemberN{Value: "0"},
		},
		ConditionExpression: aws.String("attribute_not_exists(account_id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *ValidityRepo) get(ctx context.Context, accountID string) (*domain.ValidityRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key:       strKey("account_id", accountID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec domain.ValidityRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func randInt64(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
