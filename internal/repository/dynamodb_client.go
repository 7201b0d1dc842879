package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-relay/internal/domain"
)

const (
	pkPrefixSender = "SENDER#"
	skHint         = "HINT#"
	defaultTTL     = 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client stores session-key hints in a DynamoDB table so that they survive
// Lambda cold starts. The table must have string keys PK and SK and should
// enable TTL on the "ttl" attribute.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// New creates a new repository Client. A non-positive ttl uses 24h.
func New(api dynamodbAPI, tableName string, ttl time.Duration) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Client{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// senderPK returns the partition key for a sender.
func senderPK(sender domain.SenderIdentity) string {
	return pkPrefixSender + string(sender)
}

func hintKey(sender domain.SenderIdentity) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: senderPK(sender)},
		"SK": &types.AttributeValueMemberS{Value: skHint},
	}
}

// Lookup returns the hinted session key for sender. Items past their TTL are
// treated as absent even if DynamoDB has not removed them yet.
func (c *Client) Lookup(ctx context.Context, sender domain.SenderIdentity) (domain.SessionKey, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       hintKey(sender),
	})
	if err != nil {
		return "", false, fmt.Errorf("repository: Lookup get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}

	key, err := strAttr(out.Item, "sessionKey")
	if err != nil {
		return "", false, fmt.Errorf("repository: Lookup decode: %w", err)
	}
	if expires, err := int64Attr(out.Item, "ttl"); err == nil && expires <= c.now().Unix() {
		return "", false, nil
	}
	if key == "" {
		return "", false, nil
	}
	return domain.SessionKey(key), true, nil
}

// Remember records key as the current session for sender.
func (c *Client) Remember(ctx context.Context, sender domain.SenderIdentity, key domain.SessionKey) error {
	if key == "" {
		return errors.New("repository: Remember: session key is required")
	}
	now := c.now().UTC()
	item := hintKey(sender)
	item["sessionKey"] = &types.AttributeValueMemberS{Value: key.String()}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)}
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(c.ttl).Unix(), 10)}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: Remember: %w", err)
	}
	return nil
}

// Forget removes any hint for sender.
func (c *Client) Forget(ctx context.Context, sender domain.SenderIdentity) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       hintKey(sender),
	})
	if err != nil {
		return fmt.Errorf("repository: Forget: %w", err)
	}
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
