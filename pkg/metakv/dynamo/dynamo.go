// Package dynamo implements component A's DynamoDB backend: a two-table
// layout (file_list, meta), both keyed (PK=org, SK=key), per spec.md
// §6.4. DynamoDB has no native change-feed this package wires up, so
// Watch and Transaction return the backend's documented "not every
// backend must implement this" escape hatches.
package dynamo

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cuemby/ingestord/pkg/metakv"
)

// Store is the DynamoDB-backed metakv.Store. splitOrg extracts the
// partition key from a "/{module}/{org}/..." key; every key this
// package is asked to store must carry an org as its first segment.
type Store struct {
	client *dynamodb.Client
	table  string
}

// Open wraps an already-configured dynamodb.Client. table is the meta
// table name (the sibling file_list table is owned by component D/E,
// not this package).
func Open(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

func (s *Store) Close() error { return nil }

func splitOrg(key string) (org, rest string, err error) {
	trimmed := strings.TrimPrefix(key, "/")
	idx := strings.Index(trimmed, "/")
	if idx < 0 {
		return "", "", fmt.Errorf("metakv key %q has no org segment", key)
	}
	// org is the module's first path segment after it, i.e. the second
	// overall segment: /{module}/{org}/...
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("metakv key %q has no org segment", key)
	}
	return parts[1], key, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	org, sk, err := splitOrg(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: org},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	if out.Item == nil {
		return nil, metakv.ErrNotFound
	}
	v, ok := out.Item["value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("get %q: malformed value attribute", key)
	}
	return v.Value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, needWatch bool) error {
	org, sk, err := splitOrg(key)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"PK":    &types.AttributeValueMemberS{Value: org},
			"SK":    &types.AttributeValueMemberS{Value: sk},
			"value": &types.AttributeValueMemberB{Value: value},
		},
	})
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	// DynamoDB has no built-in watch fan-out; needWatch callers on this
	// backend must rely on pkg/coordinator's NATS relay for cross-node
	// notification instead.
	return nil
}

func (s *Store) Delete(ctx context.Context, key string, withPrefix, needWatch bool) error {
	if !withPrefix {
		org, sk, err := splitOrg(key)
		if err != nil {
			return err
		}
		_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: org},
				"SK": &types.AttributeValueMemberS{Value: sk},
			},
		})
		if err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
		return nil
	}

	keys, err := s.ListKeys(ctx, key)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k, false, needWatch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) query(ctx context.Context, prefix string) ([]map[string]types.AttributeValue, error) {
	org, skPrefix, err := splitOrg(prefix)
	if err != nil {
		return nil, err
	}

	keyCond := expression.Key("PK").Equal(expression.Value(org)).
		And(expression.Key("SK").BeginsWith(skPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build query for %q: %w", prefix, err)
	}

	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", prefix, err)
		}
		items = append(items, out.Items...)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return items, nil
}

func (s *Store) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	items, err := s.query(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := map[string][]byte{}
	for _, item := range items {
		sk, _ := item["SK"].(*types.AttributeValueMemberS)
		v, _ := item["value"].(*types.AttributeValueMemberB)
		if sk == nil || v == nil {
			continue
		}
		out[sk.Value] = v.Value
	}
	return out, nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	m, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) ListValues(ctx context.Context, prefix string) ([][]byte, error) {
	m, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	values := make([][]byte, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	return values, nil
}

func (s *Store) Count(ctx context.Context, prefix string) (int64, error) {
	items, err := s.query(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

func (s *Store) Watch(ctx context.Context, prefix string) (<-chan metakv.Event, error) {
	return nil, metakv.ErrWatchUnsupported
}

func (s *Store) Transaction(ctx context.Context, checkKey string, andOps, elseOps []metakv.Op) error {
	return metakv.ErrTransactionUnsupported
}
