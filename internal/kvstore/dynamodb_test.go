package kvstore

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// fakeDynamo keeps items in a map keyed by the "key" attribute.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
	err   error
	gets  []*dynamodb.GetItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["key"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.gets = append(f.gets, in)
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoDBKVStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	newStore := func() (*DynamoDBKVStore, *fakeDynamo) {
		fake := newFakeDynamo()
		store := newDynamoDBKVStore(fake, "targets")
		store.now = func() time.Time { return now }
		return store, fake
	}

	t.Run("set and get", func(t *testing.T) {
		store, fake := newStore()
		require.NoError(t, store.Set(ctx, "docbridge:targets:posts", []byte(`{"read_target":"pg"}`), 0))

		item := fake.items["docbridge:targets:posts"]
		require.NotNil(t, item)
		_, hasTTL := item["ttl"]
		assert.False(t, hasTTL)

		got, err := store.Get(ctx, "docbridge:targets:posts")
		require.NoError(t, err)
		assert.JSONEq(t, `{"read_target":"pg"}`, string(got))
		assert.Equal(t, "targets", aws.ToString(fake.gets[0].TableName))
		assert.True(t, aws.ToBool(fake.gets[0].ConsistentRead))
	})

	t.Run("ttl attribute", func(t *testing.T) {
		store, fake := newStore()
		require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Hour))

		ttl := fake.items["k"]["ttl"].(*types.AttributeValueMemberN)
		assert.Equal(t, strconv.FormatInt(now.Add(time.Hour).Unix(), 10), ttl.Value)
	})

	t.Run("expired item is missing", func(t *testing.T) {
		store, fake := newStore()
		fake.items["k"] = map[string]types.AttributeValue{
			"key":   &types.AttributeValueMemberS{Value: "k"},
			"value": &types.AttributeValueMemberB{Value: []byte("v")},
			"ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(-time.Second).Unix(), 10)},
		}

		_, err := store.Get(ctx, "k")
		assert.ErrorIs(t, err, core.ErrKeyNotFound)

		exists, err := store.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("missing key", func(t *testing.T) {
		store, _ := newStore()
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, core.ErrKeyNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		store, fake := newStore()
		require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
		require.NoError(t, store.Delete(ctx, "k"))
		assert.Empty(t, fake.items)
	})

	t.Run("client error", func(t *testing.T) {
		store, fake := newStore()
		boom := errors.New("throttled")
		fake.err = boom

		_, err := store.Get(ctx, "k")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, core.ErrKeyNotFound)
		assert.ErrorIs(t, store.Set(ctx, "k", nil, 0), boom)
	})

	t.Run("closed", func(t *testing.T) {
		store, _ := newStore()
		require.NoError(t, store.Close())
		_, err := store.Get(ctx, "k")
		assert.ErrorIs(t, err, core.ErrStoreClosed)
	})
}
