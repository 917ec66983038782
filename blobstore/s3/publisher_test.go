package s3

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/minrec/blobstore"
)

// fakeDDB keeps commit markers in memory and enforces the conditional put,
// so the publish/latest protocol can be exercised without AWS.
type fakeDDB struct {
	markers map[uint64]string
	failPut bool
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{markers: make(map[uint64]string)}
}

func (f *fakeDDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	version, err := strconv.ParseUint(params.Item["version"].(*ddbtypes.AttributeValueMemberN).Value, 10, 64)
	if err != nil {
		return nil, err
	}

	if _, exists := f.markers[version]; exists || f.failPut {
		return nil, &ddbtypes.ConditionalCheckFailedException{}
	}

	f.markers[version] = params.Item["blob"].(*ddbtypes.AttributeValueMemberS).Value
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if len(f.markers) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}

	versions := make([]uint64, 0, len(f.markers))
	for v := range f.markers {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	latest := versions[0]
	return &dynamodb.QueryOutput{
		Items: []map[string]ddbtypes.AttributeValue{{
			"version": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(latest, 10)},
			"blob":    &ddbtypes.AttributeValueMemberS{Value: f.markers[latest]},
		}},
	}, nil
}

func TestPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("PublishAssignsIncreasingVersions", func(t *testing.T) {
		ddb := newFakeDDB()
		p := NewPublisher(blobstore.NewMemoryStore(), ddb, "markers", "s3://bucket/recs")

		v1, err := p.Publish(ctx, "run-1", strings.NewReader("first"))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), v1)

		v2, err := p.Publish(ctx, "run-2", strings.NewReader("second"))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), v2)
	})

	t.Run("LatestResolvesNewestBlob", func(t *testing.T) {
		ddb := newFakeDDB()
		p := NewPublisher(blobstore.NewMemoryStore(), ddb, "markers", "s3://bucket/recs")

		_, err := p.Publish(ctx, "run-1", strings.NewReader("first"))
		require.NoError(t, err)
		_, err = p.Publish(ctx, "run-2", strings.NewReader("second"))
		require.NoError(t, err)

		version, r, err := p.Latest(ctx)
		require.NoError(t, err)
		defer r.Close()

		assert.Equal(t, uint64(2), version)

		b, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "second", string(b))
	})

	t.Run("LatestBeforeAnyPublish", func(t *testing.T) {
		p := NewPublisher(blobstore.NewMemoryStore(), newFakeDDB(), "markers", "s3://bucket/recs")

		_, _, err := p.Latest(ctx)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("ConcurrentPublish", func(t *testing.T) {
		ddb := newFakeDDB()
		p := NewPublisher(blobstore.NewMemoryStore(), ddb, "markers", "s3://bucket/recs")

		_, err := p.Publish(ctx, "run-1", strings.NewReader("first"))
		require.NoError(t, err)

		// A racing publisher took the next version between our query and put.
		ddb.failPut = true
		_, err = p.Publish(ctx, "run-2", strings.NewReader("second"))
		assert.ErrorIs(t, err, ErrConcurrentPublish)
	})
}
