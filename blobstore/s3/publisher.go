package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/minrec/blobstore"
)

// ErrConcurrentPublish is returned when two publishers race on the same
// base URI and version.
var ErrConcurrentPublish = errors.New("s3: concurrent publish detected")

// DDBClient is the subset of the DynamoDB API used by the Publisher.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Publisher uploads a blob to S3 and then records a commit marker in
// DynamoDB. A run that dies mid-upload leaves no marker, so readers that
// resolve blobs through Latest never observe partial output.
//
// Table schema:
//   - Partition key: base_uri (string)
//   - Sort key: version (number), monotonically increasing
type Publisher struct {
	store     blobstore.Store
	ddbClient DDBClient
	tableName string
	baseURI   string
}

// NewPublisher creates a publisher writing blobs through store and markers
// to the given DynamoDB table. baseURI identifies the publication stream,
// conventionally "s3://bucket/prefix".
func NewPublisher(store blobstore.Store, ddbClient DDBClient, tableName, baseURI string) *Publisher {
	return &Publisher{
		store:     store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Publish uploads the blob under name and commits it as the next version.
// The marker is written only after the upload completed in full.
func (p *Publisher) Publish(ctx context.Context, name string, r io.Reader) (uint64, error) {
	w, err := p.store.Create(ctx, name)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("s3: upload %q: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("s3: upload %q: %w", name, err)
	}

	version, _, err := p.latest(ctx)
	if err != nil {
		return 0, err
	}
	version++

	_, err = p.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.tableName),
		Item: map[string]ddbtypes.AttributeValue{
			"base_uri": &ddbtypes.AttributeValueMemberS{Value: p.baseURI},
			"version":  &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"blob":     &ddbtypes.AttributeValueMemberS{Value: name},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrConcurrentPublish
		}
		return 0, fmt.Errorf("s3: commit marker: %w", err)
	}

	return version, nil
}

// Latest resolves the most recently committed blob. It returns
// blobstore.ErrNotFound when nothing has been published yet.
func (p *Publisher) Latest(ctx context.Context) (uint64, io.ReadCloser, error) {
	version, name, err := p.latest(ctx)
	if err != nil {
		return 0, nil, err
	}
	if version == 0 {
		return 0, nil, blobstore.ErrNotFound
	}

	r, err := p.store.Open(ctx, name)
	if err != nil {
		return 0, nil, err
	}
	return version, r, nil
}

func (p *Publisher) latest(ctx context.Context) (uint64, string, error) {
	resp, err := p.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(p.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":uri": &ddbtypes.AttributeValueMemberS{Value: p.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query commit markers: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: invalid version attribute in marker")
	}
	blobAttr, ok := item["blob"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: invalid blob attribute in marker")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: parse marker version: %w", err)
	}

	return version, blobAttr.Value, nil
}
