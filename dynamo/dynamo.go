// Package dynamo implements a store.Connector on Amazon DynamoDB.
//
// Each collection is a table keyed by the string attribute "id"; each
// document is an item. Etag preconditions become condition expressions,
// queries become filtered scans, and a collection's offer is the table's
// provisioned throughput. On-demand tables report an offer without content.
package dynamo

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	smithy "github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jacentio/docket/internal/connerr"
	"github.com/jacentio/docket/internal/rid"
	"github.com/jacentio/docket/store"
)

// Condition expressions used for preconditioned writes.
const (
	condNotExists      = "attribute_not_exists(id)"
	condExists         = "attribute_exists(id)"
	condExistsETag     = "attribute_exists(id) AND #etag = :etag"
	condNotExistsOrTag = "attribute_not_exists(id) OR #etag = :etag"
)

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTable(ctx context.Context, params *dynamodb.UpdateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Options configures a Store.
type Options struct {
	// TablePrefix is prepended to "{database}.{collection}" to form table names.
	TablePrefix string

	// PartitionKeyAttr is the attribute partition-scoped queries filter on.
	// Default: "partitionKey"
	PartitionKeyAttr string

	// Logger receives debug output. Default: no logging.
	Logger *zap.Logger

	// Now overrides the clock used for _ts stamps.
	Now func() time.Time
}

// Store is a DynamoDB-backed document store.
type Store struct {
	api    API
	opts   Options
	logger *zap.Logger
}

var _ store.Connector = (*Store)(nil)

// New creates a Store over api.
func New(api API, opts Options) *Store {
	if opts.PartitionKeyAttr == "" {
		opts.PartitionKeyAttr = "partitionKey"
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{api: api, opts: opts, logger: logger}
}

// NewFromConfig builds a DynamoDB client from cfg's region, endpoint,
// credentials and TLS settings, and returns a Store over it.
func NewFromConfig(ctx context.Context, cfg store.Config, logger *zap.Logger) (*Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.DisableSSLVerification {
		client := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			if tr.TLSClientConfig == nil {
				tr.TLSClientConfig = &tls.Config{}
			}
			tr.TLSClientConfig.InsecureSkipVerify = true
		})
		loadOpts = append(loadOpts, config.WithHTTPClient(client))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return New(client, Options{
		TablePrefix:      cfg.TablePrefix,
		PartitionKeyAttr: cfg.PartitionKeyAttr,
		Logger:           logger,
	}), nil
}

// TableName returns the table that holds a collection.
func (s *Store) TableName(database, collection string) string {
	return s.opts.TablePrefix + database + "." + collection
}

// CollectionOf reverses TableName. It reports false for tables outside the prefix.
func (s *Store) CollectionOf(table string) (database, collection string, ok bool) {
	rest, ok := strings.CutPrefix(table, s.opts.TablePrefix)
	if !ok {
		return "", "", false
	}
	database, collection, ok = strings.Cut(rest, ".")
	return database, collection, ok && database != "" && collection != ""
}

func (s *Store) tableOf(collectionLink string) (table, database, collection string, err error) {
	database, collection, err = store.ParseCollectionLink(collectionLink)
	if err != nil {
		return "", "", "", connerr.BadRequest("%v", err)
	}
	return s.TableName(database, collection), database, collection, nil
}

// CreateCollection creates the collection's table and waits for it to
// become active. Zero throughput creates an on-demand table.
func (s *Store) CreateCollection(ctx context.Context, database, name string, throughput int) error {
	table := s.TableName(database, name)
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(store.FieldID), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(store.FieldID), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
	if throughput > 0 {
		input.BillingMode = types.BillingModeProvisioned
		input.ProvisionedThroughput = capacity(throughput)
	}
	if _, err := s.api.CreateTable(ctx, input); err != nil {
		return mapError(err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", table, err)
	}
	s.logger.Info("collection table created",
		zap.String("table", table),
		zap.Int("throughput", throughput))
	return nil
}

// DeleteCollection deletes the collection's table.
func (s *Store) DeleteCollection(ctx context.Context, database, name string) error {
	_, err := s.api.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(s.TableName(database, name)),
	})
	return mapError(err)
}

func capacity(throughput int) *types.ProvisionedThroughput {
	return &types.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(int64(throughput)),
		WriteCapacityUnits: aws.Int64(int64(throughput)),
	}
}

func (s *Store) stamp(database, collection string, doc store.Record) store.Record {
	out := store.StripMetadata(store.Entity(doc))
	id := out.ID()
	out[store.FieldRID] = rid.Document(database, collection, id)
	out[store.FieldSelf] = store.DocumentLink(database, collection, id)
	out[store.FieldETag] = `"` + uuid.NewString() + `"`
	out[store.FieldAttachments] = "attachments/"
	out[store.FieldTimestamp] = s.opts.Now().Unix()
	return out
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		store.FieldID: &types.AttributeValueMemberS{Value: id},
	}
}

func decode(item map[string]types.AttributeValue) (store.Record, error) {
	var rec store.Record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, connerr.Wrap(http.StatusInternalServerError, "InternalServerError", err)
	}
	return rec, nil
}

func response(status int, rec store.Record, consumed *types.ConsumedCapacity) *store.Response {
	resp := &store.Response{
		StatusCode: status,
		Headers:    store.Headers{},
	}
	if consumed != nil && consumed.CapacityUnits != nil {
		resp.Headers[store.HeaderRequestCharge] = fmt.Sprint(*consumed.CapacityUnits)
	}
	if rec != nil {
		resp.ETag = rec.ETag()
		resp.Headers[store.HeaderETag] = resp.ETag
	}
	return resp
}

func statusOf(err error) *store.Response {
	if code := store.StatusCode(err); code != 0 {
		return &store.Response{StatusCode: code}
	}
	return nil
}

// ReadItem implements store.Connector.
func (s *Store) ReadItem(ctx context.Context, link string, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	database, collection, id, err := store.ParseDocumentLink(link)
	if err != nil {
		return nil, nil, connerr.BadRequest("%v", err)
	}

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:              aws.String(s.TableName(database, collection)),
		Key:                    key(id),
		ConsistentRead:         aws.Bool(true),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		err = mapError(err)
		return nil, statusOf(err), err
	}
	if out.Item == nil {
		return nil, &store.Response{StatusCode: http.StatusNotFound}, connerr.NotFound()
	}

	rec, err := decode(out.Item)
	if err != nil {
		return nil, nil, err
	}
	if opts != nil && opts.IfNoneMatch != "" && opts.IfNoneMatch == rec.ETag() {
		return nil, response(http.StatusNotModified, rec, out.ConsumedCapacity), nil
	}
	return rec, response(http.StatusOK, rec, out.ConsumedCapacity), nil
}

// CreateItem implements store.Connector.
func (s *Store) CreateItem(ctx context.Context, collectionLink string, doc store.Record, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	return s.put(ctx, collectionLink, doc, putSpec{
		condition: condNotExists,
		onFailed: func(map[string]types.AttributeValue) error {
			return connerr.Conflict()
		},
		status: func(bool) int { return http.StatusCreated },
	})
}

// ReplaceItem implements store.Connector.
func (s *Store) ReplaceItem(ctx context.Context, link string, doc store.Record, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	database, collection, id, err := store.ParseDocumentLink(link)
	if err != nil {
		return nil, nil, connerr.BadRequest("%v", err)
	}
	if doc.ID() != "" && doc.ID() != id {
		return nil, nil, connerr.BadRequest("The id in the body doesn't match the id in the link")
	}

	spec := putSpec{
		condition: condExists,
		onFailed:  notFoundOrStale,
		status:    func(bool) int { return http.StatusOK },
	}
	if opts != nil && opts.IfMatch != "" {
		spec.condition, spec.etag = condExistsETag, opts.IfMatch
	}
	return s.put(ctx, store.CollectionLink(database, collection), doc, spec)
}

// UpsertItem implements store.Connector.
func (s *Store) UpsertItem(ctx context.Context, collectionLink string, doc store.Record, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	spec := putSpec{
		status: func(existed bool) int {
			if existed {
				return http.StatusOK
			}
			return http.StatusCreated
		},
	}
	if opts != nil && opts.IfMatch != "" {
		spec.condition, spec.etag = condNotExistsOrTag, opts.IfMatch
		spec.onFailed = func(map[string]types.AttributeValue) error {
			return connerr.PreconditionFailed()
		}
	}
	return s.put(ctx, collectionLink, doc, spec)
}

type putSpec struct {
	condition string
	etag      string
	onFailed  func(old map[string]types.AttributeValue) error
	status    func(existed bool) int
}

// notFoundOrStale tells a missing item from a stale etag by the old item
// returned with the failed condition.
func notFoundOrStale(old map[string]types.AttributeValue) error {
	if len(old) == 0 {
		return connerr.NotFound()
	}
	return connerr.PreconditionFailed()
}

func (s *Store) put(ctx context.Context, collectionLink string, doc store.Record, spec putSpec) (store.Record, *store.Response, error) {
	if doc.ID() == "" {
		return nil, nil, connerr.MissingID()
	}
	table, database, collection, err := s.tableOf(collectionLink)
	if err != nil {
		return nil, nil, err
	}

	stored := s.stamp(database, collection, doc)
	item, err := attributevalue.MarshalMap(map[string]any(stored))
	if err != nil {
		return nil, nil, connerr.BadRequest("The input content is invalid: %v", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:              aws.String(table),
		Item:                   item,
		ReturnValues:           types.ReturnValueAllOld,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}
	if spec.condition != "" {
		input.ConditionExpression = aws.String(spec.condition)
		input.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	}
	if spec.etag != "" {
		input.ExpressionAttributeNames = map[string]string{"#etag": store.FieldETag}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":etag": &types.AttributeValueMemberS{Value: spec.etag},
		}
	}

	out, err := s.api.PutItem(ctx, input)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) && spec.onFailed != nil {
			err = spec.onFailed(condErr.Item)
		} else {
			err = mapError(err)
		}
		return nil, statusOf(err), err
	}

	rec, err := decode(item)
	if err != nil {
		return nil, nil, err
	}
	return rec, response(spec.status(len(out.Attributes) > 0), rec, out.ConsumedCapacity), nil
}

// DeleteItem implements store.Connector.
func (s *Store) DeleteItem(ctx context.Context, link string, opts *store.RequestOptions) (*store.Response, error) {
	database, collection, id, err := store.ParseDocumentLink(link)
	if err != nil {
		return nil, connerr.BadRequest("%v", err)
	}

	input := &dynamodb.DeleteItemInput{
		TableName:                           aws.String(s.TableName(database, collection)),
		Key:                                 key(id),
		ConditionExpression:                 aws.String(condExists),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		ReturnConsumedCapacity:              types.ReturnConsumedCapacityTotal,
	}
	if opts != nil && opts.IfMatch != "" {
		input.ConditionExpression = aws.String(condExistsETag)
		input.ExpressionAttributeNames = map[string]string{"#etag": store.FieldETag}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":etag": &types.AttributeValueMemberS{Value: opts.IfMatch},
		}
	}

	out, err := s.api.DeleteItem(ctx, input)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			err = notFoundOrStale(condErr.Item)
		} else {
			err = mapError(err)
		}
		return statusOf(err), err
	}
	return response(http.StatusNoContent, nil, out.ConsumedCapacity), nil
}

// QueryItems implements store.Connector. Query text is sent as the scan's
// filter expression; MaxItemCount bounds the items evaluated per page.
func (s *Store) QueryItems(ctx context.Context, collectionLink string, query store.Query, opts *store.FeedOptions) (store.Cursor, error) {
	table, _, _, err := s.tableOf(collectionLink)
	if err != nil {
		return nil, err
	}

	input := &dynamodb.ScanInput{
		TableName:              aws.String(table),
		ConsistentRead:         aws.Bool(true),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}

	var clauses []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if text := strings.TrimSpace(query.Text); text != "" {
		clauses = append(clauses, "("+text+")")
		for k, v := range query.Names {
			names[k] = v
		}
		for k, v := range query.Parameters {
			av, err := attributevalue.Marshal(v)
			if err != nil {
				return nil, connerr.BadRequest("invalid parameter %s: %v", k, err)
			}
			values[k] = av
		}
	}
	if opts != nil && opts.PartitionKey != "" {
		clauses = append(clauses, "#docket_pk = :docket_pk")
		names["#docket_pk"] = s.opts.PartitionKeyAttr
		values[":docket_pk"] = &types.AttributeValueMemberS{Value: opts.PartitionKey}
	}
	if len(clauses) > 0 {
		input.FilterExpression = aws.String(strings.Join(clauses, " AND "))
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}
	if len(values) > 0 {
		input.ExpressionAttributeValues = values
	}

	if opts != nil {
		if opts.MaxItemCount > 0 {
			input.Limit = aws.Int32(int32(opts.MaxItemCount))
		}
		if opts.Continuation != "" {
			startKey, err := DecodeContinuation(opts.Continuation)
			if err != nil {
				return nil, connerr.BadRequest("Invalid continuation token")
			}
			input.ExclusiveStartKey = startKey
		}
	}
	return &cursor{store: s, input: input}, nil
}

type cursor struct {
	store *Store
	input *dynamodb.ScanInput
	done  bool
}

func (c *cursor) Next(ctx context.Context) ([]store.Record, *store.Response, error) {
	if c.done {
		return nil, nil, nil
	}

	out, err := c.store.api.Scan(ctx, c.input)
	if err != nil {
		err = mapError(err)
		return nil, statusOf(err), err
	}

	page := make([]store.Record, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := decode(item)
		if err != nil {
			return nil, nil, err
		}
		page = append(page, rec)
	}

	resp := response(http.StatusOK, nil, out.ConsumedCapacity)
	resp.Headers[store.HeaderItemCount] = fmt.Sprint(len(page))
	if len(out.LastEvaluatedKey) > 0 {
		token, err := EncodeContinuation(out.LastEvaluatedKey)
		if err != nil {
			return nil, nil, connerr.Wrap(http.StatusInternalServerError, "InternalServerError", err)
		}
		c.input.ExclusiveStartKey = out.LastEvaluatedKey
		resp.Continuation = token
		resp.Headers[store.HeaderContinuation] = token
	} else {
		c.done = true
	}
	c.store.logger.Debug("scan page",
		zap.String("table", aws.ToString(c.input.TableName)),
		zap.Int("items", len(page)),
		zap.Bool("more", !c.done))
	return page, resp, nil
}

// EncodeContinuation encodes a scan's last evaluated key as an opaque token.
func EncodeContinuation(lastKey map[string]types.AttributeValue) (string, error) {
	var plain map[string]any
	if err := attributevalue.UnmarshalMap(lastKey, &plain); err != nil {
		return "", err
	}
	data, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeContinuation decodes a token produced by EncodeContinuation.
func DecodeContinuation(token string) (map[string]types.AttributeValue, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var plain map[string]any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, err
	}
	if len(plain) == 0 {
		return nil, errors.New("empty continuation key")
	}
	return attributevalue.MarshalMap(plain)
}

// Offer ids join the table name and the table's id, so a recreated table
// gets a new offer.
func offerID(table, tableID string) string {
	return table + "@" + tableID
}

func (s *Store) describe(ctx context.Context, table string) (*types.TableDescription, error) {
	out, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err != nil {
		return nil, mapError(err)
	}
	if out.Table == nil {
		return nil, connerr.New(http.StatusNotFound, "NotFound", "Table %s does not exist", table)
	}
	return out.Table, nil
}

func (s *Store) offerOf(desc *types.TableDescription) (*store.Offer, error) {
	table := aws.ToString(desc.TableName)
	database, collection, ok := s.CollectionOf(table)
	if !ok {
		return nil, connerr.New(http.StatusNotFound, "NotFound", "Table %s holds no collection", table)
	}

	id := offerID(table, aws.ToString(desc.TableId))
	offer := &store.Offer{
		ID:       id,
		Self:     store.OfferLink(id),
		Resource: store.CollectionLink(database, collection),
	}
	onDemand := desc.BillingModeSummary != nil && desc.BillingModeSummary.BillingMode == types.BillingModePayPerRequest
	if !onDemand && desc.ProvisionedThroughput != nil && desc.ProvisionedThroughput.ReadCapacityUnits != nil {
		if units := int(*desc.ProvisionedThroughput.ReadCapacityUnits); units > 0 {
			offer.Content = &store.OfferContent{Throughput: units}
		}
	}
	return offer, nil
}

// ReadOfferByCollection implements store.Connector.
func (s *Store) ReadOfferByCollection(ctx context.Context, collectionLink string) (*store.Offer, error) {
	table, _, _, err := s.tableOf(collectionLink)
	if err != nil {
		return nil, err
	}
	desc, err := s.describe(ctx, table)
	if err != nil {
		return nil, err
	}
	return s.offerOf(desc)
}

// offerTable resolves an offer link to the live table it names, or a 404
// when the table is gone or was recreated.
func (s *Store) offerTable(ctx context.Context, offerLink string) (*types.TableDescription, error) {
	id, err := store.ParseOfferLink(offerLink)
	if err != nil {
		return nil, connerr.BadRequest("%v", err)
	}
	table, tableID, ok := strings.Cut(id, "@")
	if !ok {
		return nil, connerr.BadRequest("malformed offer id %q", id)
	}
	desc, err := s.describe(ctx, table)
	if err != nil {
		return nil, err
	}
	if aws.ToString(desc.TableId) != tableID {
		return nil, connerr.New(http.StatusNotFound, "NotFound", "Offer %s does not exist", offerLink)
	}
	return desc, nil
}

// ReadOffer implements store.Connector.
func (s *Store) ReadOffer(ctx context.Context, offerLink string) (*store.Offer, error) {
	desc, err := s.offerTable(ctx, offerLink)
	if err != nil {
		return nil, err
	}
	return s.offerOf(desc)
}

// ReplaceOffer implements store.Connector. It sets both read and write
// capacity to the offer's throughput.
func (s *Store) ReplaceOffer(ctx context.Context, offerLink string, offer *store.Offer) (*store.Response, error) {
	if offer == nil || offer.Content == nil {
		return nil, connerr.BadRequest("Offer content is required")
	}
	desc, err := s.offerTable(ctx, offerLink)
	if err != nil {
		return statusOf(err), err
	}

	_, err = s.api.UpdateTable(ctx, &dynamodb.UpdateTableInput{
		TableName:             desc.TableName,
		BillingMode:           types.BillingModeProvisioned,
		ProvisionedThroughput: capacity(offer.Content.Throughput),
	})
	if err != nil {
		err = mapError(err)
		return statusOf(err), err
	}
	s.logger.Debug("table capacity updated",
		zap.String("table", aws.ToString(desc.TableName)),
		zap.Int("throughput", offer.Content.Throughput))
	return &store.Response{StatusCode: http.StatusOK}, nil
}

// mapError converts SDK failures into connector errors. Context errors
// pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return connerr.New(http.StatusNotFound, "NotFound", "%s", notFound.ErrorMessage())
	}
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return connerr.New(http.StatusConflict, "Conflict", "%s", inUse.ErrorMessage())
	}
	var throttled *types.ProvisionedThroughputExceededException
	var limited *types.RequestLimitExceeded
	if errors.As(err, &throttled) || errors.As(err, &limited) {
		return &store.ConnectorError{StatusCode: http.StatusTooManyRequests, Code: "TooManyRequests", Message: err.Error(), Err: err}
	}

	status := http.StatusServiceUnavailable
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() != 0 {
		status = respErr.HTTPStatusCode()
	}
	code := "ServiceUnavailable"
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
		if apiErr.ErrorFault() == smithy.FaultClient && status >= 500 {
			status = http.StatusBadRequest
		}
	}
	return &store.ConnectorError{StatusCode: status, Code: code, Message: err.Error(), Err: err}
}
