package dynamo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/docket/internal/filter"
)

type fakeTable struct {
	id       string
	items    map[string]map[string]types.AttributeValue
	capacity int64
}

// fakeAPI is an in-memory stand-in for the DynamoDB operations Store uses.
// It understands only the condition expressions Store sends.
type fakeAPI struct {
	mu     sync.Mutex
	tables map[string]*fakeTable

	scans   int
	putHook func()
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{tables: make(map[string]*fakeTable)}
}

func (f *fakeAPI) addTable(name string, capacity int64) *fakeTable {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTable{id: uuid.NewString(), items: make(map[string]map[string]types.AttributeValue), capacity: capacity}
	f.tables[name] = t
	return t
}

func (f *fakeAPI) table(name *string) (*fakeTable, error) {
	t, ok := f.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	return t, nil
}

func idOf(item map[string]types.AttributeValue) string {
	if s, ok := item["id"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func etagOf(item map[string]types.AttributeValue) string {
	if s, ok := item["_etag"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func check(cond *string, values map[string]types.AttributeValue, old map[string]types.AttributeValue) bool {
	exists := old != nil
	etagMatches := func() bool {
		want, _ := values[":etag"].(*types.AttributeValueMemberS)
		return want != nil && exists && etagOf(old) == want.Value
	}
	switch aws.ToString(cond) {
	case "":
		return true
	case condNotExists:
		return !exists
	case condExists:
		return exists
	case condExistsETag:
		return exists && etagMatches()
	case condNotExistsOrTag:
		return !exists || etagMatches()
	}
	panic("unexpected condition " + aws.ToString(cond))
}

func conditionFailed(rv types.ReturnValuesOnConditionCheckFailure, old map[string]types.AttributeValue) error {
	err := &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	if rv == types.ReturnValuesOnConditionCheckFailureAllOld {
		err.Item = old
	}
	return err
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: t.items[idOf(in.Key)]}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putHook != nil {
		f.putHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	id := idOf(in.Item)
	old := t.items[id]
	if !check(in.ConditionExpression, in.ExpressionAttributeValues, old) {
		return nil, conditionFailed(in.ReturnValuesOnConditionCheckFailure, old)
	}
	t.items[id] = in.Item
	out := &dynamodb.PutItemOutput{
		ConsumedCapacity: &types.ConsumedCapacity{CapacityUnits: aws.Float64(1)},
	}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	id := idOf(in.Key)
	old := t.items[id]
	if !check(in.ConditionExpression, in.ExpressionAttributeValues, old) {
		return nil, conditionFailed(in.ReturnValuesOnConditionCheckFailure, old)
	}
	delete(t.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Scan evaluates at most Limit items in id order, then applies the filter,
// the way DynamoDB applies Limit before FilterExpression.
func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}

	expr, err := filter.Compile(aws.ToString(in.FilterExpression), in.ExpressionAttributeNames)
	if err != nil {
		return nil, fmt.Errorf("ValidationException: %w", err)
	}
	var params map[string]any
	if err := attributevalue.UnmarshalMap(in.ExpressionAttributeValues, &params); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(t.items))
	after := idOf(in.ExclusiveStartKey)
	for id := range t.items {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	limit := len(ids)
	if in.Limit != nil && int(*in.Limit) < limit {
		limit = int(*in.Limit)
	}

	out := &dynamodb.ScanOutput{}
	for _, id := range ids[:limit] {
		var doc map[string]any
		if err := attributevalue.UnmarshalMap(t.items[id], &doc); err != nil {
			return nil, err
		}
		ok, err := expr.Match(doc, params)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Items = append(out.Items, t.items[id])
		}
	}
	if limit < len(ids) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: ids[limit-1]},
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func (f *fakeAPI) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}

	desc := &types.TableDescription{
		TableName:   in.TableName,
		TableId:     aws.String(t.id),
		TableStatus: types.TableStatusActive,
	}
	if t.capacity > 0 {
		desc.BillingModeSummary = &types.BillingModeSummary{BillingMode: types.BillingModeProvisioned}
		desc.ProvisionedThroughput = &types.ProvisionedThroughputDescription{
			ReadCapacityUnits:  aws.Int64(t.capacity),
			WriteCapacityUnits: aws.Int64(t.capacity),
		}
	} else {
		desc.BillingModeSummary = &types.BillingModeSummary{BillingMode: types.BillingModePayPerRequest}
		desc.ProvisionedThroughput = &types.ProvisionedThroughputDescription{
			ReadCapacityUnits:  aws.Int64(0),
			WriteCapacityUnits: aws.Int64(0),
		}
	}
	return &dynamodb.DescribeTableOutput{Table: desc}, nil
}

func (f *fakeAPI) UpdateTable(_ context.Context, in *dynamodb.UpdateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	if in.ProvisionedThroughput != nil {
		t.capacity = aws.ToInt64(in.ProvisionedThroughput.ReadCapacityUnits)
	}
	return &dynamodb.UpdateTableOutput{}, nil
}

func (f *fakeAPI) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	_, exists := f.tables[aws.ToString(in.TableName)]
	f.mu.Unlock()
	if exists {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists")}
	}

	var capacity int64
	if in.ProvisionedThroughput != nil {
		capacity = aws.ToInt64(in.ProvisionedThroughput.ReadCapacityUnits)
	}
	f.addTable(aws.ToString(in.TableName), capacity)
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeAPI) DeleteTable(_ context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.table(in.TableName); err != nil {
		return nil, err
	}
	delete(f.tables, aws.ToString(in.TableName))
	return &dynamodb.DeleteTableOutput{}, nil
}
