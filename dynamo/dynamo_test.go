package dynamo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jacentio/docket/store"
)

const table = "test-db.people"

var collLink = store.CollectionLink("db", "people")

func docLink(id string) string {
	return store.DocumentLink("db", "people", id)
}

func newTestStore(t *testing.T, capacity int64) (*Store, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	api.addTable(table, capacity)
	s := New(api, Options{TablePrefix: "test-", Logger: zaptest.NewLogger(t)})
	return s, api
}

func TestTableName(t *testing.T) {
	s := New(newFakeAPI(), Options{TablePrefix: "app-"})
	assert.Equal(t, "app-db.people", s.TableName("db", "people"))

	db, coll, ok := s.CollectionOf("app-db.people")
	require.True(t, ok)
	assert.Equal(t, "db", db)
	assert.Equal(t, "people", coll)

	_, _, ok = s.CollectionOf("other-db.people")
	assert.False(t, ok)
}

func TestCRUD(t *testing.T) {
	at := time.Unix(1700000000, 0)
	s, _ := newTestStore(t, 400)
	s.opts.Now = func() time.Time { return at }
	ctx := context.Background()

	created, resp, err := s.CreateItem(ctx, collLink, store.Record{"id": "u1", "name": "Ann", "age": 30}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, created.ETag(), resp.ETag)
	assert.Equal(t, "1", resp.Headers[store.HeaderRequestCharge])
	assert.Equal(t, float64(30), created["age"])
	assert.Equal(t, float64(at.Unix()), created[store.FieldTimestamp])
	assert.Equal(t, docLink("u1"), created[store.FieldSelf])

	_, _, err = s.CreateItem(ctx, collLink, store.Record{"id": "u1"}, nil)
	assert.ErrorIs(t, err, store.ErrConflict)

	read, resp, err := s.ReadItem(ctx, docLink("u1"), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created, read)

	replaced, _, err := s.ReplaceItem(ctx, docLink("u1"), store.Record{"id": "u1", "name": "Bea"},
		&store.RequestOptions{IfMatch: created.ETag()})
	require.NoError(t, err)
	assert.NotEqual(t, created.ETag(), replaced.ETag())
	assert.NotContains(t, replaced, "age")

	_, _, err = s.ReplaceItem(ctx, docLink("u1"), store.Record{"id": "u1"},
		&store.RequestOptions{IfMatch: created.ETag()})
	assert.ErrorIs(t, err, store.ErrPreconditionFailed)

	resp, err = s.DeleteItem(ctx, docLink("u1"), &store.RequestOptions{IfMatch: created.ETag()})
	assert.ErrorIs(t, err, store.ErrPreconditionFailed)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	resp, err = s.DeleteItem(ctx, docLink("u1"), &store.RequestOptions{IfMatch: replaced.ETag()})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, resp, err = s.ReadItem(ctx, docLink("u1"), nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReplaceItem_MissingIsNotFound(t *testing.T) {
	s, _ := newTestStore(t, 400)
	ctx := context.Background()

	_, _, err := s.ReplaceItem(ctx, docLink("ghost"), store.Record{"id": "ghost"}, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = s.ReplaceItem(ctx, docLink("ghost"), store.Record{"id": "ghost"}, &store.RequestOptions{IfMatch: `"x"`})
	assert.ErrorIs(t, err, store.ErrNotFound, "a missing item is not a stale etag")
}

func TestDeleteItem_Missing(t *testing.T) {
	s, _ := newTestStore(t, 400)

	_, err := s.DeleteItem(context.Background(), docLink("ghost"), nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertItem(t *testing.T) {
	s, _ := newTestStore(t, 400)
	ctx := context.Background()

	first, resp, err := s.UpsertItem(ctx, collLink, store.Record{"id": "u1", "v": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	_, resp, err = s.UpsertItem(ctx, collLink, store.Record{"id": "u1", "v": 2}, &store.RequestOptions{IfMatch: first.ETag()})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, _, err = s.UpsertItem(ctx, collLink, store.Record{"id": "u1", "v": 3}, &store.RequestOptions{IfMatch: first.ETag()})
	assert.ErrorIs(t, err, store.ErrPreconditionFailed)
}

func TestMissingTable(t *testing.T) {
	s := New(newFakeAPI(), Options{})

	_, _, err := s.ReadItem(context.Background(), docLink("u1"), nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBadLinks(t *testing.T) {
	s, _ := newTestStore(t, 400)
	ctx := context.Background()

	_, _, err := s.ReadItem(ctx, "dbs/db", nil)
	assert.Equal(t, http.StatusBadRequest, store.StatusCode(err))

	_, err = s.QueryItems(ctx, "nope", store.Query{}, nil)
	assert.Equal(t, http.StatusBadRequest, store.StatusCode(err))

	_, err = s.QueryItems(ctx, collLink, store.Query{}, &store.FeedOptions{Continuation: "%%%"})
	assert.Equal(t, http.StatusBadRequest, store.StatusCode(err))
}

func seed(t *testing.T, s *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, _, err := s.CreateItem(context.Background(), collLink, store.Record{
			"id":           fmt.Sprintf("d%d", i),
			"n":            i,
			"partitionKey": fmt.Sprint(i % 2),
		}, nil)
		require.NoError(t, err)
	}
}

func drain(t *testing.T, cur store.Cursor) (ids []string, pages int) {
	t.Helper()
	ctx := context.Background()
	for {
		recs, resp, err := cur.Next(ctx)
		require.NoError(t, err)
		if recs == nil {
			return ids, pages
		}
		pages++
		for _, r := range recs {
			ids = append(ids, r.ID())
		}
		if resp.Continuation == "" {
			return ids, pages
		}
	}
}

func TestQueryItems_Paging(t *testing.T) {
	s, api := newTestStore(t, 400)
	seed(t, s, 5)

	cur, err := s.QueryItems(context.Background(), collLink, store.Query{}, &store.FeedOptions{MaxItemCount: 2})
	require.NoError(t, err)

	ids, pages := drain(t, cur)
	assert.Equal(t, []string{"d0", "d1", "d2", "d3", "d4"}, ids)
	assert.Equal(t, 3, pages)
	assert.Equal(t, 3, api.scans)
}

func TestQueryItems_FilterAndPartition(t *testing.T) {
	s, _ := newTestStore(t, 400)
	seed(t, s, 6)

	cur, err := s.QueryItems(context.Background(), collLink, store.Query{
		Text:       "#n >= :min",
		Names:      map[string]string{"#n": "n"},
		Parameters: map[string]any{":min": 2},
	}, &store.FeedOptions{PartitionKey: "1"})
	require.NoError(t, err)

	ids, _ := drain(t, cur)
	assert.Equal(t, []string{"d3", "d5"}, ids)
}

func TestQueryItems_ResumeFromContinuation(t *testing.T) {
	s, _ := newTestStore(t, 400)
	seed(t, s, 5)
	ctx := context.Background()

	cur, err := s.QueryItems(ctx, collLink, store.Query{}, &store.FeedOptions{MaxItemCount: 3})
	require.NoError(t, err)
	_, resp, err := cur.Next(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Continuation)

	resumed, err := s.QueryItems(ctx, collLink, store.Query{}, &store.FeedOptions{Continuation: resp.Continuation})
	require.NoError(t, err)
	ids, _ := drain(t, resumed)
	assert.Equal(t, []string{"d3", "d4"}, ids)
}

func TestContinuationRoundTrip(t *testing.T) {
	key := map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: "d7"}}

	token, err := EncodeContinuation(key)
	require.NoError(t, err)
	got, err := DecodeContinuation(token)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = DecodeContinuation("e30")
	assert.Error(t, err, "an empty key is not a valid position")
}

func TestOffers(t *testing.T) {
	s, _ := newTestStore(t, 400)
	ctx := context.Background()

	offer, err := s.ReadOfferByCollection(ctx, collLink)
	require.NoError(t, err)
	assert.Equal(t, collLink, offer.Resource)
	require.NotNil(t, offer.Content)
	assert.Equal(t, 400, offer.Content.Throughput)

	_, err = s.ReplaceOffer(ctx, offer.Self, &store.Offer{Content: &store.OfferContent{Throughput: 800}})
	require.NoError(t, err)

	got, err := s.ReadOffer(ctx, offer.Self)
	require.NoError(t, err)
	assert.Equal(t, 800, got.Content.Throughput)
}

func TestOffers_OnDemandHasNoContent(t *testing.T) {
	s, _ := newTestStore(t, 0)

	offer, err := s.ReadOfferByCollection(context.Background(), collLink)
	require.NoError(t, err)
	assert.Nil(t, offer.Content)
}

func TestOffers_RecreatedTableInvalidatesOffer(t *testing.T) {
	s, api := newTestStore(t, 400)
	ctx := context.Background()

	offer, err := s.ReadOfferByCollection(ctx, collLink)
	require.NoError(t, err)

	api.addTable(table, 400)

	_, err = s.ReadOffer(ctx, offer.Self)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.ReplaceOffer(ctx, offer.Self, &store.Offer{Content: &store.OfferContent{Throughput: 500}})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCollections(t *testing.T) {
	api := newFakeAPI()
	s := New(api, Options{TablePrefix: "test-"})
	ctx := context.Background()

	require.NoError(t, s.CreateCollection(ctx, "db", "people", 500))
	err := s.CreateCollection(ctx, "db", "people", 500)
	assert.ErrorIs(t, err, store.ErrConflict)

	offer, err := s.ReadOfferByCollection(ctx, collLink)
	require.NoError(t, err)
	assert.Equal(t, 500, offer.Content.Throughput)

	require.NoError(t, s.DeleteCollection(ctx, "db", "people"))
	_, err = s.ReadOfferByCollection(ctx, collLink)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClient_OverDynamo(t *testing.T) {
	s, api := newTestStore(t, 400)
	cfg := store.DefaultConfig()
	cfg.Database, cfg.Collection = "db", "people"
	cfg.UpdateBackoff, cfg.UpdateBackoffStep = time.Millisecond, 0
	c := store.New(s, cfg)
	ctx := context.Background()

	_, err := c.Create(ctx, store.Entity{"id": "u1", "name": "Ann", "age": 30}, nil)
	require.NoError(t, err)

	// A concurrent writer lands between the first read and write.
	writes := 0
	api.putHook = func() {
		writes++
		if writes == 1 {
			_, _, err := s.UpsertItem(ctx, collLink, store.Record{"id": "u1", "name": "Ann", "age": 29}, nil)
			require.NoError(t, err)
		}
	}
	res, err := c.Update(ctx, store.Entity{"id": "u1", "age": 31}, nil)
	api.putHook = nil
	require.NoError(t, err)
	assert.Equal(t, float64(31), res.Resource["age"])

	v, ok, err := c.Throughput().Increase(ctx, 200, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 600, v)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.ErrorIs(t, mapError(context.Canceled), context.Canceled)

	err := mapError(&types.ProvisionedThroughputExceededException{})
	assert.Equal(t, http.StatusTooManyRequests, store.StatusCode(err))

	err = mapError(errors.New("connection reset"))
	assert.Equal(t, http.StatusServiceUnavailable, store.StatusCode(err))
}
