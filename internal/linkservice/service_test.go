package linkservice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/linkpage/internal/apperr"
	"github.com/starford/linkpage/internal/checksum"
	"github.com/starford/linkpage/internal/models"
	"github.com/starford/linkpage/internal/ordering"
	"github.com/starford/linkpage/internal/store"
	"github.com/starford/linkpage/internal/testutil"
)

var (
	alice = models.Actor{ID: "alice"}
	bob   = models.Actor{ID: "bob"}
)

type recordedEvent struct {
	owner string
	kind  string
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) PublishLinkEvent(ownerID, kind string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{owner: ownerID, kind: kind})
}

func newService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewService(testutil.TestDB(t), WithPublisher(rec)), rec
}

func createN(t *testing.T, svc *Service, actor models.Actor, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		l, err := svc.Create(context.Background(), actor, json.RawMessage(`{"title":"link"}`))
		require.NoError(t, err)
		ids[i] = l.ID
	}
	return ids
}

func ordersOf(t *testing.T, svc *Service, actor models.Actor) map[string]int {
	t.Helper()
	links, err := svc.List(context.Background(), actor)
	require.NoError(t, err)
	out := make(map[string]int, len(links))
	for _, l := range links {
		out[l.ID] = l.Order
	}
	return out
}

func requireDense(t *testing.T, svc *Service, actor models.Actor) {
	t.Helper()
	links, err := svc.List(context.Background(), actor)
	require.NoError(t, err)
	require.True(t, ordering.Dense(links), "orders not dense: %+v", links)
}

func TestCreate_AppendOrder(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, alice, json.RawMessage(`{"title":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Order)
	assert.Equal(t, "alice", first.OwnerID)

	createN(t, svc, alice, 2)
	fourth, err := svc.Create(ctx, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, fourth.Order)
	assert.JSONEq(t, `{}`, string(fourth.Attributes))

	// Bob's partition starts at 1 regardless of Alice's.
	other, err := svc.Create(ctx, bob, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, other.Order)

	assert.Len(t, rec.events, 5)
	assert.Equal(t, EventCreated, rec.events[0].kind)
}

func TestCreate_InvalidAttributes(t *testing.T) {
	svc, _ := newService(t)
	for _, raw := range []string{`[1,2]`, `"text"`, `null`, `{bad`} {
		_, err := svc.Create(context.Background(), alice, json.RawMessage(raw))
		assert.ErrorIs(t, err, apperr.ErrValidation, raw)
	}
}

func TestCreate_Unauthenticated(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), models.Actor{}, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestCreate_ConcurrentSameOwner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Create(ctx, alice, json.RawMessage(`{}`)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent create: %v", err)
	}

	links, err := svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, links, 10)
	requireDense(t, svc, alice)
}

func TestList_OwnershipIsolation(t *testing.T) {
	svc, _ := newService(t)
	createN(t, svc, alice, 2)
	bobIDs := createN(t, svc, bob, 3)

	links, err := svc.List(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, l := range links {
		assert.Equal(t, "alice", l.OwnerID)
		assert.NotContains(t, bobIDs, l.ID)
	}
}

func TestList_Idempotent(t *testing.T) {
	svc, _ := newService(t)
	createN(t, svc, alice, 3)

	first, sum1, err := svc.ListChecksum(context.Background(), alice)
	require.NoError(t, err)
	second, sum2, err := svc.ListChecksum(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, sum1, sum2)
}

func TestGet(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	ids := createN(t, svc, alice, 1)

	l, err := svc.Get(ctx, alice, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], l.ID)

	_, err = svc.Get(ctx, bob, ids[0])
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = svc.Get(ctx, bob, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReorder(t *testing.T) {
	svc, rec := newService(t)
	ids := createN(t, svc, alice, 3)
	x, y, z := ids[0], ids[1], ids[2]

	links, err := svc.Reorder(context.Background(), alice, []string{z, x, y})
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, z, links[0].ID)

	assert.Equal(t, map[string]int{z: 1, x: 2, y: 3}, ordersOf(t, svc, alice))
	assert.Equal(t, EventReordered, rec.events[len(rec.events)-1].kind)
}

func TestReorder_ForeignIDLeavesOrdersUnchanged(t *testing.T) {
	svc, _ := newService(t)
	ids := createN(t, svc, alice, 3)
	bobIDs := createN(t, svc, bob, 1)
	before := ordersOf(t, svc, alice)

	_, err := svc.Reorder(context.Background(), alice, []string{ids[2], ids[0], bobIDs[0], ids[1]})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, before, ordersOf(t, svc, alice))
	assert.Equal(t, map[string]int{bobIDs[0]: 1}, ordersOf(t, svc, bob))
}

func TestReorder_Validation(t *testing.T) {
	svc, _ := newService(t)
	ids := createN(t, svc, alice, 2)

	_, err := svc.Reorder(context.Background(), alice, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Reorder(context.Background(), alice, []string{ids[0], ids[0]})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Reorder(context.Background(), alice, []string{ids[1]})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdateAttributes(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	ids := createN(t, svc, alice, 2)

	l, err := svc.UpdateAttributes(ctx, alice, ids[1], json.RawMessage(`{"title":"new"}`), "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"new"}`, string(l.Attributes))
	assert.Equal(t, 2, l.Order)

	_, err = svc.UpdateAttributes(ctx, bob, ids[1], json.RawMessage(`{"title":"hijack"}`), "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = svc.UpdateAttributes(ctx, alice, "missing", json.RawMessage(`{}`), "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := svc.Get(ctx, alice, ids[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"new"}`, string(got.Attributes))
}

func TestUpdateAttributes_IfMatch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	ids := createN(t, svc, alice, 1)
	current, err := svc.Get(ctx, alice, ids[0])
	require.NoError(t, err)
	tag := checksum.Sum(current.Attributes)

	_, err = svc.UpdateAttributes(ctx, alice, ids[0], json.RawMessage(`{"v":2}`), tag)
	require.NoError(t, err)

	_, err = svc.UpdateAttributes(ctx, alice, ids[0], json.RawMessage(`{"v":3}`), tag)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDelete_Compacts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	ids := createN(t, svc, alice, 4)

	require.NoError(t, svc.Delete(ctx, alice, ids[1]))
	assert.Equal(t, map[string]int{ids[0]: 1, ids[2]: 2, ids[3]: 3}, ordersOf(t, svc, alice))

	next, err := svc.Create(ctx, alice, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 4, next.Order)
}

func TestDelete_Authorization(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	ids := createN(t, svc, alice, 2)

	assert.ErrorIs(t, svc.Delete(ctx, bob, ids[0]), apperr.ErrUnauthorized)
	assert.ErrorIs(t, svc.Delete(ctx, bob, "missing"), apperr.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, models.Actor{}, ids[0]), apperr.ErrUnauthenticated)
	assert.Len(t, ordersOf(t, svc, alice), 2)
}

func TestDensityAfterMixedOperations(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	ids := createN(t, svc, alice, 5)
	requireDense(t, svc, alice)

	require.NoError(t, svc.Delete(ctx, alice, ids[0]))
	requireDense(t, svc, alice)

	_, err := svc.Reorder(ctx, alice, []string{ids[4], ids[2], ids[1], ids[3]})
	require.NoError(t, err)
	requireDense(t, svc, alice)

	require.NoError(t, svc.Delete(ctx, alice, ids[2]))
	createN(t, svc, alice, 2)
	requireDense(t, svc, alice)

	require.NoError(t, svc.Delete(ctx, alice, ids[4]))
	links, err := svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, links, 4)
	requireDense(t, svc, alice)
}

// failingStore injects a storage failure on the nth UpdateOrder call made
// inside a transaction.
type failingStore struct {
	store.Store
	failAt int
}

type failingTx struct {
	store.Tx
	calls  *int
	failAt int
}

var errDiskGone = errors.New("disk gone")

func (f *failingStore) Transaction(ctx context.Context, ownerID string, fn func(tx store.Tx) error) error {
	calls := 0
	return f.Store.Transaction(ctx, ownerID, func(tx store.Tx) error {
		return fn(&failingTx{Tx: tx, calls: &calls, failAt: f.failAt})
	})
}

func (f *failingTx) UpdateOrder(ctx context.Context, id string, order int) (*models.Link, error) {
	*f.calls++
	if *f.calls == f.failAt {
		return nil, errors.Join(apperr.ErrStorage, errDiskGone)
	}
	return f.Tx.UpdateOrder(ctx, id, order)
}

func TestReorder_StorageFailureRollsBack(t *testing.T) {
	db := testutil.TestDB(t)
	seedSvc := NewService(db)
	ids := createN(t, seedSvc, alice, 3)
	before := ordersOf(t, seedSvc, alice)

	svc := NewService(&failingStore{Store: db, failAt: 2})
	_, err := svc.Reorder(context.Background(), alice, []string{ids[2], ids[0], ids[1]})
	assert.ErrorIs(t, err, apperr.ErrStorage)

	assert.Equal(t, before, ordersOf(t, seedSvc, alice))
}
