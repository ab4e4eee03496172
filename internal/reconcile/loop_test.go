package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/orderbot/internal/logger"
	"github.com/memohai/orderbot/internal/notify"
	"github.com/memohai/orderbot/internal/records"
)

type fakeRecords struct {
	mu       sync.Mutex
	items    []records.Record
	queryErr error
	// freeze keeps records waiting after UpdateStatus, simulating a lagging store.
	freeze    bool
	updateErr error
	updates   []string
}

func (f *fakeRecords) Create(context.Context, records.Record) (string, error) { return "", nil }
func (f *fakeRecords) Get(context.Context, string) (records.Record, error) {
	return records.Record{}, records.ErrNotFound
}

func (f *fakeRecords) Query(_ context.Context, filter records.Filter) ([]records.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []records.Record
	for _, r := range f.items {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecords) UpdateStatus(_ context.Context, id, field string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, id+"="+value.(string))
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.freeze {
		return nil
	}
	for i := range f.items {
		if f.items[i].ID == id && field == records.FieldKitchenStatus {
			f.items[i].KitchenStatus = value.(string)
		}
	}
	return nil
}

type fakeDispatcher struct {
	mu         sync.Mutex
	recipients []notify.Recipient
	failFor    map[string]bool
	sent       map[string][]string
}

func (d *fakeDispatcher) Recipients() []notify.Recipient { return d.recipients }

func (d *fakeDispatcher) Send(_ context.Context, r notify.Recipient, p notify.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failFor[r.Target] {
		return errors.New("unreachable")
	}
	if d.sent == nil {
		d.sent = map[string][]string{}
	}
	d.sent[p.RecordID] = append(d.sent[p.RecordID], r.Target)
	return nil
}

func paid(id string) records.Record {
	return records.Record{ID: id, CustomerInfo: "A, 1", OrderDetails: "X", Paid: true, KitchenStatus: records.KitchenWaiting}
}

func twoRecipients() []notify.Recipient {
	return []notify.Recipient{{Kind: notify.KindTelegram, Target: "1"}, {Kind: notify.KindTelegram, Target: "2"}}
}

func newLoop(t *testing.T, recs *fakeRecords, d *fakeDispatcher) *Loop {
	t.Helper()
	l, err := NewLoop(logger.Nop(), recs, d, Options{})
	require.NoError(t, err)
	return l
}

func TestTickDispatchesOnceAndMarksCooking(t *testing.T) {
	t.Parallel()

	recs := &fakeRecords{items: []records.Record{paid("rec1"), {ID: "rec2", KitchenStatus: records.KitchenWaiting}}}
	d := &fakeDispatcher{recipients: twoRecipients()}
	l := newLoop(t, recs, d)

	res := l.Tick(context.Background())
	assert.Equal(t, Result{Due: 1, Dispatched: 1}, res)
	assert.ElementsMatch(t, []string{"1", "2"}, d.sent["rec1"])
	assert.Equal(t, []string{"rec1=Cooking"}, recs.updates)
	assert.Empty(t, d.sent["rec2"])

	res = l.Tick(context.Background())
	assert.Equal(t, Result{}, res)
	assert.Len(t, d.sent["rec1"], 2)
}

func TestTickSeenSetSuppressesLaggingStore(t *testing.T) {
	t.Parallel()

	recs := &fakeRecords{items: []records.Record{paid("rec1")}, freeze: true}
	d := &fakeDispatcher{recipients: twoRecipients()}
	l := newLoop(t, recs, d)

	l.Tick(context.Background())
	res := l.Tick(context.Background())
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, d.sent["rec1"], 2, "second tick must not notify again")
}

func TestTickStatusUpdateFailureStillCountsAsDispatched(t *testing.T) {
	t.Parallel()

	recs := &fakeRecords{items: []records.Record{paid("rec1")}, updateErr: errors.New("timeout")}
	d := &fakeDispatcher{recipients: twoRecipients()}
	l := newLoop(t, recs, d)

	assert.Equal(t, 1, l.Tick(context.Background()).Dispatched)
	assert.Equal(t, 1, l.Tick(context.Background()).Skipped)
	assert.Len(t, d.sent["rec1"], 2)
}

func TestTickPartialDeliveryIsDispatch(t *testing.T) {
	t.Parallel()

	recs := &fakeRecords{items: []records.Record{paid("rec1")}}
	d := &fakeDispatcher{recipients: twoRecipients(), failFor: map[string]bool{"1": true}}
	l := newLoop(t, recs, d)

	assert.Equal(t, 1, l.Tick(context.Background()).Dispatched)
	assert.Equal(t, []string{"2"}, d.sent["rec1"])
}

func TestDeliverCountsAcksAndReportsFailure(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{recipients: twoRecipients(), failFor: map[string]bool{"2": true}}
	l := newLoop(t, &fakeRecords{}, d)

	acks, err := l.deliver(context.Background(), notify.Payload{RecordID: "rec1"})
	assert.Equal(t, 1, acks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram:2")

	d.failFor = nil
	acks, err = l.deliver(context.Background(), notify.Payload{RecordID: "rec2"})
	assert.Equal(t, 2, acks)
	assert.NoError(t, err)
}

func TestTickNoAckRetriesNextTick(t *testing.T) {
	t.Parallel()

	recs := &fakeRecords{items: []records.Record{paid("rec1")}}
	d := &fakeDispatcher{recipients: twoRecipients(), failFor: map[string]bool{"1": true, "2": true}}
	l := newLoop(t, recs, d)

	assert.Equal(t, 1, l.Tick(context.Background()).Failed)
	assert.Empty(t, recs.updates)

	d.mu.Lock()
	d.failFor = nil
	d.mu.Unlock()
	assert.Equal(t, 1, l.Tick(context.Background()).Dispatched)
	assert.Len(t, d.sent["rec1"], 2)
}

func TestTickManyAndZero(t *testing.T) {
	t.Parallel()

	recs := &fakeRecords{}
	d := &fakeDispatcher{recipients: twoRecipients()}
	l := newLoop(t, recs, d)
	assert.Equal(t, Result{}, l.Tick(context.Background()))

	recs.mu.Lock()
	recs.items = []records.Record{paid("a"), paid("b"), paid("c")}
	recs.mu.Unlock()
	assert.Equal(t, 3, l.Tick(context.Background()).Dispatched)
	assert.Len(t, recs.updates, 3)
}

func TestTickQueryFailure(t *testing.T) {
	t.Parallel()

	recs := &fakeRecords{queryErr: errors.New("rate limited")}
	d := &fakeDispatcher{recipients: twoRecipients()}
	l := newLoop(t, recs, d)
	assert.Equal(t, Result{}, l.Tick(context.Background()))
	assert.Equal(t, int64(1), l.Ticks())
}

func TestStartRunsTicks(t *testing.T) {
	t.Parallel()

	recs := &fakeRecords{items: []records.Record{paid("rec1")}}
	d := &fakeDispatcher{recipients: twoRecipients()}
	l, err := NewLoop(logger.Nop(), recs, d, Options{Interval: time.Second})
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.sent["rec1"]) == 2
	}, 5*time.Second, 50*time.Millisecond)
}
