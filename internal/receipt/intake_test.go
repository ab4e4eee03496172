package receipt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/orderbot/internal/conversation"
	"github.com/memohai/orderbot/internal/logger"
	"github.com/memohai/orderbot/internal/order"
	"github.com/memohai/orderbot/internal/records"
)

type fakeRecords struct {
	mu      sync.Mutex
	created []records.Record
	fail    error
	calls   atomic.Int32
}

func (f *fakeRecords) Create(_ context.Context, rec records.Record) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.created = append(f.created, rec)
	return "rec" + string(rune('0'+len(f.created))), nil
}

func (f *fakeRecords) UpdateStatus(context.Context, string, string, any) error { return nil }
func (f *fakeRecords) Query(context.Context, records.Filter) ([]records.Record, error) {
	return nil, nil
}
func (f *fakeRecords) Get(context.Context, string) (records.Record, error) {
	return records.Record{}, records.ErrNotFound
}

type fakeFetcher struct{ err error }

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("\xff\xd8\xff\xe0jpeg"), "", nil
}

type fakeUploader struct {
	names []string
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, _ []byte, name, _ string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.names = append(u.names, name)
	return "https://files/" + name, nil
}

func testOrder() *order.Order {
	return &order.Order{
		Confirmed:       true,
		CustomerName:    "Asem",
		Phone:           "+77010000000",
		DeliveryAddress: "Abai 10",
		Items:           []string{"Burger"},
		TotalPrice:      2500,
	}
}

func awaiting(t *testing.T, store *conversation.Store, id string) {
	t.Helper()
	_, err := store.Update(context.Background(), id, func(c *conversation.Conversation) error {
		_, err := c.AwaitReceipt(testOrder())
		return err
	})
	require.NoError(t, err)
}

var photo = Attachment{Channel: "telegram", Kind: "image", FileID: "AgAD1", URL: "https://transport/file"}

func TestAttachReceiptPlacesOrder(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	recs := &fakeRecords{}
	uploader := &fakeUploader{}
	intake, err := NewIntake(logger.Nop(), store, recs, Options{Uploader: uploader, Fetcher: fakeFetcher{}})
	require.NoError(t, err)
	awaiting(t, store, "telegram:1")

	id, err := intake.AttachReceipt(context.Background(), "telegram:1", photo)
	require.NoError(t, err)
	assert.Equal(t, "rec1", id)

	c, ok := store.Get("telegram:1")
	require.True(t, ok)
	assert.Equal(t, conversation.PhasePlaced, c.Phase)
	assert.Nil(t, c.PendingOrder)
	assert.Equal(t, "rec1", c.ExternalRecordID)

	require.Len(t, recs.created, 1)
	rec := recs.created[0]
	assert.Equal(t, "telegram:image:AgAD1", rec.ReceiptReference)
	assert.Equal(t, "Asem, +77010000000", rec.CustomerInfo)
	assert.False(t, rec.Paid)
	assert.Equal(t, records.KitchenWaiting, rec.KitchenStatus)
	require.Len(t, uploader.names, 1)
	assert.Equal(t, "https://files/"+uploader.names[0], rec.ReceiptURL)
	assert.Contains(t, uploader.names[0], ".jpg")
}

func TestAttachReceiptTwiceCreatesOneRecord(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	recs := &fakeRecords{}
	intake, err := NewIntake(logger.Nop(), store, recs, Options{})
	require.NoError(t, err)
	awaiting(t, store, "whatsapp:7")

	_, err = intake.AttachReceipt(context.Background(), "whatsapp:7", photo)
	require.NoError(t, err)
	_, err = intake.AttachReceipt(context.Background(), "whatsapp:7", photo)
	assert.ErrorIs(t, err, ErrNoPendingOrder)
	assert.Equal(t, int32(1), recs.calls.Load())
}

func TestAttachReceiptConcurrentCreatesOneRecord(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	recs := &fakeRecords{}
	intake, err := NewIntake(logger.Nop(), store, recs, Options{})
	require.NoError(t, err)
	awaiting(t, store, "telegram:9")

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := intake.AttachReceipt(context.Background(), "telegram:9", photo); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(1), recs.calls.Load())
}

func TestAttachReceiptPreconditions(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	recs := &fakeRecords{}
	intake, err := NewIntake(logger.Nop(), store, recs, Options{})
	require.NoError(t, err)

	_, err = intake.AttachReceipt(context.Background(), "telegram:404", photo)
	assert.ErrorIs(t, err, ErrPlaceOrderFirst)

	_, err = store.Update(context.Background(), "telegram:2", func(c *conversation.Conversation) error {
		c.Append(conversation.RoleCustomer, "hi")
		return nil
	})
	require.NoError(t, err)
	_, err = intake.AttachReceipt(context.Background(), "telegram:2", photo)
	assert.ErrorIs(t, err, ErrPlaceOrderFirst)
	assert.Zero(t, recs.calls.Load())
}

func TestAttachReceiptFailureThenRetry(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	recs := &fakeRecords{fail: errors.New("airtable down")}
	intake, err := NewIntake(logger.Nop(), store, recs, Options{})
	require.NoError(t, err)
	awaiting(t, store, "telegram:3")
	before, _ := store.Get("telegram:3")

	_, err = intake.AttachReceipt(context.Background(), "telegram:3", photo)
	assert.ErrorIs(t, err, ErrRecordCreate)
	after, _ := store.Get("telegram:3")
	assert.Equal(t, conversation.PhaseAwaitingReceipt, after.Phase)
	require.NotNil(t, after.PendingOrder)
	assert.Equal(t, before.PendingOrder.ID, after.PendingOrder.ID)
	assert.Empty(t, after.PendingOrder.ReceiptReference)

	recs.mu.Lock()
	recs.fail = nil
	recs.mu.Unlock()
	id, err := intake.AttachReceipt(context.Background(), "telegram:3", photo)
	require.NoError(t, err)
	assert.Equal(t, "rec1", id)
}

func TestAttachReceiptUploadFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	recs := &fakeRecords{}
	intake, err := NewIntake(logger.Nop(), store, recs, Options{Uploader: &fakeUploader{err: errors.New("quota")}, Fetcher: fakeFetcher{}})
	require.NoError(t, err)
	awaiting(t, store, "telegram:4")

	_, err = intake.AttachReceipt(context.Background(), "telegram:4", photo)
	require.NoError(t, err)
	assert.Empty(t, recs.created[0].ReceiptURL)
	assert.Equal(t, "telegram:image:AgAD1", recs.created[0].ReceiptReference)
}

func TestParseReference(t *testing.T) {
	t.Parallel()

	att, ok := ParseReference("whatsapp:document:abc:def")
	require.True(t, ok)
	assert.Equal(t, "whatsapp", att.Channel)
	assert.Equal(t, "document", att.Kind)
	assert.Equal(t, "abc:def", att.FileID)

	_, ok = ParseReference("broken")
	assert.False(t, ok)
}
