package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-course-checkout/internal/lms"
	"github.com/ariefcatur/go-course-checkout/internal/orders"
)

type fakeStore struct {
	createErr error
	created   []*orders.Order

	cartCleared []string
	cartErr     error

	refs   map[string]string
	refErr error

	mappings    map[string]string
	mappingSets map[string]string

	enrollments []*orders.Enrollment
	insertErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		refs:        map[string]string{},
		mappings:    map[string]string{},
		mappingSets: map[string]string{},
	}
}

func (f *fakeStore) CreateOrder(_ context.Context, o *orders.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	o.ID = fmt.Sprintf("ord-%d", len(f.created)+1)
	o.OrderNumber = fmt.Sprintf("CO-%06d", len(f.created)+1)
	f.created = append(f.created, o)
	return nil
}

func (f *fakeStore) ClearCart(_ context.Context, buyerID string) error {
	if f.cartErr != nil {
		return f.cartErr
	}
	f.cartCleared = append(f.cartCleared, buyerID)
	return nil
}

func (f *fakeStore) UpdateCustomerRef(_ context.Context, buyerID, ref string) error {
	if f.refErr != nil {
		return f.refErr
	}
	f.refs[buyerID] = ref
	return nil
}

func (f *fakeStore) GetIdentityMapping(_ context.Context, buyerID string) (string, bool, error) {
	id, ok := f.mappings[buyerID]
	return id, ok, nil
}

func (f *fakeStore) SaveIdentityMapping(_ context.Context, buyerID, lmsUserID string) error {
	// meniru ON CONFLICT DO NOTHING
	if _, ok := f.mappings[buyerID]; !ok {
		f.mappings[buyerID] = lmsUserID
	}
	f.mappingSets[buyerID] = lmsUserID
	return nil
}

func (f *fakeStore) InsertEnrollment(_ context.Context, e *orders.Enrollment) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.enrollments = append(f.enrollments, e)
	return nil
}

type fakeLMS struct {
	users       map[string]*lms.User
	created     []string
	findErr     error
	createErr   error
	enrollCalls []lms.EnrollRequest
	// enrollErrs per product: error di-pop berurutan tiap call
	enrollErrs map[string][]error
}

func newFakeLMS() *fakeLMS {
	return &fakeLMS{users: map[string]*lms.User{}, enrollErrs: map[string][]error{}}
}

func (f *fakeLMS) FindUserByEmail(_ context.Context, email string) (*lms.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, lms.ErrUserNotFound
}

func (f *fakeLMS) CreateUser(_ context.Context, email, displayName string) (*lms.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	u := &lms.User{ID: "lms-" + email, Email: email, DisplayName: displayName}
	f.users[email] = u
	f.created = append(f.created, email)
	return u, nil
}

func (f *fakeLMS) Enroll(_ context.Context, r lms.EnrollRequest) error {
	f.enrollCalls = append(f.enrollCalls, r)
	errs := f.enrollErrs[r.ProductID]
	if len(errs) == 0 {
		return nil
	}
	err := errs[0]
	f.enrollErrs[r.ProductID] = errs[1:]
	return err
}

type fakePublisher struct{ published [][]byte }

func (f *fakePublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	f.published = append(f.published, value)
}

func testSaga(store *fakeStore, client *fakeLMS) (*Saga, *fakePublisher, *fakePublisher, *int) {
	sleeps := 0
	confirmed := &fakePublisher{}
	ready := &fakePublisher{}
	return &Saga{
		Store:             store,
		LMS:               client,
		ConfirmedProducer: confirmed,
		ReadyProducer:     ready,
		Log:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		Service:           "test",
		Pace:              2 * time.Second,
		RetryAttempts:     3,
		RetryDelay:        0,
		Sleep:             func(context.Context, time.Duration) { sleeps++ },
		Now:               func() time.Time { return time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC) },
	}, confirmed, ready, &sleeps
}

func paymentEvent(items ...LineItem) *PaymentEvent {
	return &PaymentEvent{
		EventID:          "evt-1",
		EventType:        "checkout.completed",
		BuyerID:          "buyer-1",
		PaymentReference: "pay-1",
		CustomerRef:      "cus-1",
		CustomerEmail:    "buyer@example.com",
		CustomerName:     "Buyer One",
		Subtotal:         900,
		Discount:         54,
		DiscountTier:     "Foundation",
		Total:            846,
		LineItems:        items,
		PaidAt:           time.Date(2025, 3, 31, 11, 59, 0, 0, time.UTC),
	}
}

func li(productID string) LineItem {
	return LineItem{
		ProductID:        productID,
		EnrollKey:        "key-" + productID,
		ProductType:      "course",
		LMSProductType:   "subscription",
		Title:            "Course " + productID,
		Price:            282,
		ValidityDuration: 12,
		ValidityUnit:     "months",
	}
}

func TestFulfillNoLineItems(t *testing.T) {
	store := newFakeStore()
	saga, confirmed, ready := testSagaTuple(store, newFakeLMS())

	err := saga.Fulfill(context.Background(), paymentEvent())
	if !errors.Is(err, ErrNoLineItems) {
		t.Fatalf("expected ErrNoLineItems, got %v", err)
	}
	if len(store.created) != 0 || len(store.cartCleared) != 0 || len(confirmed.published)+len(ready.published) != 0 {
		t.Fatal("no side effects expected for empty event")
	}
}

// testSagaTuple cuma merapikan pemanggilan testSaga di test yg tidak butuh sleeps.
func testSagaTuple(store *fakeStore, client *fakeLMS) (*Saga, *fakePublisher, *fakePublisher) {
	s, c, r, _ := testSaga(store, client)
	return s, c, r
}

func TestFulfillOrderInsertFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("db down")
	saga, confirmed, ready := testSagaTuple(store, newFakeLMS())

	err := saga.Fulfill(context.Background(), paymentEvent(li("c1")))
	if err == nil {
		t.Fatal("expected error from order insert")
	}
	if len(store.cartCleared) != 0 || len(store.enrollments) != 0 {
		t.Fatal("saga must stop at the order gate")
	}
	if len(confirmed.published)+len(ready.published) != 0 {
		t.Fatal("no events expected when order insert fails")
	}
}

func TestFulfillReplayShortCircuits(t *testing.T) {
	store := newFakeStore()
	store.createErr = orders.ErrAlreadyExists
	saga, _, ready := testSagaTuple(store, newFakeLMS())

	if err := saga.Fulfill(context.Background(), paymentEvent(li("c1"))); err != nil {
		t.Fatalf("replay should be a no-op, got %v", err)
	}
	if len(store.enrollments) != 0 || len(ready.published) != 0 {
		t.Fatal("replay must not enroll again")
	}
}

func TestFulfillHappyPath(t *testing.T) {
	store := newFakeStore()
	client := newFakeLMS()
	saga, confirmed, ready := testSagaTuple(store, client)

	err := saga.Fulfill(context.Background(), paymentEvent(li("c1"), li("c2"), li("c3")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 order, got %d", len(store.created))
	}
	if len(store.cartCleared) != 1 || store.cartCleared[0] != "buyer-1" {
		t.Errorf("cart not cleared: %+v", store.cartCleared)
	}
	if store.refs["buyer-1"] != "cus-1" {
		t.Errorf("customer ref not updated: %+v", store.refs)
	}
	if store.mappings["buyer-1"] != "lms-buyer@example.com" {
		t.Errorf("identity mapping not created: %+v", store.mappings)
	}
	if len(store.enrollments) != 3 {
		t.Fatalf("expected 3 enrollment rows, got %d", len(store.enrollments))
	}
	for _, e := range store.enrollments {
		if e.Outcome != orders.OutcomeSuccess || e.Status != orders.StatusActive {
			t.Errorf("expected success/active, got %+v", e)
		}
		if e.EnrolledAt == nil || e.ExpiresAt == nil {
			t.Errorf("success row must carry enrolled_at and expires_at: %+v", e)
		}
		if e.ErrorMessage != "" {
			t.Errorf("success row must not carry error message: %q", e.ErrorMessage)
		}
	}
	if len(confirmed.published) != 1 || len(ready.published) != 1 {
		t.Errorf("expected both email events, got %d/%d", len(confirmed.published), len(ready.published))
	}
	// duration fields hanya utk subscription
	if client.enrollCalls[0].Duration != 12 || client.enrollCalls[0].DurationUnit != "months" {
		t.Errorf("subscription enroll must carry duration: %+v", client.enrollCalls[0])
	}
}

func TestFulfillMiddleItemFailureDoesNotBlockSiblings(t *testing.T) {
	store := newFakeStore()
	client := newFakeLMS()
	client.enrollErrs["c2"] = []error{&lms.APIError{Status: 400, Message: "unknown product"}}
	saga, _, _ := testSagaTuple(store, client)

	if err := saga.Fulfill(context.Background(), paymentEvent(li("c1"), li("c2"), li("c3"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.enrollments) != 3 {
		t.Fatalf("every item must get a terminal row, got %d", len(store.enrollments))
	}
	byProduct := map[string]*orders.Enrollment{}
	for _, e := range store.enrollments {
		byProduct[e.ProductID] = e
	}
	if byProduct["c1"].Outcome != orders.OutcomeSuccess || byProduct["c3"].Outcome != orders.OutcomeSuccess {
		t.Error("siblings of a failed item must still succeed")
	}
	failed := byProduct["c2"]
	if failed.Outcome != orders.OutcomeFailed || failed.Status != orders.StatusPending {
		t.Fatalf("expected failed/pending for c2, got %+v", failed)
	}
	if failed.RetryCount != 0 {
		t.Errorf("terminal rejection must not retry, retry_count=%d", failed.RetryCount)
	}
	if failed.ErrorMessage == "" || failed.ExpiresAt != nil {
		t.Errorf("failed row invariants violated: %+v", failed)
	}
}

func TestFulfillRateLimitRetriesThenSucceeds(t *testing.T) {
	store := newFakeStore()
	client := newFakeLMS()
	rl := fmt.Errorf("enroll c1: %w", lms.ErrRateLimited)
	client.enrollErrs["c1"] = []error{rl, rl, rl} // 429 tiga kali lalu sukses
	saga, _, _ := testSagaTuple(store, client)

	if err := saga.Fulfill(context.Background(), paymentEvent(li("c1"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := store.enrollments[0]
	if e.Outcome != orders.OutcomeSuccess {
		t.Fatalf("expected success after retries, got %+v", e)
	}
	if e.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", e.RetryCount)
	}
}

func TestFulfillRateLimitExhaustsRetries(t *testing.T) {
	store := newFakeStore()
	client := newFakeLMS()
	rl := fmt.Errorf("enroll c1: %w", lms.ErrRateLimited)
	client.enrollErrs["c1"] = []error{rl, rl, rl, rl, rl}
	saga, _, _ := testSagaTuple(store, client)

	if err := saga.Fulfill(context.Background(), paymentEvent(li("c1"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := store.enrollments[0]
	if e.Outcome != orders.OutcomeFailed {
		t.Fatalf("expected failed after exhausting retries, got %+v", e)
	}
	if e.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", e.RetryCount)
	}
	if e.ErrorMessage != "rate limit exceeded after 3 retries" {
		t.Errorf("error message = %q", e.ErrorMessage)
	}
	// 1 percobaan awal + 3 retry
	if len(client.enrollCalls) != 4 {
		t.Errorf("enroll calls = %d, want 4", len(client.enrollCalls))
	}
}

func TestFulfillRateLimitThenTerminalRejection(t *testing.T) {
	store := newFakeStore()
	client := newFakeLMS()
	rl := fmt.Errorf("enroll c1: %w", lms.ErrRateLimited)
	client.enrollErrs["c1"] = []error{rl, &lms.APIError{Status: 400, Message: "unknown product"}}
	saga, _, _ := testSagaTuple(store, client)

	if err := saga.Fulfill(context.Background(), paymentEvent(li("c1"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := store.enrollments[0]
	if e.Outcome != orders.OutcomeFailed {
		t.Fatalf("expected failed, got %+v", e)
	}
	if e.RetryCount != 0 {
		t.Errorf("terminal rejection pins retry_count at 0, got %d", e.RetryCount)
	}
	if e.ErrorMessage != "lms api error (status 400): unknown product" {
		t.Errorf("error message = %q", e.ErrorMessage)
	}
}

func TestFulfillExistingIdentityMappingReused(t *testing.T) {
	store := newFakeStore()
	store.mappings["buyer-1"] = "lms-existing"
	client := newFakeLMS()
	client.findErr = errors.New("should not be called")
	saga, _, _ := testSagaTuple(store, client)

	if err := saga.Fulfill(context.Background(), paymentEvent(li("c1"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.mappings["buyer-1"] != "lms-existing" {
		t.Fatal("existing mapping must never be overwritten")
	}
	if len(client.created) != 0 {
		t.Fatal("no LMS user should be created when mapping exists")
	}
}

func TestFulfillIdentityFoundByEmail(t *testing.T) {
	store := newFakeStore()
	client := newFakeLMS()
	client.users["buyer@example.com"] = &lms.User{ID: "lms-found", Email: "buyer@example.com"}
	saga, _, _ := testSagaTuple(store, client)

	if err := saga.Fulfill(context.Background(), paymentEvent(li("c1"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.mappings["buyer-1"] != "lms-found" {
		t.Fatalf("mapping should point to found user, got %+v", store.mappings)
	}
	if len(client.created) != 0 {
		t.Fatal("user should not be created when found by email")
	}
}

func TestFulfillIdentityFailureContinues(t *testing.T) {
	store := newFakeStore()
	client := newFakeLMS()
	client.findErr = errors.New("lms down")
	saga, _, ready := testSagaTuple(store, client)

	if err := saga.Fulfill(context.Background(), paymentEvent(li("c1"))); err != nil {
		t.Fatalf("identity failure must not abort saga: %v", err)
	}
	// enrollment tetap dicoba dan tercatat terminal
	if len(store.enrollments) != 1 {
		t.Fatalf("expected enrollment attempt, got %d rows", len(store.enrollments))
	}
	if len(ready.published) != 1 {
		t.Fatal("saga should reach the final email event")
	}
}

func TestFulfillCartClearFailureContinues(t *testing.T) {
	store := newFakeStore()
	store.cartErr = errors.New("cart table locked")
	saga, _, _ := testSagaTuple(store, newFakeLMS())

	if err := saga.Fulfill(context.Background(), paymentEvent(li("c1"))); err != nil {
		t.Fatalf("cart failure must not abort saga: %v", err)
	}
	if len(store.enrollments) != 1 {
		t.Fatal("enrollment must still run after cart failure")
	}
}

func TestFulfillPacesLMSCalls(t *testing.T) {
	store := newFakeStore()
	saga, _, _, sleeps := testSaga(store, newFakeLMS())

	if err := saga.Fulfill(context.Background(), paymentEvent(li("c1"), li("c2"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1x sebelum identity lookup + 1x per item
	if *sleeps != 3 {
		t.Fatalf("pace sleeps = %d, want 3", *sleeps)
	}
}

func TestAddValidity(t *testing.T) {
	base := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		d    int
		unit string
		want time.Time
	}{
		{30, "days", base.AddDate(0, 0, 30)},
		{12, "months", base.AddDate(0, 12, 0)},
		{2, "years", base.AddDate(2, 0, 0)},
		{3, "fortnights", base.AddDate(0, 3, 0)}, // unit asing = bulan
	}
	for _, tc := range cases {
		if got := addValidity(base, tc.d, tc.unit); !got.Equal(tc.want) {
			t.Errorf("addValidity(%d %s) = %v, want %v", tc.d, tc.unit, got, tc.want)
		}
	}
}
