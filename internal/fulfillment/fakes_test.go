package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"valor/internal/external"
	"valor/internal/notifications"
	"valor/internal/types"
)

// memStore is an in-memory order, key and coupon store. Transactions are
// serialized and roll back to a snapshot on error, which is enough to model
// the conditional update and the one-key-per-order index.
type memStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	orders   map[string]*types.Order
	order    []string
	keys     map[string]*types.LicenseKey
	unused   map[string]int
	products map[string]*types.Product
	variants map[string]*types.Variant
	coupons  map[string]int

	failInsert error
	// insertErrs are returned by successive Inserts before any other check;
	// a nil entry lets that Insert proceed.
	insertErrs []error
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[string]*types.Order{},
		keys:     map[string]*types.LicenseKey{},
		unused:   map[string]int{},
		products: map[string]*types.Product{},
		variants: map[string]*types.Variant{},
		coupons:  map[string]int{},
	}
}

func cloneOrder(o *types.Order) *types.Order {
	c := *o
	c.Metadata = types.Metadata{}.Merge(o.Metadata)
	return &c
}

func (s *memStore) addCatalog(slug string, durationDays *int) (*types.Product, *types.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &types.Product{ID: uuid.NewString(), Slug: slug, Name: "Product " + slug}
	v := &types.Variant{ID: uuid.NewString(), ProductID: p.ID, Name: "30 Days", DurationDays: durationDays, PriceCents: 1999, Active: true}
	s.products[p.ID] = p
	s.variants[v.ID] = v
	return p, v
}

func (s *memStore) addOrder(o types.Order) *types.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = types.OrderStatusPending
	}
	if o.Metadata == nil {
		o.Metadata = types.Metadata{}
	}
	o.CreatedAt = time.Now()
	s.orders[o.ID] = &o
	s.order = append(s.order, o.ID)
	return cloneOrder(&o)
}

func (s *memStore) get(id string) *types.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		return cloneOrder(o)
	}
	return nil
}

func (s *memStore) keysFor(orderID string) []*types.LicenseKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.LicenseKey
	for _, k := range s.keys {
		if k.AssignedToOrder != nil && *k.AssignedToOrder == orderID {
			c := *k
			out = append(out, &c)
		}
	}
	return out
}

func (s *memStore) couponUses(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[id]
}

// --- OrderRepository ---

func (s *memStore) Create(_ context.Context, in types.NewOrder) (*types.Order, error) {
	return nil, errors.New("not used")
}

func (s *memStore) GetByID(_ context.Context, id string) (*types.Order, error) {
	return s.get(id), nil
}

func (s *memStore) find(match func(*types.Order) bool) *types.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if o := s.orders[id]; match(o) {
			return cloneOrder(o)
		}
	}
	return nil
}

func (s *memStore) GetByOrderNumber(_ context.Context, n string) (*types.Order, error) {
	return s.find(func(o *types.Order) bool { return o.OrderNumber == n }), nil
}

func (s *memStore) GetByPaymentIntent(_ context.Context, pi string) (*types.Order, error) {
	return s.find(func(o *types.Order) bool {
		return (o.StripePaymentIntentID != nil && *o.StripePaymentIntentID == pi) ||
			o.Metadata.String(types.MetaStripePaymentIntent) == pi
	}), nil
}

func (s *memStore) GetByCheckoutSession(_ context.Context, cs string) (*types.Order, error) {
	return s.find(func(o *types.Order) bool {
		return o.StripeCheckoutSessionID != nil && *o.StripeCheckoutSessionID == cs
	}), nil
}

func (s *memStore) GetDetails(_ context.Context, id string) (*types.OrderDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	d := &types.OrderDetails{Order: *cloneOrder(o), Product: s.products[o.ProductID], Variant: s.variants[o.VariantID]}
	if o.LicenseKeyID != nil {
		d.LicenseKey = s.keys[*o.LicenseKeyID]
	}
	return d, nil
}

func (s *memStore) ListPending(_ context.Context) ([]types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Order
	for _, id := range s.order {
		if o := s.orders[id]; o.Status == types.OrderStatusPending {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, u types.StatusUpdate) (*types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "Order not found", nil)
	}
	if len(u.AllowedFrom) > 0 {
		allowed := false
		for _, st := range u.AllowedFrom {
			if o.Status == st {
				allowed = true
			}
		}
		if !allowed {
			return nil, types.NewAppError(types.ErrCodeConflictTransition, "order is no longer in an allowed state", types.ErrTransitionRejected)
		}
	}
	o.Status = u.Status
	if u.LicenseKeyID != nil {
		o.LicenseKeyID = u.LicenseKeyID
	}
	if u.PaymentMethod != nil {
		o.PaymentMethod = u.PaymentMethod
	}
	o.Metadata = o.Metadata.Merge(u.Metadata)
	if u.Status == types.OrderStatusPaid {
		now := time.Now()
		o.PaidAt = &now
	}
	return cloneOrder(o), nil
}

func (s *memStore) MergeMetadata(_ context.Context, id string, m types.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.Metadata = o.Metadata.Merge(m)
	}
	return nil
}

// --- LicenseKeyRepository ---

func (s *memStore) Insert(_ context.Context, k *types.LicenseKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return s.failInsert
	}
	if len(s.insertErrs) > 0 {
		err := s.insertErrs[0]
		s.insertErrs = s.insertErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, existing := range s.keys {
		if k.AssignedToOrder != nil && existing.AssignedToOrder != nil && *existing.AssignedToOrder == *k.AssignedToOrder {
			return types.NewAppError(types.ErrCodeConflictTransition, "license key already exists for this order", nil)
		}
		if existing.LicenseKey == k.LicenseKey {
			return types.NewAppError(types.ErrCodeInternalKeyAllocation, "license key value already issued", types.ErrKeyValueTaken)
		}
	}
	k.ID = uuid.NewString()
	c := *k
	s.keys[k.ID] = &c
	return nil
}

func (s *memStore) GetByOrder(_ context.Context, orderID string) (*types.LicenseKey, error) {
	if ks := s.keysFor(orderID); len(ks) > 0 {
		return ks[0], nil
	}
	return nil, nil
}

func (s *memStore) CountUnused(_ context.Context, variantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unused[variantID], nil
}

// --- CouponRepository ---

func (s *memStore) GetByCode(context.Context, string) (*types.Coupon, error) { return nil, nil }

func (s *memStore) IncrementUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[id]++
	return nil
}

// --- TransactionManager ---

// keyRepo disambiguates GetByID between orders and keys.
type keyRepo struct{ s *memStore }

func (r keyRepo) Insert(ctx context.Context, k *types.LicenseKey) error { return r.s.Insert(ctx, k) }
func (r keyRepo) GetByID(_ context.Context, id string) (*types.LicenseKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if k, ok := r.s.keys[id]; ok {
		c := *k
		return &c, nil
	}
	return nil, nil
}
func (r keyRepo) GetByOrder(ctx context.Context, id string) (*types.LicenseKey, error) {
	return r.s.GetByOrder(ctx, id)
}
func (r keyRepo) CountUnused(ctx context.Context, id string) (int, error) {
	return r.s.CountUnused(ctx, id)
}

type memTx struct{ s *memStore }

func (t memTx) Orders() types.OrderRepository { return t.s }
func (t memTx) LicenseKeys() types.LicenseKeyRepository { return keyRepo{t.s} }
func (t memTx) Coupons() types.CouponRepository { return t.s }

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.TxRepos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	ordersSnap := make(map[string]*types.Order, len(s.orders))
	for id, o := range s.orders {
		ordersSnap[id] = cloneOrder(o)
	}
	keysSnap := make(map[string]*types.LicenseKey, len(s.keys))
	for id, k := range s.keys {
		c := *k
		keysSnap[id] = &c
	}
	couponsSnap := make(map[string]int, len(s.coupons))
	for id, n := range s.coupons {
		couponsSnap[id] = n
	}
	s.mu.Unlock()

	if err := fn(ctx, memTx{s}); err != nil {
		s.mu.Lock()
		s.orders, s.keys, s.coupons = ordersSnap, keysSnap, couponsSnap
		s.mu.Unlock()
		return err
	}
	return nil
}

var (
	_ types.OrderRepository      = (*memStore)(nil)
	_ types.LicenseKeyRepository = keyRepo{}
	_ types.CouponRepository     = (*memStore)(nil)
	_ types.TransactionManager   = (*memStore)(nil)
)

// --- gateways ---

type fakePayments struct {
	mu       sync.Mutex
	intents  map[string]*external.PaymentIntent
	sessions map[string]*external.CheckoutSession
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func newFakePayments() *fakePayments {
	return &fakePayments{intents: map[string]*external.PaymentIntent{}, sessions: map[string]*external.CheckoutSession{}}
}

func (f *fakePayments) setIntent(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id] = &external.PaymentIntent{ID: id, Status: status, PaymentMethodTypes: []string{"card"}}
}

func (f *fakePayments) RetrievePaymentIntent(ctx context.Context, id string) (*external.PaymentIntent, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "No such payment_intent", nil)
	}
	return pi, nil
}

func (f *fakePayments) RetrieveCheckoutSession(_ context.Context, id string) (*external.CheckoutSession, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.sessions[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "No such checkout session", nil)
	}
	return cs, nil
}

func (f *fakePayments) CreatePaymentIntent(context.Context, external.CreatePaymentIntentParams) (*external.PaymentIntent, error) {
	return nil, errors.New("not used")
}

func (f *fakePayments) CreateCheckoutSession(context.Context, external.CreateCheckoutSessionParams) (*external.CheckoutSession, error) {
	return nil, errors.New("not used")
}

type fakeCardSetup struct {
	result  *external.FinalizeResult
	err     error
	lastReq external.FinalizeRequest
}

func (f *fakeCardSetup) CreateInvoice(context.Context, external.CardSetupInvoice) (*external.CreatedInvoice, error) {
	return nil, errors.New("not used")
}

func (f *fakeCardSetup) FinalizeInvoice(_ context.Context, req external.FinalizeRequest) (*external.FinalizeResult, error) {
	f.lastReq = req
	return f.result, f.err
}

type fakeKeySource struct {
	slug string
	key  string
	err  error
}

func (f *fakeKeySource) HasSource(slug string) bool { return slug == f.slug }

func (f *fakeKeySource) Fetch(context.Context, string, external.KeyFetchParams) external.KeyFetchResult {
	return external.KeyFetchResult{Key: f.key, Err: f.err}
}

// recordingNotifier captures every notification.
type recordingNotifier struct {
	mu        sync.Mutex
	purchases []notifications.Purchase
	orders    []notifications.OrderAlert
	errors    []notifications.ErrorAlert
	stock     []notifications.StockAlert
	fail      error
}

func (r *recordingNotifier) PurchaseConfirmation(_ context.Context, p notifications.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases = append(r.purchases, p)
	return r.fail
}

func (r *recordingNotifier) OrderAlert(_ context.Context, a notifications.OrderAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, a)
	return r.fail
}

func (r *recordingNotifier) ErrorAlert(_ context.Context, a notifications.ErrorAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, a)
	return r.fail
}

func (r *recordingNotifier) StockAlert(_ context.Context, a notifications.StockAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stock = append(r.stock, a)
	return r.fail
}

// heldGuard reports every key as already held.
type heldGuard struct{}

func (heldGuard) Acquire(context.Context, string) (func(), bool, error) { return nil, false, nil }

type brokenGuard struct{}

func (brokenGuard) Acquire(context.Context, string) (func(), bool, error) {
	return nil, false, fmt.Errorf("dial tcp: connection refused")
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) RecordOutcome(_ context.Context, trigger, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, trigger+":"+outcome)
}

func (m *recordingMetrics) RecordLatency(context.Context, string, time.Duration) {}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// cancelAfterCommit cancels the caller's context as soon as a transaction
// commits, like a browser that navigates away mid-request.
type cancelAfterCommit struct {
	*memStore
	cancel context.CancelFunc
}

func (c cancelAfterCommit) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.TxRepos) error) error {
	err := c.memStore.RunInTx(ctx, fn)
	if err == nil {
		c.cancel()
	}
	return err
}

// winnerFirst completes the order with its own key right before the first
// transaction runs, so that transaction loses the race.
type winnerFirst struct {
	*memStore
	orderID string
	once    sync.Once
}

func (w *winnerFirst) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.TxRepos) error) error {
	w.once.Do(func() {
		id := w.orderID
		k := &types.LicenseKey{LicenseKey: "WINNER-KEY", Status: types.KeyStatusUsed, AssignedToOrder: &id}
		if err := w.memStore.Insert(ctx, k); err != nil {
			panic(err)
		}
		if _, err := w.memStore.UpdateStatus(ctx, id, types.StatusUpdate{Status: types.OrderStatusPaid, LicenseKeyID: &k.ID}); err != nil {
			panic(err)
		}
	})
	return w.memStore.RunInTx(ctx, fn)
}

// ctxNotifier records whether each purchase confirmation arrived with a live
// context.
type ctxNotifier struct {
	recordingNotifier
	ctxErrs []error
}

func (c *ctxNotifier) PurchaseConfirmation(ctx context.Context, p notifications.Purchase) error {
	c.mu.Lock()
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	c.mu.Unlock()
	return c.recordingNotifier.PurchaseConfirmation(ctx, p)
}

