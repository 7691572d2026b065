package tests

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"shambascan/internal/domain"
	"shambascan/internal/mpesa"
	"shambascan/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK TRANSACTION REPOSITORY
// ──────────────────────────────────────────────

// MockTransactionRepository is a mock implementation of TransactionRepository.
type MockTransactionRepository struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction

	// Counters for verification
	CreateCallCount       int32
	UpdateResultCallCount int32

	// Error injection
	CreateError       error
	GetError          error
	UpdateResultError error
}

// NewMockTransactionRepository creates a new mock transaction repository.
func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		transactions: make(map[string]*domain.Transaction),
	}
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *tx
	m.transactions[tx.CheckoutRequestID] = &copy
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tx := range m.transactions {
		if tx.ID == id {
			copy := *tx
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockTransactionRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[checkoutRequestID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *tx
	return &copy, nil
}

func (m *MockTransactionRepository) UpdateResult(ctx context.Context, checkoutRequestID string, status domain.TransactionStatus, receipt, resultDesc string) error {
	atomic.AddInt32(&m.UpdateResultCallCount, 1)
	if m.UpdateResultError != nil {
		return m.UpdateResultError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[checkoutRequestID]
	if !ok {
		return repository.ErrNotFound
	}
	tx.Status = status
	tx.MpesaReceipt = receipt
	tx.ResultDesc = resultDesc
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

// GetTransaction returns a transaction for test assertions.
func (m *MockTransactionRepository) GetTransaction(checkoutRequestID string) *domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactions[checkoutRequestID]
}

// ──────────────────────────────────────────────
// MOCK SCAN REPOSITORY
// ──────────────────────────────────────────────

// MockScanRepository is a mock implementation of ScanRepository.
type MockScanRepository struct {
	mu    sync.RWMutex
	scans map[string]*domain.Scan

	// Counters for verification
	CreateCallCount int32

	// Error injection
	CreateError error
}

// NewMockScanRepository creates a new mock scan repository.
func NewMockScanRepository() *MockScanRepository {
	return &MockScanRepository{
		scans: make(map[string]*domain.Scan),
	}
}

func (m *MockScanRepository) Create(ctx context.Context, scan *domain.Scan) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *scan
	m.scans[scan.ID] = &copy
	return nil
}

func (m *MockScanRepository) GetByID(ctx context.Context, id string) (*domain.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scan, ok := m.scans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *scan
	return &copy, nil
}

func (m *MockScanRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Scan
	for _, scan := range m.scans {
		if scan.UserID == userID {
			copy := *scan
			result = append(result, &copy)
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK SUBSCRIPTION REPOSITORY
// ──────────────────────────────────────────────

// MockSubscriptionRepository is a mock implementation of SubscriptionRepository.
type MockSubscriptionRepository struct {
	mu            sync.RWMutex
	subscriptions map[string]*domain.Subscription

	// Counters for verification
	CreateCallCount   int32
	ActivateCallCount int32

	// Error injection
	CreateError   error
	ActivateError error
}

// NewMockSubscriptionRepository creates a new mock subscription repository.
func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{
		subscriptions: make(map[string]*domain.Subscription),
	}
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *sub
	m.subscriptions[sub.ID] = &copy
	return nil
}

func (m *MockSubscriptionRepository) GetCurrentByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *domain.Subscription
	for _, sub := range m.subscriptions {
		if sub.UserID != userID {
			continue
		}
		if newest == nil || sub.CreatedAt.After(newest.CreatedAt) {
			newest = sub
		}
	}
	if newest == nil {
		return nil, nil
	}
	copy := *newest
	return &copy, nil
}

func (m *MockSubscriptionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subscriptions {
		if sub.PaymentID == paymentID {
			copy := *sub
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *MockSubscriptionRepository) Activate(ctx context.Context, id string, startsAt, expiresAt time.Time) error {
	atomic.AddInt32(&m.ActivateCallCount, 1)
	if m.ActivateError != nil {
		return m.ActivateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return repository.ErrNotFound
	}
	sub.Status = domain.SubscriptionStatusActive
	sub.StartsAt = startsAt
	sub.ExpiresAt = expiresAt
	return nil
}

// GetSubscription returns a subscription for test assertions.
func (m *MockSubscriptionRepository) GetSubscription(id string) *domain.Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subscriptions[id]
}

// ──────────────────────────────────────────────
// MOCK PAYMENT GATEWAY
// ──────────────────────────────────────────────

// MockGateway is a mock implementation of the STK push initiator.
type MockGateway struct {
	mu sync.Mutex

	// Counters for verification
	PushCallCount int32

	// Behavior
	Response *mpesa.InitiateResponse
	Error    error

	// LastRequest captures the most recent push for assertions.
	LastRequest mpesa.InitiateRequest
}

func (m *MockGateway) STKPush(ctx context.Context, req mpesa.InitiateRequest) (*mpesa.InitiateResponse, error) {
	atomic.AddInt32(&m.PushCallCount, 1)
	m.mu.Lock()
	m.LastRequest = req
	m.mu.Unlock()
	if m.Error != nil {
		return nil, m.Error
	}
	return m.Response, nil
}

// GetLastRequest returns the most recent push request.
func (m *MockGateway) GetLastRequest() mpesa.InitiateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastRequest
}

// ──────────────────────────────────────────────
// MOCK HISTORY STORE
// ──────────────────────────────────────────────

// MockHistoryStore is an in-memory implementation of HistoryStoreInterface.
type MockHistoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	lists  map[string][]json.RawMessage

	// Error injection
	AppendError error
}

// NewMockHistoryStore creates a new mock history store.
func NewMockHistoryStore() *MockHistoryStore {
	return &MockHistoryStore{
		values: make(map[string][]byte),
		lists:  make(map[string][]json.RawMessage),
	}
}

func (m *MockHistoryStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = data
	return nil
}

func (m *MockHistoryStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	m.mu.RLock()
	data, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (m *MockHistoryStore) Append(ctx context.Context, key string, entry any) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append([]json.RawMessage{json.RawMessage(data)}, m.lists[key]...)
	return nil
}

func (m *MockHistoryStore) List(ctx context.Context, key string, limit int) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.lists[key]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	result := make([]json.RawMessage, len(entries))
	copy(result, entries)
	return result, nil
}

// ListLen returns the number of entries under key for test assertions.
func (m *MockHistoryStore) ListLen(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lists[key])
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is an in-memory implementation of LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool

	// Counters for verification
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]bool)}
}

func (m *MockLockStore) AcquirePaymentLock(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[userID] {
		return false, nil
	}
	m.locks[userID] = true
	return true, nil
}

func (m *MockLockStore) ReleasePaymentLock(ctx context.Context, userID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, userID)
	return nil
}

// Held reports whether the user's lock is currently held.
func (m *MockLockStore) Held(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[userID]
}

// ──────────────────────────────────────────────
// MOCK MEDIA STORE
// ──────────────────────────────────────────────

// MockMediaStore is an in-memory implementation of media.Store.
type MockMediaStore struct {
	mu      sync.Mutex
	uploads map[string][]byte

	// Counters for verification
	UploadCallCount int32

	// Error injection
	UploadError error
}

// NewMockMediaStore creates a new mock media store.
func NewMockMediaStore() *MockMediaStore {
	return &MockMediaStore{uploads: make(map[string][]byte)}
}

func (m *MockMediaStore) Upload(ctx context.Context, publicID string, data []byte) (string, error) {
	atomic.AddInt32(&m.UploadCallCount, 1)
	if m.UploadError != nil {
		return "", m.UploadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[publicID] = data
	return "https://media.test/scans/" + publicID, nil
}
