package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// MockRepository for tests that only check the calls made.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreatePending(ctx context.Context, order *Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockRepository) FindPending(ctx context.Context, userID string) (*Order, error) {
	args := m.Called(ctx, userID)
	order, _ := args.Get(0).(*Order)
	return order, args.Error(1)
}

func (m *MockRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	args := m.Called(ctx, orderID)
	order, _ := args.Get(0).(*Order)
	return order, args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, userID string) ([]Order, error) {
	args := m.Called(ctx, userID)
	orders, _ := args.Get(0).([]Order)
	return orders, args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, orderID, status string) error {
	return m.Called(ctx, orderID, status).Error(0)
}

func (m *MockRepository) SetAddress(ctx context.Context, orderID, address string) error {
	return m.Called(ctx, orderID, address).Error(0)
}

func (m *MockRepository) Finalize(ctx context.Context, orderID, address string) error {
	return m.Called(ctx, orderID, address).Error(0)
}

// memRepository keeps orders in memory with the same rules as Postgres.
type memRepository struct {
	mu     sync.Mutex
	orders map[string]*Order
}

func newMemRepository() *memRepository {
	return &memRepository{orders: map[string]*Order{}}
}

func (r *memRepository) CreatePending(ctx context.Context, order *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.UserID == order.UserID && o.Status == OrderStatusPending {
			return ErrPendingOrderExists
		}
	}
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

func (r *memRepository) FindPending(ctx context.Context, userID string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.UserID == userID && o.Status == OrderStatusPending {
			copied := *o
			return &copied, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *memRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	copied := *o
	return &copied, nil
}

func (r *memRepository) List(ctx context.Context, userID string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if userID == "" || o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepository) UpdateStatus(ctx context.Context, orderID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err := checkTransition(o.Status, status); err != nil {
		return err
	}
	o.Status = status
	return nil
}

func (r *memRepository) SetAddress(ctx context.Context, orderID, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	o.ShippingAddress = &address
	return nil
}

func (r *memRepository) Finalize(ctx context.Context, orderID, address string) error {
	if address != "" {
		if err := r.SetAddress(ctx, orderID, address); err != nil {
			return err
		}
	}
	return r.UpdateStatus(ctx, orderID, OrderStatusPaid)
}

func newTestUseCase(repo Repository) *OrderUseCase {
	return NewOrderUseCase(repo, tracenoop.NewTracerProvider().Tracer("test"))
}

func sampleRequest(userID string) CreateOrderRequest {
	return CreateOrderRequest{
		UserID: userID,
		Items: []OrderLine{
			{ProductID: "1", ProductName: "Mug", Price: decimal.NewFromInt(10), Quantity: 2},
			{ProductID: "2", ProductName: "Tee", Price: decimal.NewFromInt(5), Quantity: 1},
		},
	}
}

func TestCreatePending_StoresOrderWithTotal(t *testing.T) {
	// Arrange
	mockRepo := new(MockRepository)
	uc := newTestUseCase(mockRepo)
	ctx := context.Background()

	mockRepo.On("CreatePending", mock.Anything, mock.MatchedBy(func(o *Order) bool {
		return o.UserID == "user-1" &&
			o.Status == OrderStatusPending &&
			len(o.Items) == 2 &&
			o.TotalPrice.Equal(decimal.NewFromInt(25))
	})).Return(nil)

	// Act
	orderID, err := uc.CreatePending(ctx, sampleRequest("user-1"))

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, orderID)
	mockRepo.AssertExpectations(t)
}

func TestCreatePending_PendingOrderExists(t *testing.T) {
	mockRepo := new(MockRepository)
	uc := newTestUseCase(mockRepo)

	mockRepo.On("CreatePending", mock.Anything, mock.Anything).Return(ErrPendingOrderExists)

	_, err := uc.CreatePending(context.Background(), sampleRequest("user-1"))

	assert.ErrorIs(t, err, ErrPendingOrderExists)
}

func TestCreatePending_InvalidOrderNeverReachesRepository(t *testing.T) {
	mockRepo := new(MockRepository)
	uc := newTestUseCase(mockRepo)

	_, err := uc.CreatePending(context.Background(), CreateOrderRequest{UserID: "user-1"})

	assert.ErrorIs(t, err, ErrInvalidOrder)
	mockRepo.AssertNotCalled(t, "CreatePending", mock.Anything, mock.Anything)
}

func TestFindPending_NoneReturnsNil(t *testing.T) {
	mockRepo := new(MockRepository)
	uc := newTestUseCase(mockRepo)

	mockRepo.On("FindPending", mock.Anything, "user-1").Return(nil, ErrOrderNotFound)

	order, err := uc.FindPending(context.Background(), "user-1")

	assert.NoError(t, err)
	assert.Nil(t, order)
}

func TestFindPending_RepositoryFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	uc := newTestUseCase(mockRepo)

	mockRepo.On("FindPending", mock.Anything, "user-1").Return(nil, errors.New("connection refused"))

	_, err := uc.FindPending(context.Background(), "user-1")

	assert.Error(t, err)
}

func TestPendingLifecycle(t *testing.T) {
	// Arrange
	uc := newTestUseCase(newMemRepository())
	ctx := context.Background()

	// Act
	orderID, err := uc.CreatePending(ctx, sampleRequest("user-1"))
	require.NoError(t, err)

	pending, err := uc.FindPending(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, orderID, pending.ID)

	_, err = uc.CreatePending(ctx, sampleRequest("user-1"))
	assert.ErrorIs(t, err, ErrPendingOrderExists)

	require.NoError(t, uc.SetStatus(ctx, orderID, OrderStatusPaid))

	// Assert
	pending, err = uc.FindPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestSetStatus(t *testing.T) {
	uc := newTestUseCase(newMemRepository())
	ctx := context.Background()
	orderID, err := uc.CreatePending(ctx, sampleRequest("user-1"))
	require.NoError(t, err)

	assert.ErrorIs(t, uc.SetStatus(ctx, orderID, "refunded"), ErrUnknownStatus)
	assert.ErrorIs(t, uc.SetStatus(ctx, "missing", OrderStatusPaid), ErrOrderNotFound)

	require.NoError(t, uc.SetStatus(ctx, orderID, OrderStatusPaid))
	require.NoError(t, uc.SetStatus(ctx, orderID, OrderStatusPaid))
	assert.ErrorIs(t, uc.SetStatus(ctx, orderID, OrderStatusPending), ErrInvalidTransition)
	assert.ErrorIs(t, uc.SetStatus(ctx, orderID, OrderStatusCancelled), ErrInvalidTransition)
	require.NoError(t, uc.SetStatus(ctx, orderID, OrderStatusShipped))
}

func TestSetAddress(t *testing.T) {
	uc := newTestUseCase(newMemRepository())
	ctx := context.Background()
	orderID, err := uc.CreatePending(ctx, sampleRequest("user-1"))
	require.NoError(t, err)

	assert.ErrorIs(t, uc.SetAddress(ctx, orderID, "  "), ErrEmptyAddress)
	assert.ErrorIs(t, uc.SetAddress(ctx, "missing", "Main St 1"), ErrOrderNotFound)
	require.NoError(t, uc.SetAddress(ctx, orderID, "Main St 1"))

	order, err := uc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, order.ShippingAddress)
	assert.Equal(t, "Main St 1", *order.ShippingAddress)
	assert.Equal(t, OrderStatusPending, order.Status)
}

func TestFinalize(t *testing.T) {
	uc := newTestUseCase(newMemRepository())
	ctx := context.Background()
	orderID, err := uc.CreatePending(ctx, sampleRequest("user-1"))
	require.NoError(t, err)

	require.NoError(t, uc.Finalize(ctx, FinalizeRequest{OrderID: orderID, Address: "Main St 1"}))

	order, err := uc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPaid, order.Status)
	assert.Equal(t, "Main St 1", *order.ShippingAddress)
}

func TestList(t *testing.T) {
	repo := newMemRepository()
	uc := newTestUseCase(repo)
	ctx := context.Background()

	first, err := uc.CreatePending(ctx, sampleRequest("user-1"))
	require.NoError(t, err)
	require.NoError(t, uc.SetStatus(ctx, first, OrderStatusPaid))
	repo.orders[first].CreatedAt = time.Now().Add(-time.Hour)

	second, err := uc.CreatePending(ctx, sampleRequest("user-1"))
	require.NoError(t, err)
	_, err = uc.CreatePending(ctx, sampleRequest("user-2"))
	require.NoError(t, err)

	own, err := uc.List(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, second, own[0].ID)
	assert.Equal(t, first, own[1].ID)

	all, err := uc.List(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := uc.List(ctx, "user-3", false)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
