package service

import (
	"context"
	"testing"

	"marketplace/internal/models"
	"marketplace/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, fs *fakeStore, sellerID, buyerID int64, status models.OrderStatus) *models.Order {
	t.Helper()
	ctx := context.Background()
	product := fs.addProduct(sellerID, "Desk Lamp", 4500)
	_, err := fs.UpsertCartItem(ctx, buyerID, product.ID, 1)
	require.NoError(t, err)
	order, _, err := fs.CreateOrderFromCart(ctx, store.CreateOrderParams{
		UserID: buyerID,
		Status: status,
	})
	require.NoError(t, err)
	return order
}

func TestSellerDrivesOrderThroughLifecycle(t *testing.T) {
	fs := newFakeStore()
	svc := NewOrderService(fs, nil, nil)
	ctx := context.Background()

	order := seedOrder(t, fs, 7, 42, models.OrderStatusPending)

	// Shipping before confirming skips a state and is rejected.
	_, err := svc.UpdateStatusAsSeller(ctx, 7, order.ID, models.OrderStatusShipped)
	var invalid *models.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.OrderStatusPending, invalid.From)
	assert.Equal(t, models.OrderStatusShipped, invalid.To)

	confirmed, err := svc.UpdateStatusAsSeller(ctx, 7, order.ID, models.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, confirmed.Status)

	shipped, err := svc.UpdateStatusAsSeller(ctx, 7, order.ID, models.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, shipped.Status)

	// Delivery is the supplier's edge, not the seller's.
	_, err = svc.UpdateStatusAsSeller(ctx, 7, order.ID, models.OrderStatusDelivered)
	assert.ErrorAs(t, err, &invalid)

	delivered, err := svc.UpdateStatusAsSupplier(ctx, order.ID, models.OrderStatusDelivered, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, delivered.Status)

	// Delivered is terminal.
	_, err = svc.CancelOrder(ctx, order.ID)
	assert.ErrorAs(t, err, &invalid)
}

func TestSellerCannotTouchForeignOrders(t *testing.T) {
	fs := newFakeStore()
	svc := NewOrderService(fs, nil, nil)
	ctx := context.Background()

	order := seedOrder(t, fs, 7, 42, models.OrderStatusPending)

	// A seller with no product in the order sees it as absent.
	_, err := svc.UpdateStatusAsSeller(ctx, 99, order.ID, models.OrderStatusConfirmed)
	assert.ErrorIs(t, err, models.ErrNotFound)

	unchanged, err := fs.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, unchanged.Status)
}

func TestRepeatedTransitionIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	svc := NewOrderService(fs, nil, nil)
	ctx := context.Background()

	order := seedOrder(t, fs, 7, 42, models.OrderStatusConfirmed)

	first, err := svc.ApproveOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, first.Status)

	// Approving again requests shipped -> shipped: a reported no-op.
	second, err := svc.ApproveOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, second.Status)
}

func TestSupplierCancelsNonTerminalOrders(t *testing.T) {
	for _, status := range []models.OrderStatus{
		models.OrderStatusPending,
		models.OrderStatusConfirmed,
		models.OrderStatusShipped,
	} {
		t.Run(string(status), func(t *testing.T) {
			fs := newFakeStore()
			svc := NewOrderService(fs, nil, nil)

			order := seedOrder(t, fs, 7, 42, status)
			cancelled, err := svc.CancelOrder(context.Background(), order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
		})
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	fs := newFakeStore()
	svc := NewOrderService(fs, nil, nil)

	order := seedOrder(t, fs, 7, 42, models.OrderStatusPending)

	_, err := svc.UpdateStatusAsSupplier(context.Background(), order.ID, models.OrderStatus("archived"), nil)
	var validation *models.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestTransitionOnMissingOrder(t *testing.T) {
	svc := NewOrderService(newFakeStore(), nil, nil)

	_, err := svc.ApproveOrder(context.Background(), "no-such-order")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSupplierUpdatesAddressesWithTransition(t *testing.T) {
	fs := newFakeStore()
	svc := NewOrderService(fs, nil, nil)
	ctx := context.Background()

	order := seedOrder(t, fs, 7, 42, models.OrderStatusConfirmed)

	shipping := "Dock 4, Harbor Rd"
	updated, err := svc.UpdateStatusAsSupplier(ctx, order.ID, models.OrderStatusShipped, &AddressUpdate{
		ShippingAddress: &shipping,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, updated.Status)
	assert.Equal(t, shipping, updated.ShippingAddress)

	// Same-status request with an address still writes the address.
	billing := "Finance Dept, Box 9"
	again, err := svc.UpdateStatusAsSupplier(ctx, order.ID, models.OrderStatusShipped, &AddressUpdate{
		BillingAddress: &billing,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, again.Status)
	assert.Equal(t, billing, again.BillingAddress)
	assert.Equal(t, shipping, again.ShippingAddress)
}

func TestSellerOrderVisibility(t *testing.T) {
	fs := newFakeStore()
	svc := NewOrderService(fs, nil, nil)
	ctx := context.Background()

	order := seedOrder(t, fs, 7, 42, models.OrderStatusConfirmed)

	detail, err := svc.GetSellerOrder(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, detail.ID)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, "Desk Lamp", detail.Items[0].ProductName)

	_, err = svc.GetSellerOrder(ctx, 99, order.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBuyerOrderVisibility(t *testing.T) {
	fs := newFakeStore()
	svc := NewOrderService(fs, nil, nil)
	ctx := context.Background()

	order := seedOrder(t, fs, 7, 42, models.OrderStatusConfirmed)

	detail, err := svc.GetBuyerOrder(ctx, 42, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, detail.ID)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, int64(4500), detail.Items[0].PriceAtTime)
	assert.Equal(t, "Desk Lamp", detail.Items[0].ProductName)

	// Another buyer cannot see it, or even learn it exists.
	_, err = svc.GetBuyerOrder(ctx, 43, order.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListAllOrdersValidatesStatusFilter(t *testing.T) {
	svc := NewOrderService(newFakeStore(), nil, nil)

	bad := models.OrderStatus("archived")
	_, err := svc.ListAllOrders(context.Background(), &bad, 1, 20)
	var validation *models.ValidationError
	assert.ErrorAs(t, err, &validation)
}

// staticAnalytics always serves one fixed projection.
type staticAnalytics struct {
	data *models.OrderAnalytics
	err  error
}

func (s *staticAnalytics) GetOrderAnalytics(ctx context.Context) (*models.OrderAnalytics, error) {
	return s.data, s.err
}

func TestGetAnalyticsPrefersProjection(t *testing.T) {
	fs := newFakeStore()
	cached := &models.OrderAnalytics{TotalOrders: 10, ConfirmedOrders: 4, OrdersNeedingApproval: 4}
	svc := NewOrderService(fs, &staticAnalytics{data: cached}, nil)

	got, err := svc.GetAnalytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached, got)
}

func TestGetAnalyticsFallsBackToDatabase(t *testing.T) {
	fs := newFakeStore()
	seedOrder(t, fs, 7, 42, models.OrderStatusConfirmed)
	seedOrder(t, fs, 7, 43, models.OrderStatusDelivered)
	seedOrder(t, fs, 7, 44, models.OrderStatusDelivered)

	svc := NewOrderService(fs, &staticAnalytics{err: models.ErrNotFound}, nil)

	got, err := svc.GetAnalytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.TotalOrders)
	assert.Equal(t, int64(1), got.ConfirmedOrders)
	assert.Equal(t, int64(2), got.DeliveredOrders)
	assert.Equal(t, int64(9000), got.TotalRevenue)
	assert.Equal(t, int64(1), got.OrdersNeedingApproval)
}
