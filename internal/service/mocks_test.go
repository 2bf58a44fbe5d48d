package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/store"

	"github.com/google/uuid"
)

// fakeStore is an in-memory stand-in for *store.Store. It mirrors the
// transactional guarantees that matter to the services: cart-to-order
// conversion is all-or-nothing, payment references are unique, and order
// updates run serialized under one lock.
type fakeStore struct {
	mu       sync.Mutex
	products map[string]*models.Product
	cart     map[int64]map[string]*models.CartItem // userID -> itemID -> item
	orders   map[string]*models.Order
	items    map[string][]models.OrderItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: make(map[string]*models.Product),
		cart:     make(map[int64]map[string]*models.CartItem),
		orders:   make(map[string]*models.Order),
		items:    make(map[string][]models.OrderItem),
	}
}

func (f *fakeStore) addProduct(sellerID int64, name string, price int64) *models.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &models.Product{
		ID:       uuid.New().String(),
		SellerID: sellerID,
		Name:     name,
		Price:    price,
	}
	f.products[p.ID] = p
	return p
}

func (f *fakeStore) cartSize(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cart[userID])
}

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	return p, nil
}

func (f *fakeStore) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertCartItem(ctx context.Context, userID int64, productID string, quantity int) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := f.cart[userID]
	if lines == nil {
		lines = make(map[string]*models.CartItem)
		f.cart[userID] = lines
	}
	for _, item := range lines {
		if item.ProductID == productID {
			item.Quantity += quantity
			item.UpdatedAt = time.Now()
			return item, nil
		}
	}
	item := &models.CartItem{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	lines[item.ID] = item
	return item, nil
}

func (f *fakeStore) UpdateCartItemQuantity(ctx context.Context, userID int64, itemID string, quantity int) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.cart[userID][itemID]
	if !ok {
		return nil, fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
	}
	item.Quantity = quantity
	item.UpdatedAt = time.Now()
	return item, nil
}

func (f *fakeStore) DeleteCartItem(ctx context.Context, userID int64, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cart[userID][itemID]; !ok {
		return fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
	}
	delete(f.cart[userID], itemID)
	return nil
}

func (f *fakeStore) ClearCart(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cart, userID)
	return nil
}

func (f *fakeStore) ListCart(ctx context.Context, userID int64) ([]models.PricedCartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PricedCartItem
	for _, item := range f.cart[userID] {
		p := f.products[item.ProductID]
		out = append(out, models.PricedCartItem{
			CartItem:    *item,
			ProductName: p.Name,
			UnitPrice:   p.Price,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) CreateOrderFromCart(ctx context.Context, p store.CreateOrderParams) (*models.Order, []models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p.PaymentRef != "" {
		for _, o := range f.orders {
			if o.PaymentRef.Valid && o.PaymentRef.String == p.PaymentRef {
				return nil, nil, models.ErrOrderExists
			}
		}
	}

	lines := f.cart[p.UserID]
	if len(lines) == 0 {
		return nil, nil, models.ErrEmptyCart
	}

	order := &models.Order{
		ID:              uuid.New().String(),
		UserID:          p.UserID,
		Status:          p.Status,
		ShippingAddress: p.ShippingAddress,
		BillingAddress:  p.BillingAddress,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if p.PaymentRef != "" {
		order.PaymentRef.String = p.PaymentRef
		order.PaymentRef.Valid = true
	}

	var items []models.OrderItem
	for _, line := range lines {
		price := f.products[line.ProductID].Price
		order.TotalAmount += price * int64(line.Quantity)
		items = append(items, models.OrderItem{
			ID:          uuid.New().String(),
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			PriceAtTime: price,
		})
	}

	f.orders[order.ID] = order
	f.items[order.ID] = items
	if p.ClearCart {
		delete(f.cart, p.UserID)
	}
	return order, items, nil
}

func (f *fakeStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrderForUser(ctx context.Context, id string, userID int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.PaymentRef.Valid && o.PaymentRef.String == ref {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("payment ref %s: %w", ref, models.ErrNotFound)
}

func (f *fakeStore) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOrdersBySeller(ctx context.Context, sellerID int64, page, perPage int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for id, o := range f.orders {
		if f.containsSellerLocked(id, sellerID) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOrders(ctx context.Context, status *models.OrderStatus, page, perPage int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if status == nil || o.Status == *status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) OrderContainsSellerProduct(ctx context.Context, orderID string, sellerID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containsSellerLocked(orderID, sellerID), nil
}

func (f *fakeStore) containsSellerLocked(orderID string, sellerID int64) bool {
	for _, item := range f.items[orderID] {
		if p, ok := f.products[item.ProductID]; ok && p.SellerID == sellerID {
			return true
		}
	}
	return false
}

func (f *fakeStore) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderItem(nil), f.items[orderID]...), nil
}

func (f *fakeStore) UpdateOrderLocked(ctx context.Context, orderID string, fn store.OrderUpdateFunc) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}

	mut, err := fn(*o)
	if err != nil {
		return nil, err
	}
	if mut == nil {
		cp := *o
		return &cp, nil
	}

	o.Status = mut.Status
	if mut.ShippingAddress != nil {
		o.ShippingAddress = *mut.ShippingAddress
	}
	if mut.BillingAddress != nil {
		o.BillingAddress = *mut.BillingAddress
	}
	if mut.PaymentRef != nil {
		o.PaymentRef.String = *mut.PaymentRef
		o.PaymentRef.Valid = true
	}
	if mut.ClearCartUserID > 0 {
		delete(f.cart, mut.ClearCartUserID)
	}
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (f *fakeStore) CountOrdersByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.OrderStatus]int64)
	for _, o := range f.orders {
		counts[o.Status]++
	}
	return counts, nil
}

func (f *fakeStore) DeliveredRevenue(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var revenue int64
	for _, o := range f.orders {
		if o.Status == models.OrderStatusDelivered {
			revenue += o.TotalAmount
		}
	}
	return revenue, nil
}

// fakePaymentClient records the last session request and can be told to fail.
type fakePaymentClient struct {
	mu      sync.Mutex
	lastReq *CheckoutSessionRequest
	fail    bool
}

func (f *fakePaymentClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = &req
	if f.fail {
		return nil, fmt.Errorf("payment provider returned status 503")
	}
	return &CheckoutSession{
		ID:          "sess_" + req.OrderID,
		CheckoutURL: "https://pay.example.com/" + req.OrderID,
	}, nil
}

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
