package models

import (
	"database/sql"
	"time"
)

// Role identifies the kind of actor driving a request.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleSupplier Role = "supplier"
	// RoleSystem is the internal actor used by the payment event reconciler.
	RoleSystem Role = "system"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Product represents a product in the catalog. Prices are integer cents.
type Product struct {
	ID            string    `db:"id" json:"id"`
	SellerID      int64     `db:"seller_id" json:"seller_id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	Price         int64     `db:"price" json:"price"`
	StockQuantity int       `db:"stock_quantity" json:"stock_quantity"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// CartItem is one line of a buyer's cart, unique per (user, product).
type CartItem struct {
	ID        string    `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PricedCartItem is a cart line joined with the current catalog price.
type PricedCartItem struct {
	CartItem
	ProductName string `db:"product_name" json:"product_name"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
}

// Order is an immutable snapshot of a checkout. TotalAmount and the item
// prices are frozen at creation and never recomputed from the catalog.
// PaymentRef is the provider-side correlation key; a unique index on it
// guarantees at most one order per successful payment.
type Order struct {
	ID              string         `db:"id" json:"id"`
	UserID          int64          `db:"user_id" json:"user_id"`
	Status          OrderStatus    `db:"status" json:"status"`
	TotalAmount     int64          `db:"total_amount" json:"total_amount"`
	PaymentRef      sql.NullString `db:"payment_ref" json:"-"`
	ShippingAddress string         `db:"shipping_address" json:"shipping_address"`
	BillingAddress  string         `db:"billing_address" json:"billing_address"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// OrderItem is a child line of an order. PriceAtTime is the catalog price
// captured when the order was created.
type OrderItem struct {
	ID          string `db:"id" json:"id"`
	OrderID     string `db:"order_id" json:"order_id"`
	ProductID   string `db:"product_id" json:"product_id"`
	Quantity    int    `db:"quantity" json:"quantity"`
	PriceAtTime int64  `db:"price_at_time" json:"price_at_time"`
}

// OrderAnalytics is the supplier dashboard projection.
type OrderAnalytics struct {
	TotalOrders           int64 `json:"total_orders"`
	PendingOrders         int64 `json:"pending_orders"`
	ConfirmedOrders       int64 `json:"confirmed_orders"`
	ShippedOrders         int64 `json:"shipped_orders"`
	DeliveredOrders       int64 `json:"delivered_orders"`
	CancelledOrders       int64 `json:"cancelled_orders"`
	TotalRevenue          int64 `json:"total_revenue"`
	OrdersNeedingApproval int64 `json:"orders_needing_approval"`
}
