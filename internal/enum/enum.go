package enum

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusPending       = "pending"
	OrderStatusInPreparation = "in_preparation"
	OrderStatusCompleted     = "completed"
)

// OrderStatusSequence is the fixed, monotonic progression of an order.
var OrderStatusSequence = []string{
	OrderStatusPending,
	OrderStatusInPreparation,
	OrderStatusCompleted,
}

// ── Staff roles (CHECK constrained in DB) ──

const (
	RoleAdmin   = "admin"
	RolePOS     = "pos"
	RoleKitchen = "cocina"
)

// ── Menu categories ──

const (
	CategoryMains    = "comidas"
	CategoryDrinks   = "bebidas"
	CategoryDesserts = "postres"
	CategorySpecials = "especiales"
)

// ── Order stream views ──

const (
	ViewKitchen = "kitchen"
	ViewAdmin   = "admin"
)

// ── Events (websocket frames and broker routing keys) ──

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrdersSnapshot     = "orders.snapshot"
	EventStreamError        = "orders.error"
)
