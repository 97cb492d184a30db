package cart

import "sync"

// Registry keeps one cart per terminal. A terminal is a signed-in session, so
// two terminals sharing a POS account still have separate carts.
type Registry struct {
	catalog Catalog

	mu    sync.Mutex
	carts map[string]*Cart
}

func NewRegistry(catalog Catalog) *Registry {
	return &Registry{catalog: catalog, carts: make(map[string]*Cart)}
}

// Do runs fn against the terminal's cart, creating it on first use. Calls for
// the same registry are serialised.
func (r *Registry) Do(terminal string, fn func(c *Cart)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[terminal]
	if !ok {
		c = New(r.catalog)
		r.carts[terminal] = c
	}
	fn(c)
	if c.Len() == 0 {
		delete(r.carts, terminal)
	}
}

// Snapshot returns a copy of the terminal's lines without creating a cart.
func (r *Registry) Snapshot(terminal string) []Line {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[terminal]
	if !ok {
		return []Line{}
	}
	return c.Lines()
}
