package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jardin-pos/api/internal/menu"
)

// MenuCatalog is satisfied by *menu.Catalog.
type MenuCatalog interface {
	Categories() []string
	Items(category string) []menu.MenuItem
	Lookup(id int) (menu.MenuItem, bool)
}

// MenuHandler serves the fixed menu.
type MenuHandler struct {
	catalog MenuCatalog
}

func NewMenuHandler(catalog MenuCatalog) *MenuHandler {
	return &MenuHandler{catalog: catalog}
}

func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/menu", h.List)
}

type menuCategoryResponse struct {
	Category string          `json:"category"`
	Items    []menu.MenuItem `json:"items"`
}

// List returns the menu grouped by category, in menu order.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	categories := h.catalog.Categories()
	resp := make([]menuCategoryResponse, len(categories))
	for i, c := range categories {
		resp[i] = menuCategoryResponse{Category: c, Items: h.catalog.Items(c)}
	}
	writeJSON(w, http.StatusOK, resp)
}
