package stream

import (
	"sort"
	"time"

	"github.com/jardin-pos/api/internal/database"
	"github.com/jardin-pos/api/internal/datewindow"
	"github.com/shopspring/decimal"
)

// Narrow is filtering done by the receiver of a snapshot rather than by the
// store: the admin view's day window and the kitchen's status filter.
type Narrow struct {
	Window *datewindow.Window
	Status string
}

// Apply returns the orders that pass n, newest first. orders is not modified.
func (n Narrow) Apply(orders []database.Order, now time.Time) []database.Order {
	out := orders
	if n.Window != nil {
		out = datewindow.Filter(out, *n.Window, now, database.Order.CreatedTime)
	} else {
		out = append([]database.Order(nil), out...)
	}
	if n.Status != "" {
		kept := out[:0:0]
		for _, o := range out {
			if o.Status == n.Status {
				kept = append(kept, o)
			}
		}
		out = kept
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedTime().After(out[j].CreatedTime())
	})
	return out
}

// Summary is the day report shown on the admin screen.
type Summary struct {
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
	ByStatus map[string]int  `json:"by_status"`
}

func Summarize(orders []database.Order) Summary {
	s := Summary{Total: decimal.Zero, ByStatus: make(map[string]int)}
	for _, o := range orders {
		s.Count++
		s.Total = s.Total.Add(o.TotalDecimal())
		s.ByStatus[o.Status]++
	}
	return s
}
