// Package revenue derives daily takings from the order projection.
package revenue

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/orders"
)

// ExpenseRatio is the share of revenue booked as expenses.
var ExpenseRatio = decimal.NewFromFloat(0.4)

// Day is one calendar day of takings.
type Day struct {
	Date     time.Time
	Orders   int
	Revenue  decimal.Decimal
	Expenses decimal.Decimal
	Profit   decimal.Decimal
}

// Label is the day as YYYY-MM-DD.
func (d Day) Label() string { return d.Date.Format(time.DateOnly) }

// Totals sums a series.
type Totals struct {
	Orders   int
	Revenue  decimal.Decimal
	Expenses decimal.Decimal
	Profit   decimal.Decimal
}

// Aggregate groups paid orders by the calendar day (in loc) they were created
// on. Days are returned oldest first; an empty input yields an empty series.
func Aggregate(list []domain.Order, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}
	byDay := make(map[time.Time]*Day)
	for _, o := range list {
		if !o.Paid() {
			continue
		}
		y, m, d := o.CreatedAt.In(loc).Date()
		key := time.Date(y, m, d, 0, 0, 0, 0, loc)
		day, ok := byDay[key]
		if !ok {
			day = &Day{Date: key, Revenue: decimal.Zero}
			byDay[key] = day
		}
		day.Orders++
		day.Revenue = day.Revenue.Add(decimal.NewFromInt(int64(o.ComputedPrice())))
	}

	series := make([]Day, 0, len(byDay))
	for _, day := range byDay {
		day.Expenses = day.Revenue.Mul(ExpenseRatio).Round(2)
		day.Profit = day.Revenue.Sub(day.Expenses)
		series = append(series, *day)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series
}

// Sum totals a series.
func Sum(series []Day) Totals {
	t := Totals{Revenue: decimal.Zero, Expenses: decimal.Zero, Profit: decimal.Zero}
	for _, d := range series {
		t.Orders += d.Orders
		t.Revenue = t.Revenue.Add(d.Revenue)
		t.Expenses = t.Expenses.Add(d.Expenses)
		t.Profit = t.Profit.Add(d.Profit)
	}
	return t
}

// Aggregator caches the series of an order store and recomputes it after
// changes that touch paid orders.
type Aggregator struct {
	store *orders.Store
	loc   *time.Location

	mu     sync.Mutex
	dirty  bool
	series []Day
}

func NewAggregator(store *orders.Store, loc *time.Location) *Aggregator {
	a := &Aggregator{store: store, loc: loc, dirty: true}
	store.OnChange(func(ev orders.Event) {
		if affectsRevenue(ev) {
			a.mu.Lock()
			a.dirty = true
			a.mu.Unlock()
		}
	})
	return a
}

func affectsRevenue(ev orders.Event) bool {
	if ev.Reload {
		return true
	}
	return (ev.Before != nil && ev.Before.Paid()) || (ev.After != nil && ev.After.Paid())
}

// Series returns the daily series, oldest first.
func (a *Aggregator) Series() []Day {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dirty {
		a.series = Aggregate(a.store.View(orders.ViewAll), a.loc)
		a.dirty = false
	}
	return append([]Day(nil), a.series...)
}

func (a *Aggregator) Totals() Totals {
	return Sum(a.Series())
}

// Day returns the takings of the calendar day containing t.
func (a *Aggregator) Day(t time.Time) (Day, bool) {
	loc := a.loc
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	key := time.Date(y, m, d, 0, 0, 0, 0, loc)
	for _, day := range a.Series() {
		if day.Date.Equal(key) {
			return day, true
		}
	}
	return Day{}, false
}
