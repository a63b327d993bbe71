package orders

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/identity"
)

// View selects the subset of orders a screen shows.
type View string

const (
	// ViewQueue is the operator's work queue: paid orders still in progress.
	ViewQueue View = "queue"
	// ViewTrack is a customer's paid orders still in progress.
	ViewTrack View = "track"
	// ViewHistory is every order of the customer.
	ViewHistory View = "history"
	// ViewFinished is completed and delivered orders.
	ViewFinished View = "finished"
	// ViewAll is the whole projection.
	ViewAll View = "all"
)

// View returns the orders in v, newest first. Customer views are restricted
// to the store's actor.
func (s *Store) View(v View) []domain.Order {
	own := s.actor.ID
	return s.collect(func(o domain.Order) bool {
		switch v {
		case ViewQueue:
			return o.Paid() && o.Status.IsActive()
		case ViewTrack:
			return o.OwnerID == own && o.Paid() && o.Status.IsActive()
		case ViewHistory:
			return o.OwnerID == own
		case ViewFinished:
			return o.Status.IsFinished()
		case ViewAll:
			return true
		default:
			return false
		}
	})
}

// ViewFor maps a role to its default screen.
func ViewFor(role identity.Role) View {
	switch role {
	case identity.RoleCustomer:
		return ViewTrack
	case identity.RoleOperator:
		return ViewQueue
	case identity.RoleAdmin:
		return ViewAll
	default:
		return ""
	}
}

// ViewByActorRole returns the orders the role's main screen lists.
func (s *Store) ViewByActorRole(role identity.Role) []domain.Order {
	return s.View(ViewFor(role))
}

// Get returns the order with id.
func (s *Store) Get(id string) (domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok
}

// Find resolves an order reference: an order ID or a five-digit order
// number, optionally prefixed with '#'.
func (s *Store) Find(ref string) (domain.Order, bool) {
	ref = strings.TrimSpace(ref)
	if o, ok := s.Get(ref); ok {
		return o, true
	}
	n, err := strconv.Atoi(strings.TrimPrefix(ref, "#"))
	if err != nil {
		return domain.Order{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.Number == n {
			return o, true
		}
	}
	return domain.Order{}, false
}

// StatusClass narrows a history search.
type StatusClass string

const (
	ClassAll        StatusClass = "all"
	ClassProcessing StatusClass = "processing"
	ClassReady      StatusClass = "ready"
	ClassCompleted  StatusClass = "completed"
	ClassDelivered  StatusClass = "delivered"
)

// ParseStatusClass accepts a class name; empty means all.
func ParseStatusClass(s string) (StatusClass, bool) {
	switch c := StatusClass(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ClassAll, true
	case ClassAll, ClassProcessing, ClassReady, ClassCompleted, ClassDelivered:
		return c, true
	}
	return "", false
}

func (c StatusClass) matches(st domain.Status) bool {
	switch c {
	case ClassProcessing:
		return st == domain.StatusProcessing
	case ClassReady:
		return st == domain.StatusReadyForPickup
	case ClassCompleted:
		return st == domain.StatusCompleted
	case ClassDelivered:
		return st == domain.StatusDelivered
	default:
		return true
	}
}

// Query is an operator history search over paid orders.
type Query struct {
	Class StatusClass
	Term  string
}

// Search matches Term against document name, owner name, owner ID and order
// number.
func (s *Store) Search(q Query) []domain.Order {
	term := strings.ToLower(strings.TrimSpace(q.Term))
	return s.collect(func(o domain.Order) bool {
		if !o.Paid() || !q.Class.matches(o.Status) {
			return false
		}
		if term == "" {
			return true
		}
		return strings.Contains(strings.ToLower(o.DocumentName), term) ||
			strings.Contains(strings.ToLower(o.OwnerName), term) ||
			strings.Contains(strings.ToLower(o.OwnerID), term) ||
			strings.Contains(strconv.Itoa(o.Number), term)
	})
}

// FinishedStats summarizes orders finished today.
type FinishedStats struct {
	Finished  int
	Delivered int
	Pages     int
}

// FinishedToday counts finished orders created on now's calendar day in loc.
// Pages is the sum of copies.
func (s *Store) FinishedToday(now time.Time, loc *time.Location) FinishedStats {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := now.In(loc).Date()

	var stats FinishedStats
	for _, o := range s.View(ViewFinished) {
		oy, om, od := o.CreatedAt.In(loc).Date()
		if oy != y || om != m || od != d {
			continue
		}
		stats.Finished++
		if o.Status == domain.StatusDelivered {
			stats.Delivered++
		}
		stats.Pages += o.Options.Copies
	}
	return stats
}

func (s *Store) collect(keep func(domain.Order) bool) []domain.Order {
	s.mu.RLock()
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders by creation time descending, ties broken by ID.
func SortNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}
