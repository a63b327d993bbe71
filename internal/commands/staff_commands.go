package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/identity"
	"github.com/buildtall-systems/printq/internal/orders"
)

// QueueCmd lists paid orders still in progress, newest first.
func QueueCmd(env Env) Result {
	if res, ok := notLoaded(env); ok {
		return res
	}
	list := env.Session.Orders.View(orders.ViewQueue)
	if len(list) == 0 {
		return withStaleNote(env, Result{Message: "The queue is empty."})
	}

	lines := make([]string, len(list))
	for i, o := range list {
		lines[i] = formatOrder(o) + " for " + ownerLabel(o)
	}
	return withStaleNote(env, Result{Message: strings.Join(lines, "\n")})
}

// AdvanceCmd moves an order forward.
// Args: <order> [processing|ready|completed|delivered]
func AdvanceCmd(ctx context.Context, env Env, args []string) Result {
	if len(args) < 1 {
		return Result{Error: errors.New("usage: advance <order> [processing|ready|completed|delivered]")}
	}

	var target domain.Status
	if len(args) > 1 {
		st, err := parseStatusArg(strings.Join(args[1:], " "))
		if err != nil {
			return Result{Error: err}
		}
		target = st
	}

	o, err := env.Session.Lifecycle.AdvanceStatus(ctx, args[0], target)
	if err != nil {
		return Result{Error: err}
	}
	return Result{Message: fmt.Sprintf("Order #%d is now %s.", o.Number, o.Label())}
}

func parseStatusArg(s string) (domain.Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processing":
		return domain.StatusProcessing, nil
	case "ready", "ready for pickup":
		return domain.StatusReadyForPickup, nil
	case "completed", "complete":
		return domain.StatusCompleted, nil
	case "delivered":
		return domain.StatusDelivered, nil
	}
	return "", fmt.Errorf("unknown status %q (use processing, ready, completed or delivered)", s)
}

// ProgressCmd records production progress.
// Args: <order> <25|50|75|100>
func ProgressCmd(ctx context.Context, env Env, args []string) Result {
	if len(args) < 2 {
		return Result{Error: errors.New("usage: progress <order> <25|50|75|100>")}
	}

	pct, err := strconv.Atoi(strings.TrimSuffix(args[1], "%"))
	if err != nil {
		return Result{Error: errors.New("progress must be a number")}
	}

	o, err := env.Session.Lifecycle.SetProgress(ctx, args[0], pct)
	if err != nil {
		return Result{Error: err}
	}
	return Result{Message: fmt.Sprintf("Order #%d is now %s.", o.Number, o.Label())}
}

// FinishedCmd summarizes today's finished orders.
func FinishedCmd(env Env) Result {
	if res, ok := notLoaded(env); ok {
		return res
	}
	st := env.Session.Orders.FinishedToday(env.now(), env.location())
	return withStaleNote(env, Result{Message: fmt.Sprintf("Finished today: %d orders (%d delivered), %d pages printed.", st.Finished, st.Delivered, st.Pages)})
}

// SearchCmd searches paid orders.
// Args: [all|processing|ready|completed|delivered] [term...]
func SearchCmd(env Env, args []string) Result {
	if res, ok := notLoaded(env); ok {
		return res
	}

	q := orders.Query{Class: orders.ClassAll}
	if len(args) > 0 {
		if class, ok := orders.ParseStatusClass(args[0]); ok {
			q.Class = class
			args = args[1:]
		}
	}
	q.Term = strings.Join(args, " ")

	list := env.Session.Orders.Search(q)
	if len(list) == 0 {
		return withStaleNote(env, Result{Message: "No matching orders."})
	}
	return withStaleNote(env, Result{Message: formatOrders(list)})
}

// FileCmd returns a link to an order's uploaded document.
// Args: <order>
func FileCmd(ctx context.Context, env Env, args []string) Result {
	if len(args) < 1 {
		return Result{Error: errors.New("usage: file <order>")}
	}
	url, err := env.Session.Lifecycle.DocumentURL(ctx, args[0])
	if err != nil {
		return Result{Error: err}
	}
	return Result{Message: url}
}

// InventoryCmd shows or changes stock.
// No args: list items
// summary: counts by category and status
// adjust <delta> <item>: add or remove stock
// set <quantity> <item>: set stock
// add <category> <quantity> <name>: new item
// rename <item-id> <name>: rename an item
// delete <item>: remove an item (admin only)
func InventoryCmd(ctx context.Context, env Env, args []string) Result {
	ledger := env.Session.Inventory
	if ledger == nil {
		return Result{Error: errors.New("inventory is not available for this account")}
	}
	if ledger.State() == domain.Failed {
		return Result{Error: fmt.Errorf("%w (run reload to retry)", ledger.Err())}
	}

	if len(args) == 0 {
		return withStaleNote(env, showInventory(env))
	}

	subcommand := strings.ToLower(args[0])
	rest := args[1:]

	switch subcommand {
	case "summary":
		return withStaleNote(env, inventorySummary(env))

	case "adjust":
		if len(rest) < 2 {
			return Result{Error: errors.New("usage: inventory adjust <delta> <item>")}
		}
		delta, err := strconv.Atoi(rest[0])
		if err != nil {
			return Result{Error: errors.New("delta must be a number, e.g. -10 or 250")}
		}
		item, ok := ledger.Find(strings.Join(rest[1:], " "))
		if !ok {
			return Result{Error: fmt.Errorf("no inventory item %q", strings.Join(rest[1:], " "))}
		}
		it, err := ledger.AdjustQuantity(ctx, item.ID, delta)
		if err != nil {
			return Result{Error: err}
		}
		return Result{Message: fmt.Sprintf("%s: %d (%s)", it.Name, it.Quantity, it.Status)}

	case "set":
		if len(rest) < 2 {
			return Result{Error: errors.New("usage: inventory set <quantity> <item>")}
		}
		qty, err := strconv.Atoi(rest[0])
		if err != nil {
			return Result{Error: errors.New("quantity must be a number")}
		}
		item, ok := ledger.Find(strings.Join(rest[1:], " "))
		if !ok {
			return Result{Error: fmt.Errorf("no inventory item %q", strings.Join(rest[1:], " "))}
		}
		it, err := ledger.SetItem(ctx, item.ID, domain.ItemFields{Quantity: &qty})
		if err != nil {
			return Result{Error: err}
		}
		return Result{Message: fmt.Sprintf("%s: %d (%s)", it.Name, it.Quantity, it.Status)}

	case "add":
		if len(rest) < 3 {
			return Result{Error: errors.New("usage: inventory add <category> <quantity> <name>")}
		}
		category, err := domain.ParseCategory(rest[0])
		if err != nil {
			return Result{Error: err}
		}
		qty, err := strconv.Atoi(rest[1])
		if err != nil {
			return Result{Error: errors.New("quantity must be a number")}
		}
		it, err := ledger.Create(ctx, strings.Join(rest[2:], " "), category, qty)
		if err != nil {
			return Result{Error: err}
		}
		return Result{Message: fmt.Sprintf("Added %s (%s): %d, id %s", it.Name, it.Category, it.Quantity, it.ID)}

	case "rename":
		if len(rest) < 2 {
			return Result{Error: errors.New("usage: inventory rename <item-id> <name>")}
		}
		name := strings.Join(rest[1:], " ")
		it, err := ledger.SetItem(ctx, rest[0], domain.ItemFields{Name: &name})
		if err != nil {
			return Result{Error: err}
		}
		return Result{Message: fmt.Sprintf("Renamed %s to %s", it.ID, it.Name)}

	case "delete":
		if len(rest) < 1 {
			return Result{Error: errors.New("usage: inventory delete <item>")}
		}
		item, ok := ledger.Find(strings.Join(rest, " "))
		if !ok {
			return Result{Error: fmt.Errorf("no inventory item %q", strings.Join(rest, " "))}
		}
		if err := ledger.Delete(ctx, item.ID); err != nil {
			return Result{Error: err}
		}
		return Result{Message: "Deleted " + item.Name}

	default:
		return Result{Error: fmt.Errorf("unknown subcommand: %s (use summary, adjust, set, add, rename or delete)", subcommand)}
	}
}

func showInventory(env Env) Result {
	items := env.Session.Inventory.Items()
	if len(items) == 0 {
		return Result{Message: "No inventory items."}
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%-20s %-10s %6d  %s  [%s]", it.Name, it.Category, it.Quantity, it.Status, it.ID)
	}
	return Result{Message: strings.Join(lines, "\n")}
}

func inventorySummary(env Env) Result {
	s := env.Session.Inventory.Summary()

	var b strings.Builder
	fmt.Fprintf(&b, "Items: %d, low stock: %d\n", s.Total, s.LowStock)
	b.WriteString("By category:")
	for _, c := range sortedKeys(s.ByCategory) {
		fmt.Fprintf(&b, " %s %d", c, s.ByCategory[domain.Category(c)])
	}
	b.WriteString("\nBy status:")
	for _, st := range sortedKeys(s.ByStatus) {
		fmt.Fprintf(&b, " %s %d", st, s.ByStatus[domain.StockStatus(st)])
	}
	return Result{Message: b.String()}
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}

// RevenueCmd shows daily revenue, expenses and profit.
func RevenueCmd(env Env) Result {
	agg := env.Session.Revenue
	if agg == nil {
		return Result{Error: errors.New("revenue is not available for this account")}
	}
	if res, ok := notLoaded(env); ok {
		return res
	}

	series := agg.Series()
	if len(series) == 0 {
		return withStaleNote(env, Result{Message: "No revenue yet."})
	}

	var b strings.Builder
	b.WriteString("Date        Orders   Revenue  Expenses    Profit\n")
	for _, d := range series {
		fmt.Fprintf(&b, "%s %6d %9s %9s %9s\n", d.Label(), d.Orders, d.Revenue.StringFixed(2), d.Expenses.StringFixed(2), d.Profit.StringFixed(2))
	}
	t := agg.Totals()
	fmt.Fprintf(&b, "Total      %6d %9s %9s %9s", t.Orders, t.Revenue.StringFixed(2), t.Expenses.StringFixed(2), t.Profit.StringFixed(2))
	return withStaleNote(env, Result{Message: b.String()})
}

// StaffCmd manages the roster.
// No args / list: show staff
// add <email> <operator|admin> <name>: add a member
// remove <email>: remove a member
func StaffCmd(ctx context.Context, env Env, args []string) Result {
	if env.Roster == nil {
		return Result{Error: errors.New("staff roster is not configured")}
	}

	if len(args) == 0 || strings.ToLower(args[0]) == "list" {
		return listStaff(ctx, env)
	}

	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 4 {
			return Result{Error: errors.New("usage: staff add <email> <operator|admin> <name>")}
		}
		role, err := identity.ParseRole(args[2])
		if err != nil || !role.IsStaff() {
			return Result{Error: errors.New("role must be operator or admin")}
		}
		s, err := env.Roster.AddStaff(ctx, domain.Staff{
			Name:   strings.Join(args[3:], " "),
			Email:  identity.NormalizeEmail(args[1]),
			Role:   string(role),
			Active: true,
		})
		if errors.Is(err, domain.ErrStaffExists) {
			return Result{Error: fmt.Errorf("%s is already on the roster", args[1])}
		}
		if err != nil {
			return Result{Error: fmt.Errorf("adding staff: %w", err)}
		}
		return Result{Message: fmt.Sprintf("Added %s <%s> as %s", s.Name, s.Email, s.Role)}

	case "remove":
		if len(args) < 2 {
			return Result{Error: errors.New("usage: staff remove <email>")}
		}
		email := identity.NormalizeEmail(args[1])
		err := env.Roster.RemoveStaff(ctx, email)
		if errors.Is(err, domain.ErrStaffNotFound) {
			return Result{Error: fmt.Errorf("%s is not on the roster", email)}
		}
		if err != nil {
			return Result{Error: fmt.Errorf("removing staff: %w", err)}
		}
		return Result{Message: "Removed " + email}

	default:
		return Result{Error: fmt.Errorf("unknown subcommand: %s (use list, add or remove)", args[0])}
	}
}

func listStaff(ctx context.Context, env Env) Result {
	staff, err := env.Roster.ListStaff(ctx)
	if err != nil {
		return Result{Error: fmt.Errorf("listing staff: %w", err)}
	}
	if len(staff) == 0 {
		return Result{Message: "No staff on the roster."}
	}

	lines := make([]string, len(staff))
	for i, s := range staff {
		state := "active"
		if !s.Active {
			state = "inactive"
		}
		lines[i] = fmt.Sprintf("%s <%s> %s, %s", s.Name, s.Email, s.Role, state)
	}
	return Result{Message: strings.Join(lines, "\n")}
}

func ownerLabel(o domain.Order) string {
	if o.OwnerName != "" {
		return o.OwnerName
	}
	return o.OwnerID
}
