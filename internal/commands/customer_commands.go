package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/buildtall-systems/printq/internal/documents"
	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/identity"
	"github.com/buildtall-systems/printq/internal/lifecycle"
	"github.com/buildtall-systems/printq/internal/orders"
)

// Result holds the response from a command execution.
type Result struct {
	Message string
	Error   error
	// SwitchTo is set by login to the email the host should switch to.
	SwitchTo string
}

// SubmitCmd uploads a PDF and places an order.
// Args: <file> [copies] [color|bw] [duplex] [normal|glossy|matte] [note=...]
func SubmitCmd(ctx context.Context, env Env, args []string) Result {
	if len(args) < 1 {
		return Result{Error: errors.New("usage: submit <file.pdf> [copies] [color] [duplex] [normal|glossy|matte] [note=...]")}
	}

	opts, err := parsePrintOptions(args[1:])
	if err != nil {
		return Result{Error: err}
	}

	data, err := env.readFile(args[0])
	if err != nil {
		return Result{Error: fmt.Errorf("reading %s: %w", args[0], err)}
	}

	o, err := env.Session.Lifecycle.Submit(ctx, lifecycle.SubmitRequest{
		File:    documents.File{Name: filepath.Base(args[0]), Data: data},
		Options: opts,
	})
	if err != nil {
		return Result{Error: err}
	}

	return Result{Message: fmt.Sprintf("Order #%d placed: %s. Total ₹%d. Pay with: pay %d", o.Number, describeOptions(o.Options), o.Price, o.Number)}
}

func parsePrintOptions(args []string) (domain.PrintOptions, error) {
	opts := domain.PrintOptions{Copies: 1, Finish: domain.FinishNormal}
	for i, arg := range args {
		lower := strings.ToLower(arg)
		if note, ok := strings.CutPrefix(arg, "note="); ok {
			opts.Note = strings.TrimSpace(strings.Join(append([]string{note}, args[i+1:]...), " "))
			break
		}
		if n, err := strconv.Atoi(arg); err == nil {
			opts.Copies = n
			continue
		}
		switch lower {
		case "color", "colour":
			opts.Color = true
			continue
		case "bw", "mono":
			opts.Color = false
			continue
		case "duplex", "double":
			opts.Duplex = true
			continue
		}
		finish, err := domain.ParseFinish(arg)
		if err != nil {
			return domain.PrintOptions{}, fmt.Errorf("unknown option %q", arg)
		}
		opts.Finish = finish
	}
	return opts, nil
}

// PayCmd pays for a pending order.
// Args: <order> [gpay|qrcode]
func PayCmd(ctx context.Context, env Env, args []string) Result {
	if len(args) < 1 {
		return Result{Error: errors.New("usage: pay <order> [gpay|qrcode]")}
	}

	var method domain.PaymentMethod
	if len(args) > 1 {
		m, err := domain.ParsePaymentMethod(strings.ToLower(args[1]))
		if err != nil {
			return Result{Error: err}
		}
		method = m
	}

	o, err := env.Session.Lifecycle.Pay(ctx, args[0], method)
	if err != nil {
		return Result{Error: err}
	}

	return Result{Message: fmt.Sprintf("Paid ₹%d for order #%d. Your pickup code is %s.", o.Price, o.Number, o.VerificationToken)}
}

// TrackCmd lists the customer's paid orders that are still in progress.
func TrackCmd(env Env) Result {
	if res, ok := notLoaded(env); ok {
		return res
	}
	list := env.Session.Orders.ViewByActorRole(identity.RoleCustomer)
	if len(list) == 0 {
		return withStaleNote(env, Result{Message: "No orders in progress."})
	}

	var b strings.Builder
	for i, o := range list {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatOrder(o))
		if o.VerificationToken != "" {
			fmt.Fprintf(&b, " (pickup code %s)", o.VerificationToken)
		}
	}
	return withStaleNote(env, Result{Message: b.String()})
}

// HistoryCmd lists every order the customer has placed.
func HistoryCmd(env Env) Result {
	if res, ok := notLoaded(env); ok {
		return res
	}
	list := env.Session.Orders.View(orders.ViewHistory)
	if len(list) == 0 {
		return withStaleNote(env, Result{Message: "No orders yet."})
	}
	return withStaleNote(env, Result{Message: formatOrders(list)})
}

// ServiceCmd shows availability, or changes it for staff.
// Args: [on|off|toggle]
func ServiceCmd(ctx context.Context, env Env, args []string) Result {
	if len(args) == 0 {
		if env.Session.Service.Online() {
			return withStaleNote(env, Result{Message: "The print shop is online."})
		}
		return withStaleNote(env, Result{Message: "The print shop is offline."})
	}

	var (
		s   domain.ServiceStatus
		err error
	)
	switch strings.ToLower(args[0]) {
	case "on", "online":
		s, err = env.Session.Lifecycle.SetService(ctx, true)
	case "off", "offline":
		s, err = env.Session.Lifecycle.SetService(ctx, false)
	case "toggle":
		s, err = env.Session.Lifecycle.ToggleService(ctx)
	default:
		return Result{Error: errors.New("usage: service [on|off|toggle]")}
	}
	if err != nil {
		return Result{Error: err}
	}

	if s.Online {
		return Result{Message: "Service switched online."}
	}
	return Result{Message: "Service switched offline. New orders are paused."}
}

// ReloadCmd re-fetches every projection.
func ReloadCmd(ctx context.Context, env Env) Result {
	if err := env.Session.Reload(ctx); err != nil {
		return Result{Error: err}
	}
	return Result{Message: "Reloaded."}
}

// LoginCmd asks the host to switch actor.
// Args: <email>
func LoginCmd(args []string) Result {
	if len(args) < 1 {
		return Result{Error: errors.New("usage: login <email>")}
	}
	email := identity.NormalizeEmail(args[0])
	if !strings.Contains(email, "@") {
		return Result{Error: fmt.Errorf("%q is not an email address", args[0])}
	}
	return Result{Message: "Switching to " + email, SwitchTo: email}
}

// WhoamiCmd shows the current actor.
func WhoamiCmd(env Env) Result {
	a := env.Session.Actor
	name := a.DisplayName
	if name == "" {
		name = a.ID
	}
	return Result{Message: fmt.Sprintf("%s <%s> (%s)", name, a.ID, a.Role)}
}

// HelpCmd returns the command list for a role.
func HelpCmd(role identity.Role) Result {
	msg := "Commands:\n"
	switch role {
	case identity.RoleCustomer:
		msg += "  submit <file.pdf> [copies] [color] [duplex] [normal|glossy|matte] [note=...]\n"
		msg += "  pay <order> [gpay|qrcode] - pay and get a pickup code\n"
		msg += "  track - orders in progress\n"
		msg += "  history - all your orders\n"
	default:
		if identity.Can(role, identity.ActionAdvanceStatus) {
			msg += "  advance <order> [processing|ready|completed|delivered]\n"
			msg += "  progress <order> <25|50|75|100>\n"
		}
		msg += "  queue - paid orders in progress\n"
		msg += "  finished - orders finished today\n"
		msg += "  search [all|processing|ready|completed|delivered] [term]\n"
		msg += "  file <order> - link to the order's document\n"
		msg += "  inventory [summary|adjust|set|add|rename|delete] ...\n"
		if identity.Can(role, identity.ActionViewRevenue) {
			msg += "  revenue - daily revenue, expenses and profit\n"
			msg += "  staff [list|add|remove] ...\n"
		}
	}
	msg += "  service [on|off|toggle] - shop availability\n"
	msg += "  reload - re-fetch everything\n"
	msg += "  login <email>, whoami, help"
	return Result{Message: msg}
}

func notLoaded(env Env) (Result, bool) {
	if env.Session.Orders.State() == domain.Failed {
		return Result{Error: fmt.Errorf("%w (run reload to retry)", env.Session.Orders.Err())}, true
	}
	return Result{}, false
}

func withStaleNote(env Env, r Result) Result {
	if env.Session.Stale() != nil {
		r.Message += "\n(connection lost: this may be out of date)"
	}
	return r
}

func describeOptions(o domain.PrintOptions) string {
	color := "B&W"
	if o.Color {
		color = "color"
	}
	sides := "single-sided"
	if o.Duplex {
		sides = "double-sided"
	}
	return fmt.Sprintf("%d× %s %s %s", o.Copies, color, strings.ToLower(string(o.Finish)), sides)
}

func formatOrder(o domain.Order) string {
	return fmt.Sprintf("#%d %s: %s, ₹%d, %s", o.Number, o.DocumentName, describeOptions(o.Options), o.ComputedPrice(), o.Label())
}

func formatOrders(list []domain.Order) string {
	lines := make([]string, len(list))
	for i, o := range list {
		lines[i] = formatOrder(o)
	}
	return strings.Join(lines, "\n")
}
