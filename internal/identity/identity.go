package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/buildtall-systems/printq/internal/domain"
)

// Role is what an actor is allowed to do.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// ParseRole accepts the roster role names.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCustomer:
		return RoleCustomer, nil
	case RoleOperator:
		return RoleOperator, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsStaff reports whether r is operator or admin.
func (r Role) IsStaff() bool { return r == RoleOperator || r == RoleAdmin }

// Actor is the authenticated user driving a session.
type Actor struct {
	ID          string
	Role        Role
	DisplayName string
}

// Provider yields the current actor and notifies when it changes.
type Provider interface {
	Current() Actor
	OnActorChanged(func(Actor))
}

// StaticProvider holds one actor at a time, replaced by Set.
type StaticProvider struct {
	mu       sync.Mutex
	actor    Actor
	handlers []func(Actor)
}

func NewStaticProvider(actor Actor) *StaticProvider {
	return &StaticProvider{actor: actor}
}

func (p *StaticProvider) Current() Actor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actor
}

func (p *StaticProvider) OnActorChanged(fn func(Actor)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, fn)
}

// Set replaces the current actor and runs the change handlers if it differs.
func (p *StaticProvider) Set(actor Actor) {
	p.mu.Lock()
	if p.actor == actor {
		p.mu.Unlock()
		return
	}
	p.actor = actor
	handlers := append([]func(Actor){}, p.handlers...)
	p.mu.Unlock()

	for _, fn := range handlers {
		fn(actor)
	}
}

// Roster looks up staff by email.
type Roster interface {
	GetStaffByEmail(ctx context.Context, email string) (domain.Staff, error)
}

// Resolver maps an email to an actor: configured lists first, then the
// staff roster, otherwise a customer.
type Resolver struct {
	admins    []string
	operators []string
	roster    Roster
}

func NewResolver(admins, operators []string, roster Roster) *Resolver {
	return &Resolver{admins: admins, operators: operators, roster: roster}
}

func (r *Resolver) Resolve(ctx context.Context, email string) (Actor, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return Actor{}, fmt.Errorf("invalid email %q", email)
	}

	actor := Actor{ID: email, Role: RoleCustomer, DisplayName: displayName(email)}
	if contains(r.admins, email) {
		actor.Role = RoleAdmin
		return actor, nil
	}
	if contains(r.operators, email) {
		actor.Role = RoleOperator
		return actor, nil
	}
	if r.roster == nil {
		return actor, nil
	}

	staff, err := r.roster.GetStaffByEmail(ctx, email)
	if errors.Is(err, domain.ErrStaffNotFound) {
		return actor, nil
	}
	if err != nil {
		return Actor{}, fmt.Errorf("looking up staff: %w", err)
	}
	if !staff.Active {
		return actor, nil
	}
	role, err := ParseRole(staff.Role)
	if err != nil {
		return Actor{}, err
	}
	actor.Role = role
	if staff.Name != "" {
		actor.DisplayName = staff.Name
	}
	return actor, nil
}

// NormalizeEmail lowercases and trims an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func displayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func contains(list []string, email string) bool {
	for _, e := range list {
		if NormalizeEmail(e) == email {
			return true
		}
	}
	return false
}
