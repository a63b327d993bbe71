package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/buildtall-systems/printq/internal/commands"
	"github.com/buildtall-systems/printq/internal/identity"
	"github.com/buildtall-systems/printq/internal/inventory"
	"github.com/buildtall-systems/printq/internal/session"
)

// console reads commands line by line and runs them against the current
// actor's session. Login swaps the session through the identity provider.
type console struct {
	deps     session.Deps
	roster   commands.Roster
	resolver *identity.Resolver
	provider *identity.StaticProvider
	loc      *time.Location
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger

	outMu sync.Mutex
	mu    sync.Mutex
	sess  *session.Session
}

func (c *console) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// start opens the current actor's session and follows actor changes.
func (c *console) start(ctx context.Context) error {
	c.provider.OnActorChanged(func(a identity.Actor) {
		if err := c.open(ctx, a); err != nil {
			c.printf("error: %v", err)
		}
	})
	return c.open(ctx, c.provider.Current())
}

// handle runs one input line and reports whether the console should exit.
func (c *console) handle(ctx context.Context, line string) bool {
	cmd := commands.Parse(line)
	if cmd == nil {
		return false
	}
	if cmd.Name == "quit" || cmd.Name == "exit" {
		return true
	}

	res := commands.Execute(ctx, c.env(), cmd)
	if res.Error != nil {
		c.printf("error: %v", res.Error)
		return false
	}
	c.printf("%s", res.Message)

	if res.SwitchTo != "" {
		actor, err := c.resolver.Resolve(ctx, res.SwitchTo)
		if err != nil {
			c.printf("error: %v", err)
			return false
		}
		c.provider.Set(actor)
	}
	return false
}

func (c *console) env() commands.Env {
	c.mu.Lock()
	defer c.mu.Unlock()
	return commands.Env{Session: c.sess, Roster: c.roster, Location: c.loc}
}

// open replaces the current session with one for actor. A session whose
// initial load failed is kept; reload retries it.
func (c *console) open(ctx context.Context, actor identity.Actor) error {
	sess, err := session.Open(ctx, c.deps, actor)
	if sess == nil {
		return fmt.Errorf("opening session for %s: %w", actor.ID, err)
	}
	if err != nil {
		c.printf("warning: %v (run reload to retry)", err)
	}
	if sess.Inventory != nil {
		sess.Inventory.OnAlert(func(a inventory.Alert) {
			c.printf("! %s", a)
		})
	}

	c.mu.Lock()
	old := c.sess
	c.sess = sess
	c.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			c.logger.Warn("closing previous session", "actor", old.Actor.ID, "error", err)
		}
	}

	c.printf("Signed in as %s (%s).", actor.ID, actor.Role)
	return nil
}

func (c *console) close() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
}

func (c *console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(c.out, strings.TrimRight(msg, "\n"))
}
