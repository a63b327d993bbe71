package commands

import (
	"context"
	"os"
	"time"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/session"
)

// Roster manages the staff list.
type Roster interface {
	AddStaff(ctx context.Context, s domain.Staff) (domain.Staff, error)
	RemoveStaff(ctx context.Context, email string) error
	ListStaff(ctx context.Context) ([]domain.Staff, error)
}

// Env holds what command execution needs besides the command itself.
type Env struct {
	Session  *session.Session
	Roster   Roster
	ReadFile func(name string) ([]byte, error)
	Now      func() time.Time
	Location *time.Location
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) location() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.Local
}

func (e Env) readFile(name string) ([]byte, error) {
	if e.ReadFile != nil {
		return e.ReadFile(name)
	}
	return os.ReadFile(name)
}

// Execute runs the command for the session's actor and returns a result.
func Execute(ctx context.Context, env Env, cmd *Command) Result {
	actor := env.Session.Actor
	if err := CanExecute(cmd, actor); err != nil {
		return Result{Error: err}
	}

	switch cmd.Name {
	// Customer commands
	case CmdSubmit:
		return SubmitCmd(ctx, env, cmd.Args)

	case CmdPay:
		return PayCmd(ctx, env, cmd.Args)

	case CmdTrack:
		return TrackCmd(env)

	case CmdHistory:
		return HistoryCmd(env)

	// Staff commands
	case CmdQueue:
		return QueueCmd(env)

	case CmdAdvance:
		return AdvanceCmd(ctx, env, cmd.Args)

	case CmdProgress:
		return ProgressCmd(ctx, env, cmd.Args)

	case CmdFinished:
		return FinishedCmd(env)

	case CmdSearch:
		return SearchCmd(env, cmd.Args)

	case CmdFile:
		return FileCmd(ctx, env, cmd.Args)

	case CmdInventory:
		return InventoryCmd(ctx, env, cmd.Args)

	case CmdRevenue:
		return RevenueCmd(env)

	case CmdStaff:
		return StaffCmd(ctx, env, cmd.Args)

	// Common commands
	case CmdService:
		return ServiceCmd(ctx, env, cmd.Args)

	case CmdReload:
		return ReloadCmd(ctx, env)

	case CmdLogin:
		return LoginCmd(cmd.Args)

	case CmdWhoami:
		return WhoamiCmd(env)

	default:
		return HelpCmd(actor.Role)
	}
}
