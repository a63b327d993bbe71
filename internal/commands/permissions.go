package commands

import (
	"fmt"

	"github.com/buildtall-systems/printq/internal/identity"
)

// commandActions maps each gated command to the action it performs. Commands
// with several subcommands map to their read action; writes are checked
// again by the component that performs them.
var commandActions = map[string]identity.Action{
	CmdSubmit:    identity.ActionSubmit,
	CmdPay:       identity.ActionPay,
	CmdTrack:     identity.ActionViewOwnHistory,
	CmdHistory:   identity.ActionViewOwnHistory,
	CmdQueue:     identity.ActionViewQueue,
	CmdAdvance:   identity.ActionAdvanceStatus,
	CmdProgress:  identity.ActionSetProgress,
	CmdFinished:  identity.ActionViewQueue,
	CmdSearch:    identity.ActionViewQueue,
	CmdFile:      identity.ActionViewQueue,
	CmdInventory: identity.ActionViewQueue,
	CmdRevenue:   identity.ActionViewRevenue,
	CmdStaff:     identity.ActionManageStaff,
}

// CanExecute returns an error if the actor lacks permission to run the command.
func CanExecute(cmd *Command, actor identity.Actor) error {
	if !cmd.IsValid() {
		return fmt.Errorf("unknown command %q (try help)", cmd.Name)
	}
	action, gated := commandActions[cmd.Name]
	if !gated {
		return nil
	}
	return identity.Authorize(actor, action)
}
