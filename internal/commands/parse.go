package commands

import (
	"strings"
)

// Command represents a parsed console command.
type Command struct {
	Name string   // Command name (lowercase)
	Args []string // Arguments after the command name
}

// Known command names
const (
	// Customer commands
	CmdSubmit  = "submit"
	CmdPay     = "pay"
	CmdTrack   = "track"
	CmdHistory = "history"

	// Staff commands
	CmdQueue     = "queue"
	CmdAdvance   = "advance"
	CmdProgress  = "progress"
	CmdFinished  = "finished"
	CmdSearch    = "search"
	CmdFile      = "file"
	CmdInventory = "inventory"
	CmdRevenue   = "revenue"
	CmdStaff     = "staff"

	// Available to everyone
	CmdService = "service"
	CmdReload  = "reload"
	CmdLogin   = "login"
	CmdWhoami  = "whoami"
	CmdHelp    = "help"
)

// Parse extracts a command from a console line.
// Returns nil if the line is empty or contains only whitespace.
func Parse(content string) *Command {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	parts := strings.Fields(content)
	if len(parts) == 0 {
		return nil
	}

	return &Command{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// IsCustomerCommand returns true if the command is meant for customers.
func (c *Command) IsCustomerCommand() bool {
	switch c.Name {
	case CmdSubmit, CmdPay, CmdTrack, CmdHistory:
		return true
	default:
		return false
	}
}

// IsStaffCommand returns true if the command requires an operator or admin.
func (c *Command) IsStaffCommand() bool {
	switch c.Name {
	case CmdQueue, CmdAdvance, CmdProgress, CmdFinished, CmdSearch, CmdFile, CmdInventory, CmdRevenue, CmdStaff:
		return true
	default:
		return false
	}
}

// IsCommonCommand returns true for commands every role may run.
func (c *Command) IsCommonCommand() bool {
	switch c.Name {
	case CmdService, CmdReload, CmdLogin, CmdWhoami, CmdHelp:
		return true
	default:
		return false
	}
}

// IsValid returns true if the command name is recognized.
func (c *Command) IsValid() bool {
	return c.IsCustomerCommand() || c.IsStaffCommand() || c.IsCommonCommand()
}
