package identity

import (
	"fmt"

	"github.com/buildtall-systems/printq/internal/domain"
)

// Action is a role-gated operation.
type Action string

const (
	ActionSubmit         Action = "submit"
	ActionPay            Action = "pay"
	ActionAdvanceStatus  Action = "advance-status"
	ActionSetProgress    Action = "set-progress"
	ActionToggleService  Action = "toggle-service"
	ActionAdjustStock    Action = "adjust-stock"
	ActionEditItem       Action = "edit-item"
	ActionCreateItem     Action = "create-item"
	ActionDeleteItem     Action = "delete-item"
	ActionViewRevenue    Action = "view-revenue"
	ActionManageStaff    Action = "manage-staff"
	ActionViewQueue      Action = "view-queue"
	ActionViewOwnHistory Action = "view-own-history"
)

var permissions = map[Action][]Role{
	ActionSubmit:         {RoleCustomer},
	ActionPay:            {RoleCustomer},
	ActionAdvanceStatus:  {RoleOperator},
	ActionSetProgress:    {RoleOperator},
	ActionToggleService:  {RoleOperator, RoleAdmin},
	ActionAdjustStock:    {RoleOperator, RoleAdmin},
	ActionEditItem:       {RoleOperator, RoleAdmin},
	ActionCreateItem:     {RoleOperator, RoleAdmin},
	ActionDeleteItem:     {RoleAdmin},
	ActionViewRevenue:    {RoleAdmin},
	ActionManageStaff:    {RoleAdmin},
	ActionViewQueue:      {RoleOperator, RoleAdmin},
	ActionViewOwnHistory: {RoleCustomer},
}

// Can reports whether role may perform action.
func Can(role Role, action Action) bool {
	for _, r := range permissions[action] {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize returns a validation error if the actor lacks permission.
func Authorize(actor Actor, action Action) error {
	if Can(actor.Role, action) {
		return nil
	}
	return domain.Invalid(domain.ErrForbidden, "%s is not permitted for %s", action, roleName(actor.Role))
}

func roleName(r Role) string {
	if r == "" {
		return "unknown role"
	}
	return fmt.Sprintf("role %s", r)
}
