// Package rbac provides admin and ownership checks for moderation actions.
package rbac

import "github.com/photonchat/photon/pkg/model"

// adminOnly lists the permissions granted exclusively to admins.
var adminOnly = map[model.Permission]bool{
	model.PermEditAnyMessage:   true,
	model.PermDeleteAnyMessage: true,
	model.PermSetAdminStatus:   true,
	model.PermQueryUsers:       true,
}

// HasPermission checks if an account with the given admin flag holds perm.
func HasPermission(isAdmin bool, perm model.Permission) bool {
	if !adminOnly[perm] {
		return false
	}
	return isAdmin
}

// RequirePermission returns an error message if the account lacks the permission, or empty string if allowed.
func RequirePermission(isAdmin bool, perm model.Permission) string {
	if HasPermission(isAdmin, perm) {
		return ""
	}
	return "permission denied: " + permName(perm) + " requires admin"
}

// CanModifyMessage reports whether requester may edit (or delete, with
// perm = PermDeleteAnyMessage) msg. Authors may always touch their own messages.
func CanModifyMessage(requesterID int64, isAdmin bool, msg *model.Message, perm model.Permission) bool {
	if msg.SenderID == requesterID {
		return true
	}
	return HasPermission(isAdmin, perm)
}

func permName(p model.Permission) string {
	switch p {
	case model.PermEditAnyMessage:
		return "edit_any_message"
	case model.PermDeleteAnyMessage:
		return "delete_any_message"
	case model.PermSetAdminStatus:
		return "set_admin_status"
	case model.PermQueryUsers:
		return "query_users"
	default:
		return "unknown"
	}
}
