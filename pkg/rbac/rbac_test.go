package rbac

import (
	"strings"
	"testing"

	"github.com/photonchat/photon/pkg/model"
)

func TestHasPermission(t *testing.T) {
	perms := []model.Permission{
		model.PermEditAnyMessage,
		model.PermDeleteAnyMessage,
		model.PermSetAdminStatus,
		model.PermQueryUsers,
	}
	for _, p := range perms {
		if !HasPermission(true, p) {
			t.Errorf("admin lacks %s", permName(p))
		}
		if HasPermission(false, p) {
			t.Errorf("non-admin holds %s", permName(p))
		}
	}
	if HasPermission(true, model.Permission(99)) {
		t.Errorf("unknown permission granted")
	}
}

func TestRequirePermission(t *testing.T) {
	if msg := RequirePermission(true, model.PermSetAdminStatus); msg != "" {
		t.Errorf("admin: got %q, want empty", msg)
	}
	msg := RequirePermission(false, model.PermSetAdminStatus)
	if !strings.Contains(msg, "set_admin_status") {
		t.Errorf("non-admin: got %q", msg)
	}
}

func TestCanModifyMessage(t *testing.T) {
	msg := &model.Message{ID: 1, SenderID: 5}

	tests := map[string]struct {
		requester int64
		admin     bool
		want      bool
	}{
		"author":           {requester: 5, want: true},
		"other user":       {requester: 6, want: false},
		"admin non-author": {requester: 6, admin: true, want: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := CanModifyMessage(tc.requester, tc.admin, msg, model.PermEditAnyMessage); got != tc.want {
				t.Errorf("CanModifyMessage = %v, want %v", got, tc.want)
			}
		})
	}
}
