package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleViewer, ActionRead, true},
		{RoleViewer, ActionWrite, false},
		{RoleViewer, ActionPublish, false},
		{RoleEditor, ActionRead, true},
		{RoleEditor, ActionWrite, true},
		{RoleEditor, ActionPublish, false},
		{RoleEditor, ActionAdmin, false},
		{RolePublisher, ActionWrite, true},
		{RolePublisher, ActionPublish, true},
		{RolePublisher, ActionAdmin, false},
		{RoleAdmin, ActionRead, true},
		{RoleAdmin, ActionPublish, true},
		{RoleAdmin, ActionAdmin, true},
		{Role("bogus"), ActionRead, false},
	}

	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("publisher"); got != RolePublisher {
		t.Errorf("Normalize(publisher) = %s", got)
	}
	if got := Normalize(""); got != RoleViewer {
		t.Errorf("Normalize(empty) = %s, want viewer", got)
	}
	if got := Normalize("superuser"); got != RoleViewer {
		t.Errorf("Normalize(superuser) = %s, want viewer", got)
	}
}
