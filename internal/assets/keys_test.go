package assets

import "testing"

func TestStorageKeys(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"avatar png", AvatarKey("usr_1", "me.PNG"), "avatars/usr_1.png"},
		{"avatar no ext", AvatarKey("usr_1", "me"), "avatars/usr_1.bin"},
		{"avatar exe rejected", AvatarKey("usr_1", "payload.exe"), "avatars/usr_1.bin"},
		{"spotlight jpeg", SpotlightKey("spot_9", "hero.jpeg"), "spotlights/spot_9.jpeg"},
		{"preview", PreviewKey("lp_2"), "previews/lp_2.png"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}
