package archive_test

import (
	"errors"
	"testing"

	"packsync/internal/archive"
	"packsync/internal/services"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"chart.ksh", "chart.ksh", true},
		{"dir/sub/chart.ksh", "dir/sub/chart.ksh", true},
		{`dir\chart.ksh`, "dir/chart.ksh", true},
		{"dir/", "dir", true},
		{"..hidden", "..hidden", true},
		{"a.b/c..d", "a.b/c..d", true},
		{"", "", false},
		{"../x", "", false},
		{"a/../../x", "", false},
		{"./x", "", false},
		{"a//b", "", false},
		{"/etc/passwd", "", false},
		{`\\server\share`, "", false},
		{"C:/x", "", false},
		{"c:x", "", false},
		{"a/\x00b", "", false},
		{"a\tb", "", false},
	}
	for _, tc := range tests {
		got, err := archive.CleanName(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Errorf("CleanName(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
			}
			continue
		}
		if !errors.Is(err, services.ErrEntryRejected) {
			t.Errorf("CleanName(%q) expected rejection, got %q, %v", tc.in, got, err)
		}
	}
}
