package reffile

import "testing"

func TestIsDevicePOSIX(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"/dev/sdb", true},
		{"/dev/rdisk2", true},
		{"/home/user/image.bin", false},
		{"rvth.img", false},
	}
	for _, tt := range tests {
		if got := IsDevice(tt.name); got != tt.want {
			t.Errorf("IsDevice(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
