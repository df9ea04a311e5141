package util

import "testing"

func TestToUint(t *testing.T) {
	tests := []struct {
		in   interface{}
		want uint
		ok   bool
	}{
		{float64(3), 3, true},
		{"12", 12, true},
		{float64(-1), 0, false},
		{float64(1.5), 0, false},
		{"x", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, err := ToUint(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Fatalf("ToUint(%v)=%d err=%v", tt.in, got, err)
		}
	}
}

func TestClosestPowerOf2(t *testing.T) {
	for in, want := range map[uint64]uint64{0: 0, 1: 1, 2: 2, 3: 2, 255: 128, 256: 256, 1000: 512} {
		if got := ClosestPowerOf2(in); got != want {
			t.Fatalf("ClosestPowerOf2(%d)=%d, want %d", in, got, want)
		}
	}
}

func TestUptimeInSec(t *testing.T) {
	if UptimeInSec(1, 2) != 0.01 || UptimeInSec(5, 2) != 3 {
		t.Fatalf("uptime")
	}
}
