package format

import "testing"

func TestPrice(t *testing.T) {
	cases := map[float64]string{
		10:     "$ 10",
		4800.5: "$ 4800.5",
		0:      "$ 0",
		0.25:   "$ 0.25",
		1200:   "$ 1200",
	}
	for in, want := range cases {
		if got := Price(in); got != want {
			t.Fatalf("Price(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestCountClampsNegative(t *testing.T) {
	if got := Count(-3); got != "0" {
		t.Fatalf("expected 0, got %s", got)
	}
	if got := Count(7); got != "7" {
		t.Fatalf("expected 7, got %s", got)
	}
}
