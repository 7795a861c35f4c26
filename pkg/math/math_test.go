package math

import "testing"

func TestDivRoundUp(t *testing.T) {
	for _, tc := range []struct{ a, b, wanted int }{
		{0, 512, 0},
		{1, 512, 1},
		{512, 512, 1},
		{513, 512, 2},
	} {
		if found := DivRoundUp(tc.a, tc.b); found != tc.wanted {
			t.Fatalf(
				"DivRoundUp(%d, %d): wanted `%d`; found `%d`",
				tc.a,
				tc.b,
				tc.wanted,
				found,
			)
		}
	}
}

func TestMinMax(t *testing.T) {
	if found := Min(3, 7); found != 3 {
		t.Fatalf("Min(3, 7): wanted `3`; found `%d`", found)
	}
	if found := Max(uint16(3), uint16(7)); found != 7 {
		t.Fatalf("Max(3, 7): wanted `7`; found `%d`", found)
	}
}
