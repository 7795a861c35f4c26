package types

import "testing"

func TestByteSectors(t *testing.T) {
	for _, tc := range []struct {
		size   Byte
		wanted int
	}{
		{size: -1, wanted: 0},
		{size: 0, wanted: 0},
		{size: 1, wanted: 1},
		{size: SectorSize, wanted: 1},
		{size: SectorSize + 1, wanted: 2},
		{size: 250 * SectorSize, wanted: 250},
	} {
		if found := tc.size.Sectors(); found != tc.wanted {
			t.Fatalf(
				"Byte(%d).Sectors(): wanted `%d`; found `%d`",
				tc.size,
				tc.wanted,
				found,
			)
		}
	}
}
