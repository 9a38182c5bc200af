// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package numeric

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeAdd(t *testing.T) {
	sum, overflow := SafeAdd(1, 2)
	require.False(t, overflow)
	require.Equal(t, uint64(3), sum)

	_, overflow = SafeAdd(MaxUint64, 1)
	require.True(t, overflow)
}

func TestParseUint64(t *testing.T) {
	cases := map[string]uint64{
		"":     0,
		"0":    0,
		"42":   42,
		"0x2a": 42,
		"0X2A": 42,
	}
	for in, want := range cases {
		got, ok := ParseUint64(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}

	_, ok := ParseUint64("not-a-number")
	require.False(t, ok)
}

func TestMustParseUint64Panics(t *testing.T) {
	require.Panics(t, func() { MustParseUint64("nope") })
}
