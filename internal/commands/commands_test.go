package commands

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	p := Params{
		CycleStart: 1,
		CycleEnd:   3,
		Release:    "001",
		InputGlob:  "/data/cycles/*.h5",
		OutputDir:  "/data/out",
	}

	lines, err := Generate(p, 1, 2)
	require.NoError(t, err)

	// One line per (track, segment): 2 tracks x 3 segments.
	require.Len(t, lines, 6)
	assert.Equal(t,
		"atl06_to_atl11 0001 10 --cycles 01 03 --release 001 --directory '/data/cycles/*.h5' --out /data/out",
		lines[0])
	assert.Equal(t,
		"atl06_to_atl11 0001 11 --cycles 01 03 --release 001 --directory '/data/cycles/*.h5' --out /data/out",
		lines[1])
	assert.Equal(t,
		"atl06_to_atl11 0002 12 --cycles 01 03 --release 001 --directory '/data/cycles/*.h5' --out /data/out",
		lines[5])
}

func TestGenerateCustomTool(t *testing.T) {
	t.Parallel()

	p := Params{Tool: "processor", CycleStart: 2, CycleEnd: 2, Release: "001"}
	lines, err := Generate(p, 1387, 1387)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "processor 1387 10 --cycles 02 02"))
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	good := Params{CycleStart: 1, CycleEnd: 2, Release: "001"}

	cases := []struct {
		name   string
		params Params
		lo, hi int
	}{
		{"track below range", good, 0, 5},
		{"track above range", good, 1, 1388},
		{"inverted tracks", good, 5, 4},
		{"zero cycle start", Params{CycleStart: 0, CycleEnd: 2}, 1, 1},
		{"inverted cycles", Params{CycleStart: 3, CycleEnd: 2}, 1, 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Generate(tc.params, tc.lo, tc.hi)
			assert.Error(t, err)
		})
	}
}

func TestScript(t *testing.T) {
	t.Parallel()

	s := Script([]string{"a 1", "b 2"})
	assert.Equal(t, "a 1\nb 2\n", s)
	assert.True(t, strings.HasSuffix(s, "\n"))
}
