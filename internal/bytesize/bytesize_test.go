package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected ByteSize
	}{
		{"0", 0},
		{"1024", 1024},
		{"1b", 1},
		{"1K", 1000},
		{"1Ki", 1024},
		{"1KiB", 1024},
		{"64Mi", 64 * MiB},
		{"2G", 2 * GB},
		{"2Gi", 2 * GiB},
		{"1Ti", TiB},
		{"1.5Ki", 1536},
		{" 512 Mi ", 512 * MiB},
		{"100MB", 100 * MB},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "abc", "12Q", "Mi", "1..5Ki"} {
		input := input
		t.Run(input, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalText(t *testing.T) {
	t.Parallel()

	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("8Mi")))
	assert.Equal(t, 8*MiB, b)

	assert.Error(t, b.UnmarshalText([]byte("bogus")))
}

func TestString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "1.00KiB", KiB.String())
	assert.Equal(t, "1.50MiB", (MiB + 512*KiB).String())
	assert.Equal(t, "2.00GiB", (2 * GiB).String())
	assert.Equal(t, "1.00TiB", TiB.String())
}
