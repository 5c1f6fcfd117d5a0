package wire

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLineDecoderInterleaving verifies the streaming invariant: values
// fed across several Feed calls, with arbitrary split points and blank
// lines interspersed, decode in order with none lost or duplicated.
func TestLineDecoderInterleaving(t *testing.T) {
	d := NewLineDecoder(context.Background(), JSONCodec{}, 0)

	var raw string
	for i := 0; i < 5; i++ {
		raw += fmt.Sprintf(`{"Text":"msg-%d","Count":%d}`, i, i) + "\n\n"
	}

	// Feed byte-by-byte to exercise the partial-buffer path.
	for i := 0; i < len(raw); i++ {
		d.Feed([]byte{raw[i]})
	}

	for i := 0; i < 5; i++ {
		var got sample
		ok, err := d.TryDecode(&got)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("msg-%d", i), got.Text)
		require.Equal(t, i, got.Count)
	}

	ok, err := d.TryDecode(&struct{}{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLineDecoderOverflowDiscardsAndResumes(t *testing.T) {
	d := NewLineDecoder(context.Background(), JSONCodec{}, 16)

	d.Feed([]byte("this line has no terminator and exceeds the max buffer size by a good margin"))
	var discarded sample
	ok, err := d.TryDecode(&discarded)
	require.NoError(t, err)
	require.False(t, ok)

	d.Feed([]byte(`{"Text":"after-overflow","Count":1}` + "\n"))
	var got sample
	ok, err = d.TryDecode(&got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "after-overflow", got.Text)
}

func TestLineDecoderResetDiscardsBuffered(t *testing.T) {
	d := NewLineDecoder(context.Background(), JSONCodec{}, 0)
	d.Feed([]byte(`{"Text":"partial`))
	d.Reset()
	d.Feed([]byte(`{"Text":"full","Count":2}` + "\n"))

	var got sample
	ok, err := d.TryDecode(&got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "full", got.Text)
	require.Equal(t, 2, got.Count)
}
