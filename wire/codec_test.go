package wire

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Text  string
	Count int
}

func codecRoundTripsProperty(t *testing.T, codec Codec) {
	t.Helper()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(v)) == v", prop.ForAll(
		func(text string, count int) bool {
			want := sample{Text: text, Count: count}
			data, err := codec.Encode(want)
			if err != nil {
				return false
			}
			var got sample
			if err := codec.Decode(data, &got); err != nil {
				return false
			}
			return got == want
		},
		gen.AlphaString(),
		gen.Int(),
	))

	properties.TestingRun(t)
}

func TestJSONCodecRoundTrip(t *testing.T)     { codecRoundTripsProperty(t, JSONCodec{}) }
func TestMsgpackCodecRoundTrip(t *testing.T)  { codecRoundTripsProperty(t, MsgpackCodec{}) }
func TestSimdJSONCodecRoundTrip(t *testing.T) { codecRoundTripsProperty(t, SimdJSONCodec{}) }

func TestCodecIdentity(t *testing.T) {
	require.Equal(t, "application/json", JSONCodec{}.ContentType())
	require.True(t, JSONCodec{}.SupportsStreaming())
	require.Equal(t, "json", JSONCodec{}.Name())

	require.Equal(t, "application/msgpack", MsgpackCodec{}.ContentType())
	require.False(t, MsgpackCodec{}.SupportsStreaming())
	require.Equal(t, "msgpack", MsgpackCodec{}.Name())

	require.Equal(t, "simd-json", SimdJSONCodec{}.Name())
}

func TestJSONCodecDecodeErrorWraps(t *testing.T) {
	var v sample
	err := JSONCodec{}.Decode([]byte("not json"), &v)
	require.Error(t, err)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}
