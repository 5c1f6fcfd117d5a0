package wire

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// TestMessageIDRoundTripProperty verifies MarshalJSON/UnmarshalJSON
// preserve identity across decode/encode for every MessageID kind.
func TestMessageIDRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("number ids round-trip", prop.ForAll(
		func(n int64) bool {
			id := NewNumberMessageID(n)
			data, err := json.Marshal(id)
			if err != nil {
				return false
			}
			var got MessageID
			if err := json.Unmarshal(data, &got); err != nil {
				return false
			}
			return got.Kind == MessageIDNumber && got.Num == n
		},
		gen.Int64(),
	))

	properties.Property("non-uuid string ids round-trip", prop.ForAll(
		func(s string) bool {
			if _, err := uuid.Parse(s); err == nil {
				return true // not a valid case for this property
			}
			id := NewStringMessageID(s)
			data, err := json.Marshal(id)
			if err != nil {
				return false
			}
			var got MessageID
			if err := json.Unmarshal(data, &got); err != nil {
				return false
			}
			return got.Kind == MessageIDString && got.Str == s
		},
		gen.AlphaString(),
	))

	properties.Property("uuid ids round-trip", prop.ForAll(
		func(seed int64) bool {
			id := NewUUIDMessageID()
			data, err := json.Marshal(id)
			if err != nil {
				return false
			}
			var got MessageID
			if err := json.Unmarshal(data, &got); err != nil {
				return false
			}
			return got.Kind == MessageIDUUID && got.UUID == id.UUID
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestMessageIDNotificationMarshalsNull(t *testing.T) {
	var id MessageID
	data, err := json.Marshal(id)
	require.NoError(t, err)
	require.Equal(t, "null", string(data))
	require.True(t, id.IsNotification())

	var got MessageID
	require.NoError(t, json.Unmarshal(data, &got))
	require.True(t, got.IsNotification())
}
