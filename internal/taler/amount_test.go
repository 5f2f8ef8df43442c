package taler_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abilian/taler-go/internal/taler"
)

func TestParseAmount(t *testing.T) {
	a, err := taler.ParseAmount("EUR:10.0")
	require.NoError(t, err)
	require.Equal(t, "EUR", a.Currency)
	require.Equal(t, "10.0", a.Value)
	require.Equal(t, "EUR:10.0", a.String())

	a, err = taler.ParseAmount("kudos:5")
	require.NoError(t, err)
	require.Equal(t, "KUDOS", a.Currency)
}

func TestParseAmountRejects(t *testing.T) {
	for _, s := range []string{
		"",
		"EUR",
		"EUR:",
		":10",
		"EUR:ten",
		"EUR:1.2.3",
		"EUR:1.",
		"EUR:-1",
	} {
		_, err := taler.ParseAmount(s)
		require.Error(t, err, s)
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(taler.NewAmount("EUR", "0.5"))
	require.NoError(t, err)
	require.Equal(t, `"EUR:0.5"`, string(data))

	var a taler.Amount
	require.NoError(t, json.Unmarshal([]byte(`"CHF:2.25"`), &a))
	require.Equal(t, "CHF", a.Currency)
	require.Equal(t, "2.25", a.Value)

	require.Error(t, json.Unmarshal([]byte(`"nope"`), &a))
}
