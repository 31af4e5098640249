package orders

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/loomledger/loomledger/internal/shared"
)

func TestFeetInchesParsing(t *testing.T) {
	cases := []struct {
		in   FeetInches
		want string
	}{
		{"", "0"},
		{"7", "7"},
		{"7.", "7"},
		{"7.0", "7"},
		{"7.05", "7.4166666666666667"},
		{"7.5", "7.4166666666666667"},
		{"7.10", "7.8333333333333333"},
		{"0.06", "0.5"},
	}
	for _, tc := range cases {
		got, err := tc.in.Feet()
		require.NoError(t, err, string(tc.in))
		require.True(t, got.Equal(decimal.RequireFromString(tc.want)), "%s => %s", tc.in, got)
	}
}

func TestFeetInchesRejectsMalformed(t *testing.T) {
	for _, in := range []FeetInches{"7.12", "abc", "-3.2", "7.5.1", "1e3"} {
		_, err := in.Feet()
		require.ErrorIs(t, err, shared.ErrValidation, string(in))
	}
}

func TestFeetInchesJSONKeepsDigits(t *testing.T) {
	var payload struct {
		Length FeetInches `json:"length"`
		Width  FeetInches `json:"width"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"length": 7.10, "width": "5.06"}`), &payload))
	require.Equal(t, FeetInches("7.10"), payload.Length)
	require.Equal(t, FeetInches("5.06"), payload.Width)
}

func TestComputeWage(t *testing.T) {
	length, err := FeetInches("10.06").Feet()
	require.NoError(t, err)
	width, err := FeetInches("8").Feet()
	require.NoError(t, err)

	wage := ComputeWage(length, width, decimal.NewFromInt(20))
	require.True(t, wage.Equal(decimal.NewFromInt(1680)), wage.String())
	require.True(t, ComputeWage(length, decimal.Zero, decimal.NewFromInt(20)).IsZero())
}
