package supplier

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseInt(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  int64
	}{
		{name: "plain", input: "25", want: 25},
		{name: "padded", input: " 12 ", want: 12},
		{name: "json number", input: json.Number("10"), want: 10},
		{name: "float64", input: float64(20), want: 20},
		{name: "decimal comma truncates", input: "12,9", want: 12},
		{name: "decimal dot truncates", input: "7.5", want: 7},
		{name: "negative truncates toward zero", input: "-3,7", want: -3},
		{name: "json float number", input: json.Number("4.0"), want: 4},
		{name: "empty", input: "", want: 0},
		{name: "garbage", input: "abc", want: 0},
		{name: "grouped thousands is not an int", input: "1.000,5", want: 0},
		{name: "nil", input: nil, want: 0},
		{name: "bool", input: true, want: 0},
		{name: "nan", input: "NaN", want: 0},
		{name: "inf", input: "inf", want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseInt(tc.input); got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  string
	}{
		{name: "dot", input: "0.35", want: "0.35"},
		{name: "comma is decimal separator", input: "0,35", want: "0.35"},
		{name: "padded", input: " 1,5 ", want: "1.5"},
		{name: "json number", input: json.Number("0.42"), want: "0.42"},
		{name: "float64", input: float64(0.25), want: "0.25"},
		{name: "integer text", input: "2", want: "2"},
		{name: "thousands comma is not grouping", input: "1,234.5", want: "0"},
		{name: "empty", input: "", want: "0"},
		{name: "garbage", input: "n/a", want: "0"},
		{name: "nil", input: nil, want: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseDecimal(tc.input)
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestIsFalsy(t *testing.T) {
	for _, v := range []any{nil, "", false, json.Number("0"), float64(0), 0} {
		if !isFalsy(v) {
			t.Fatalf("%#v should be falsy", v)
		}
	}
	for _, v := range []any{"0", "x", json.Number("2"), float64(1), true} {
		if isFalsy(v) {
			t.Fatalf("%#v should not be falsy", v)
		}
	}
}
