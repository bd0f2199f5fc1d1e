package determinism

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyArithmeticIsExact(t *testing.T) {
	a, err := NewMoney("0.1", "USD")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewMoney("0.2", "USD")
	sum := a.Add(b)
	if sum.StringRaw() != "0.3" {
		t.Errorf("0.1 + 0.2 = %s, want 0.3", sum.StringRaw())
	}
	if got := sum.Sub(b); !got.Equal(a) {
		t.Errorf("sub = %s, want %s", got.StringRaw(), a.StringRaw())
	}
}

func TestPercentAndRound(t *testing.T) {
	tests := []struct {
		amount  string
		pct     string
		want    string
		rounded string
	}{
		{"75", "10", "7.5", "7.50"},
		{"49.99", "15", "7.4985", "7.50"},
		{"33.333", "33.3333", "11.110988889", "11.11"},
		{"0.005", "100", "0.005", "0.01"},
	}
	for _, tt := range tests {
		m, err := NewMoney(tt.amount, "USD")
		if err != nil {
			t.Fatal(err)
		}
		got := m.Percent(decimal.RequireFromString(tt.pct))
		if !got.Amount().Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("%s%% of %s = %s, want %s", tt.pct, tt.amount, got.StringRaw(), tt.want)
		}
		if r := got.Round().Amount().StringFixed(CurrencyPlaces); r != tt.rounded {
			t.Errorf("round(%s) = %s, want %s", got.StringRaw(), r, tt.rounded)
		}
	}
}

func TestMixedCurrencyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("adding USD to EUR should panic")
		}
	}()
	Zero("USD").Add(Zero("EUR"))
}

func TestMoneyJSONKeepsPrecision(t *testing.T) {
	m := NewMoneyFromDecimal(decimal.RequireFromString("112.4850"), "USD")
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"amount":"112.485","currency":"USD"}` {
		t.Errorf("marshal = %s", data)
	}
	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(m) || back.Currency() != "USD" {
		t.Errorf("round trip = %s", back)
	}
	if err := json.Unmarshal([]byte(`{"amount":"lots","currency":"USD"}`), &back); err == nil {
		t.Error("expected error for non-decimal amount")
	}
	if !back.Equal(m) {
		t.Errorf("failed decode overwrote the value: %s", back)
	}
}

func TestContentHashIsStable(t *testing.T) {
	a := ComputeHash([]byte("steps"))
	b := ComputeHash([]byte("steps"))
	if a != b {
		t.Error("same input produced different hashes")
	}
	if len(a.Hex()) != 64 {
		t.Errorf("hex length = %d", len(a.Hex()))
	}
	if a.String() != a.Hex()[:16]+"..." {
		t.Errorf("String() = %s", a.String())
	}
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[string]int{"tire_rotation": 1, "brake_pads": 2, "oil_change": 3})
	want := []string{"brake_pads", "oil_change", "tire_rotation"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}
