package domain

import (
	"math"
	"testing"
)

func TestNewAmount(t *testing.T) {
	tests := []struct {
		name        string
		whole       float64
		minor       int64
		withSign    string
		withoutSign string
	}{
		{"thousands", 1000, 100000, "₦1,000.00", "1,000"},
		{"fraction", 1000.5, 100050, "₦1,000.50", "1,000.5"},
		{"cents", 19.99, 1999, "₦19.99", "19.99"},
		{"zero", 0, 0, "₦0.00", "0"},
		{"negative", -5, -500, "-₦5.00", "-5"},
		{"nan", math.NaN(), 0, "₦0.00", "0"},
		{"inf", math.Inf(1), 0, "₦0.00", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAmount(tt.whole)
			if a.Amount != tt.minor {
				t.Errorf("Amount = %d, want %d", a.Amount, tt.minor)
			}
			if a.Formatted.WithCurrency != tt.withSign {
				t.Errorf("WithCurrency = %q, want %q", a.Formatted.WithCurrency, tt.withSign)
			}
			if a.Formatted.WithoutCurrency != tt.withoutSign {
				t.Errorf("WithoutCurrency = %q, want %q", a.Formatted.WithoutCurrency, tt.withoutSign)
			}
			if a.Currency.Symbol != CurrencySymbol || a.Currency.Name != CurrencyName {
				t.Errorf("Currency = %+v", a.Currency)
			}
		})
	}
}

func TestAmount_TimesAndAdd(t *testing.T) {
	if got := NewAmount(0.1).Times(3); got.Amount != 30 || got.Whole != 0.3 {
		t.Errorf("0.1 x 3 = %+v, want 30 minor and 0.3 whole", got)
	}
	if got := NewAmount(0.1).Add(NewAmount(0.2)); got.Amount != 30 || got.Whole != 0.3 {
		t.Errorf("0.1 + 0.2 = %+v, want 30 minor and 0.3 whole", got)
	}
	if got := NewAmount(10).Times(0); got.Amount != 0 {
		t.Errorf("10 x 0 = %d, want 0", got.Amount)
	}
}

func TestCartLine_ChargeMinor(t *testing.T) {
	line := CartLine{Product: ProductSnapshot{Amount: NewAmount(10)}, Quantity: 2}
	if got := line.ChargeMinor(); got != 2000 {
		t.Errorf("ChargeMinor = %d, want 2000", got)
	}
	if got := line.Total().Formatted.WithCurrency; got != "₦20.00" {
		t.Errorf("Total = %q, want ₦20.00", got)
	}
}
