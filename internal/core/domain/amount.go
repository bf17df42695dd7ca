package domain

import (
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	CurrencyName   = "Naira"
	CurrencySymbol = "NGN"
	currencySign   = "₦"
)

type Currency struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type FormattedAmount struct {
	WithCurrency    string `json:"withCurrency"`
	WithoutCurrency string `json:"withoutCurrency"`
}

// Amount is a price expressed in whole currency units, with its minor-unit
// value (kobo) as charged by the payment gateway.
type Amount struct {
	Amount    int64           `json:"amount"`
	Whole     float64         `json:"whole"`
	Currency  Currency        `json:"currency"`
	Formatted FormattedAmount `json:"formatted"`
}

var printer = message.NewPrinter(language.English)

// NewAmount builds an Amount from a whole-unit price. NaN and infinities are
// treated as zero.
func NewAmount(whole float64) Amount {
	if math.IsNaN(whole) || math.IsInf(whole, 0) {
		whole = 0
	}

	minor := decimal.NewFromFloat(whole).Shift(2).Round(0).IntPart()

	sign := ""
	abs := whole
	if whole < 0 {
		sign = "-"
		abs = -whole
	}

	return Amount{
		Amount:   minor,
		Whole:    whole,
		Currency: Currency{Name: CurrencyName, Symbol: CurrencySymbol},
		Formatted: FormattedAmount{
			WithCurrency:    sign + currencySign + printer.Sprintf("%.2f", abs),
			WithoutCurrency: printer.Sprint(number.Decimal(whole, number.MaxFractionDigits(3))),
		},
	}
}

// Times returns the amount for q units, used for line totals.
func (a Amount) Times(q int) Amount {
	total := decimal.NewFromFloat(a.Whole).Mul(decimal.NewFromInt(int64(q)))
	return NewAmount(total.InexactFloat64())
}

// Add sums two amounts on their whole values.
func (a Amount) Add(b Amount) Amount {
	total := decimal.NewFromFloat(a.Whole).Add(decimal.NewFromFloat(b.Whole))
	return NewAmount(total.InexactFloat64())
}
