package fees

import (
	"github.com/shopspring/decimal"
)

// Breakdown is the fee split for a single transfer. TotalDebit is the amount
// removed from the sender; the receiver is credited the gross amount only.
type Breakdown struct {
	Commission decimal.Decimal
	VAT        decimal.Decimal
	TotalDebit decimal.Decimal
}

// Calculator computes commission and value-added tax for a gross transfer
// amount. Stateless; rates are fixed at construction and applied in sequence:
// commission on the gross amount, VAT on the commission.
type Calculator struct {
	commissionRate decimal.Decimal
	vatRate        decimal.Decimal
}

func NewCalculator(commissionRate, vatRate decimal.Decimal) *Calculator {
	return &Calculator{
		commissionRate: commissionRate,
		vatRate:        vatRate,
	}
}

// Compute rounds each fee half-up to two decimal places before it feeds the
// next step, so that TotalDebit is always the exact sum of the three figures
// that end up on the ledger record.
func (c *Calculator) Compute(gross decimal.Decimal) Breakdown {
	commission := gross.Mul(c.commissionRate).Round(2)
	vat := commission.Mul(c.vatRate).Round(2)

	return Breakdown{
		Commission: commission,
		VAT:        vat,
		TotalDebit: gross.Add(commission).Add(vat),
	}
}
