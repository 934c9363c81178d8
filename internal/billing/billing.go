// Package billing derives invoice payment state and aggregates workshop
// finances. Amounts are decimals end to end; status is always recomputed
// from the recorded totals, never stored arithmetic.
package billing

import (
	"github.com/atelierhq/api/internal/enum"
	"github.com/shopspring/decimal"
)

// DeriveStatus computes the payment status an invoice should carry given
// its total and the sum of its payments. A cancelled invoice stays
// cancelled no matter what is paid against it.
func DeriveStatus(current string, total, paid decimal.Decimal) string {
	if current == enum.InvoiceStatusCancelled {
		return enum.InvoiceStatusCancelled
	}
	switch {
	case paid.LessThanOrEqual(decimal.Zero):
		return enum.InvoiceStatusUnpaid
	case paid.LessThan(total):
		return enum.InvoiceStatusPartiallyPaid
	default:
		return enum.InvoiceStatusPaid
	}
}

// Outstanding is the remaining balance on an invoice, floored at zero so
// overpayment never reports a negative debt.
func Outstanding(total, paid decimal.Decimal) decimal.Decimal {
	out := total.Sub(paid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// Line is one invoice's contribution to a finance summary.
type Line struct {
	Status string
	Total  decimal.Decimal
	Paid   decimal.Decimal
}

// Summary aggregates the workshop's receivables.
type Summary struct {
	Revenue        decimal.Decimal `json:"revenue"`
	Pending        decimal.Decimal `json:"pending"`
	InvoiceCount   int             `json:"invoice_count"`
	UnpaidCount    int             `json:"unpaid_count"`
	PartialCount   int             `json:"partially_paid_count"`
	PaidCount      int             `json:"paid_count"`
	CancelledCount int             `json:"cancelled_count"`
}

// Summarize folds invoices into revenue and pending figures. Cancelled
// invoices are counted but contribute nothing to either figure. Pending
// uses the raw total-minus-paid difference, so an overpaid invoice offsets
// other debts rather than being clipped per line.
func Summarize(lines []Line) Summary {
	s := Summary{
		Revenue: decimal.Zero,
		Pending: decimal.Zero,
	}
	for _, l := range lines {
		s.InvoiceCount++
		switch l.Status {
		case enum.InvoiceStatusCancelled:
			s.CancelledCount++
			continue
		case enum.InvoiceStatusUnpaid:
			s.UnpaidCount++
		case enum.InvoiceStatusPartiallyPaid:
			s.PartialCount++
		case enum.InvoiceStatusPaid:
			s.PaidCount++
		}
		s.Revenue = s.Revenue.Add(l.Paid)
		s.Pending = s.Pending.Add(l.Total.Sub(l.Paid))
	}
	return s
}
