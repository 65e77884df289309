package shared

// PaymentMethod enumerates how a sale payment or cash movement settles.
type PaymentMethod string

const (
	// MethodCash settles immediately through the drawer.
	MethodCash PaymentMethod = "CASH"
	// MethodDebit settles immediately via debit card.
	MethodDebit PaymentMethod = "DEBIT"
	// MethodCredit settles immediately via credit card.
	MethodCredit PaymentMethod = "CREDIT"
	// MethodPix settles immediately via instant transfer.
	MethodPix PaymentMethod = "PIX"
	// MethodStoreCredit defers settlement; installments are paid later.
	MethodStoreCredit PaymentMethod = "STORE_CREDIT"
)

// Known reports whether the method is one of the supported values.
func (m PaymentMethod) Known() bool {
	switch m {
	case MethodCash, MethodDebit, MethodCredit, MethodPix, MethodStoreCredit:
		return true
	}
	return false
}

// Immediate reports whether the method moves money at sale time.
// Deferred methods create no ledger movement until settlement.
func (m PaymentMethod) Immediate() bool {
	return m.Known() && m != MethodStoreCredit
}
