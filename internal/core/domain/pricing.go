package domain

// Quote applies a category discount to a base fare. The discount amount is
// rounded up, so the final price rounds down in the carrier's favour:
//
//	discount = ceil(base * percent / 100)
//	final    = base - discount
func Quote(base int64, discountPercent int) int64 {
	if discountPercent <= 0 {
		return base
	}
	if discountPercent >= 100 {
		return 0
	}
	discount := (base*int64(discountPercent) + 99) / 100
	return base - discount
}
