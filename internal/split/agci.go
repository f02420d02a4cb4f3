package split

// PaymentAGCI is the adjusted gross commission income of one payment: its
// amount less an even share of the deal's referral fee and house cut.
// A non-positive payment count is treated as a single payment.
func PaymentAGCI(paymentAmount float64, referralFeeUSD, houseUSD *float64, numberOfPayments int) float64 {
	n := float64(numberOfPayments)
	if numberOfPayments <= 0 {
		n = 1
	}
	return paymentAmount - Value(referralFeeUSD)/n - Value(houseUSD)/n
}
