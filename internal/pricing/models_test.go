package pricing

import "testing"

func TestTransactionEnumsValid(t *testing.T) {
	if !SourceUserReported.Valid() || TransactionSource("craigslist").Valid() {
		t.Fatal("unexpected source validity")
	}
	if !TypeOfferAccepted.Valid() || TransactionType("").Valid() {
		t.Fatal("unexpected type validity")
	}
	if !ConditionVintage.Valid() || Condition("mint").Valid() {
		t.Fatal("unexpected condition validity")
	}
}
