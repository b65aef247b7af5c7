package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreditTxValidatesParameters(t *testing.T) {
	r := &repository{}

	_, err := r.CreditTx(nil, "user-1", 100, "ref-1", TransactionTopUp, MethodMpesa, "")
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestDebitValidatesParameters(t *testing.T) {
	r := &repository{}

	tests := []struct {
		name      string
		userID    string
		amount    int64
		reference string
		txType    TransactionType
	}{
		{"missing user", "", 100, "ref-1", TransactionPayment},
		{"zero amount", "user-1", 0, "ref-1", TransactionPayment},
		{"negative amount", "user-1", -5, "ref-1", TransactionPayment},
		{"missing reference", "user-1", 100, "", TransactionPayment},
		{"missing type", "user-1", 100, "ref-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Debit(tt.userID, tt.amount, tt.reference, tt.txType, MethodWallet, "")
			assert.ErrorIs(t, err, ErrMissingParameter)
		})
	}
}
