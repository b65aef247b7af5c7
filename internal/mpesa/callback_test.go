package mpesa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const successCallback = `{
	"Body": {
		"stkCallback": {
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"CallbackMetadata": {
				"Item": [
					{"Name": "Amount", "Value": 500.00},
					{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
					{"Name": "TransactionDate", "Value": 20191219102115},
					{"Name": "PhoneNumber", "Value": 254712345678}
				]
			}
		}
	}
}`

const failedCallback = `{
	"Body": {
		"stkCallback": {
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResultCode": 1032,
			"ResultDesc": "Request cancelled by user."
		}
	}
}`

func TestParseCallbackSuccess(t *testing.T) {
	event, err := ParseCallback([]byte(successCallback))
	assert.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", event.CheckoutRequestID)
	assert.Equal(t, 0, event.ResultCode)
	assert.Equal(t, int64(500), event.Amount)
	assert.Equal(t, "254712345678", event.PhoneNumber)
	assert.Equal(t, "NLJ7RT61SV", event.ReceiptNumber)
}

func TestParseCallbackFailure(t *testing.T) {
	event, err := ParseCallback([]byte(failedCallback))
	assert.NoError(t, err)
	assert.Equal(t, 1032, event.ResultCode)
	assert.Equal(t, "Request cancelled by user.", event.ResultDesc)
	assert.Zero(t, event.Amount)
	assert.Empty(t, event.ReceiptNumber)
}

func TestParseCallbackMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not-json`},
		{"empty object", `{}`},
		{"missing stkCallback", `{"Body": {}}`},
		{"missing checkout id", `{"Body": {"stkCallback": {"ResultCode": 0}}}`},
		{"success without metadata", `{"Body": {"stkCallback": {"CheckoutRequestID": "ws_CO_1", "ResultCode": 0}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCallback([]byte(tt.body))
			assert.ErrorIs(t, err, ErrMalformedCallback)
		})
	}
}

// individual metadata items may be missing without failing the parse
func TestParseCallbackPartialMetadata(t *testing.T) {
	body := `{"Body": {"stkCallback": {"CheckoutRequestID": "ws_CO_1", "ResultCode": 0,
		"CallbackMetadata": {"Item": [{"Name": "Amount", "Value": 120}]}}}}`

	event, err := ParseCallback([]byte(body))
	assert.NoError(t, err)
	assert.Equal(t, int64(120), event.Amount)
	assert.Empty(t, event.PhoneNumber)
	assert.Empty(t, event.ReceiptNumber)
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}
