package mpesa

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/tumapay/sacco-wallet/pkg/events"
)

// Daraja delivers the STK result in a nested envelope. Metadata items are a
// name/value list rather than fixed fields, and Value switches between
// number and string per item.
type CallbackEnvelope struct {
	Body CallbackBody `json:"Body"`
}

type CallbackBody struct {
	StkCallback *StkCallback `json:"stkCallback"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// ParseCallback validates the envelope shape and flattens it into the event
// queued for settlement. A success result without the metadata block is
// malformed; individual missing items degrade to zero values and are dealt
// with at settlement time.
func ParseCallback(body []byte) (*events.CallbackEvent, error) {
	var envelope CallbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, ErrMalformedCallback
	}

	cb := envelope.Body.StkCallback
	if cb == nil || cb.CheckoutRequestID == "" {
		return nil, ErrMalformedCallback
	}

	event := events.CallbackEvent{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		Timestamp:         time.Now(),
	}

	if cb.ResultCode == 0 {
		if cb.CallbackMetadata == nil {
			return nil, ErrMalformedCallback
		}

		for _, item := range cb.CallbackMetadata.Item {
			switch item.Name {
			case "Amount":
				event.Amount = toAmount(item.Value)
			case "PhoneNumber":
				event.PhoneNumber = toStringValue(item.Value)
			case "MpesaReceiptNumber":
				event.ReceiptNumber = toStringValue(item.Value)
			}
		}
	}

	return &event, nil
}

func toAmount(v interface{}) int64 {
	if f, ok := v.(float64); ok {
		return int64(math.Round(f))
	}
	return 0
}

func toStringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return ""
	}
}
