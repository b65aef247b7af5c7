package mpesa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tumapay/sacco-wallet/pkg/events"
)

func TestWorkerHandleEvent(t *testing.T) {
	event := events.CallbackEvent{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        0,
		Amount:            500,
		PhoneNumber:       "254712345678",
		ReceiptNumber:     "NLJ7RT61SV",
		Timestamp:         time.Now(),
	}

	t.Run("settles once", func(t *testing.T) {
		repo := &fakeRepo{}
		w := NewSettlementWorker(testConfig(), repo, nil)

		w.handleEvent(event, nil)

		assert.Len(t, repo.settled, 1)
		assert.Equal(t, "ws_CO_1", repo.settled[0].CheckoutRequestID)
	})

	t.Run("duplicate delivery dropped without retry", func(t *testing.T) {
		repo := &fakeRepo{settleErr: ErrAlreadySettled}
		w := NewSettlementWorker(testConfig(), repo, nil)

		// must return without retries and without touching the DLQ
		w.handleEvent(event, nil)

		assert.Empty(t, repo.settled)
	})
}
