package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/tumapay/sacco-wallet/pkg/config"
	"github.com/tumapay/sacco-wallet/pkg/events"
	"github.com/tumapay/sacco-wallet/pkg/logger"
)

// SettlementWorker drains the callback queue and applies each result to the
// ledger. Failures retry a few times before landing in the dead-letter
// queue; duplicates are dropped because Settle refuses terminal rows.
type SettlementWorker struct {
	Config      config.Config
	Repo        Repository
	RedisClient *events.RedisClient
}

func NewSettlementWorker(cfg config.Config, repo Repository, redisClient *events.RedisClient) *SettlementWorker {
	return &SettlementWorker{Config: cfg, Repo: repo, RedisClient: redisClient}
}

func (w *SettlementWorker) Start() {
	logger.Info("Starting settlement worker...")
	go w.processEvents()
}

func (w *SettlementWorker) processEvents() {
	for {

		result, err := w.RedisClient.Client.BLPop(context.Background(), 5*time.Second, events.CallbackQueue).Result()
		if err != nil {

			continue
		}

		eventData := []byte(result[1])
		var event events.CallbackEvent
		if err := json.Unmarshal(eventData, &event); err != nil {
			logger.Error("SettlementWorker: Failed to unmarshal event", logger.Fields{"error": err.Error(), "data": string(eventData)})
			w.moveToDLQ(eventData)
			continue
		}

		w.handleEvent(event, eventData)
	}
}

func (w *SettlementWorker) handleEvent(event events.CallbackEvent, rawData []byte) {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		err := w.Repo.Settle(event)

		if err == nil {
			logger.Info("SettlementWorker: Settled callback", logger.Fields{
				logger.CheckoutKey: event.CheckoutRequestID,
				"result_code":      event.ResultCode,
			})
			return
		}

		if errors.Is(err, ErrAlreadySettled) {
			logger.Info("SettlementWorker: Duplicate delivery ignored", logger.Fields{
				logger.CheckoutKey: event.CheckoutRequestID,
			})
			return
		}

		logger.Warn("SettlementWorker: Failed to settle, retrying", logger.Fields{
			logger.CheckoutKey: event.CheckoutRequestID,
			"attempt":          i + 1,
			"error":            err.Error(),
		})
		time.Sleep(time.Duration(i+1) * time.Second)
	}

	logger.Error("SettlementWorker: Max retries exhausted, moving to DLQ", logger.Fields{
		logger.CheckoutKey: event.CheckoutRequestID,
	})
	w.moveToDLQ(rawData)
}

func (w *SettlementWorker) moveToDLQ(data []byte) {
	if err := w.RedisClient.PushToDLQ(context.Background(), data); err != nil {
		logger.Error("SettlementWorker: Failed to push to DLQ", logger.Fields{"error": err.Error()})
	}
}
