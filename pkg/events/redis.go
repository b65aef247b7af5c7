package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tumapay/sacco-wallet/pkg/config"
	"github.com/tumapay/sacco-wallet/pkg/logger"
)

const (
	CallbackQueue = "stk_callback_events"
	FailedQueue   = "failed_stk_callback_events"
)

type RedisClient struct {
	Client *redis.Client
}

// CallbackEvent is the settlement payload extracted from a Daraja STK
// callback before it is queued for the worker.
type CallbackEvent struct {
	CheckoutRequestID string    `json:"checkout_request_id"`
	MerchantRequestID string    `json:"merchant_request_id"`
	ResultCode        int       `json:"result_code"`
	ResultDesc        string    `json:"result_desc"`
	Amount            int64     `json:"amount"`
	PhoneNumber       string    `json:"phone_number"`
	ReceiptNumber     string    `json:"receipt_number"`
	Timestamp         time.Time `json:"timestamp"`
}

func NewRedisClient(cfg config.Config) *RedisClient {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to parse Redis url", logger.Fields{"error": err.Error(), "url": cfg.RedisURL})
		opt = &redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		}
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", logger.Fields{"error": err.Error(), "url": cfg.RedisURL})

	} else {
		logger.Info("Connected to Redis", logger.Fields{"url": cfg.RedisURL})
	}

	return &RedisClient{Client: rdb}
}

func (r *RedisClient) PublishEvent(ctx context.Context, event CallbackEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}

	if err := r.Client.RPush(ctx, CallbackQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to redis: %v", err)
	}

	return nil
}

func (r *RedisClient) PushToDLQ(ctx context.Context, data []byte) error {
	if err := r.Client.RPush(ctx, FailedQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to DLQ: %v", err)
	}
	return nil
}
