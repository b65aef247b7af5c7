package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUrl                string
	RedisURL             string
	RedisPassword        string
	GoogleClientID       string
	GoogleClientSecret   string
	JWTSecret            string
	DarajaBaseURL        string
	DarajaConsumerKey    string
	DarajaConsumerSecret string
	DarajaShortcode      string
	DarajaPasskey        string
	CallbackBaseURL      string
	MinTopupAmount       int64
	MaxActiveKeys        int
	Port                 string
	Host                 string
	Env                  string
	AllowedOrigins       []string
}

func LoadConfig() Config {
	godotenv.Load()

	minAmountStr := getEnv("MIN_TOPUP_AMOUNT")
	minAmount, err := strconv.ParseInt(minAmountStr, 10, 64)
	if err != nil {
		panic("MIN_TOPUP_AMOUNT must be a valid integer")
	}

	maxKeysStr := getEnv("MAX_ACTIVE_KEYS")
	maxKeys, err := strconv.Atoi(maxKeysStr)
	if err != nil {
		panic("MAX_ACTIVE_KEYS must be a valid integer")
	}

	return Config{
		DBUrl:                getEnv("DATABASE_URL"),
		RedisURL:             getEnv("REDIS_URL"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET"),
		JWTSecret:            getEnv("JWT_SECRET"),
		DarajaBaseURL:        getEnv("DARAJA_BASE_URL"),
		DarajaConsumerKey:    getEnv("DARAJA_CONSUMER_KEY"),
		DarajaConsumerSecret: getEnv("DARAJA_CONSUMER_SECRET"),
		DarajaShortcode:      getEnv("DARAJA_SHORTCODE"),
		DarajaPasskey:        getEnv("DARAJA_PASSKEY"),
		CallbackBaseURL:      getEnv("CALLBACK_BASE_URL"),
		MinTopupAmount:       minAmount,
		MaxActiveKeys:        maxKeys,
		Port:                 getEnv("PORT"),
		Host:                 getEnv("HOST"),
		Env:                  getEnv("ENV"),
		AllowedOrigins:       strings.Split(getEnv("ALLOWED_ORIGINS"), ","),
	}
}

func getEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	panic(fmt.Sprintf("%s is required", key))
}
