package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSchema   string

	// Ledger gateway settings.
	RPCURL             string
	MerchantPrivateKey string
	TokenAddress       string
	TokenDecimals      int32
	LedgerTimeout      time.Duration

	// AutoCollect fast-paths a collection attempt right after a verified
	// approval instead of waiting for the next reconciliation sweep.
	AutoCollect       bool
	ReconcileInterval time.Duration
	CollectPause      time.Duration

	LogLevel string
}

func Load() Config {
	return Config{
		Port:               getenv("STABLEPAY_PORT", "3001"),
		DBHost:             getenv("STABLEPAY_DB_HOST", "localhost"),
		DBPort:             getenv("STABLEPAY_DB_PORT", "5432"),
		DBUser:             getenv("STABLEPAY_DB_USERNAME", "postgres"),
		DBPassword:         getenv("STABLEPAY_DB_PASSWORD", "postgres"),
		DBName:             getenv("STABLEPAY_DB_DATABASE", "stablepay"),
		DBSchema:           getenv("STABLEPAY_DB_SCHEMA", "public"),
		RPCURL:             getenv("RPC_URL", "http://localhost:8545"),
		MerchantPrivateKey: os.Getenv("MERCHANT_PRIVATE_KEY"),
		TokenAddress:       os.Getenv("TOKEN_CONTRACT_ADDRESS"),
		TokenDecimals:      int32(getint("TOKEN_DECIMALS", 6)),
		LedgerTimeout:      getdur("LEDGER_TIMEOUT", 30*time.Second),
		AutoCollect:        getbool("AUTO_COLLECT", true),
		ReconcileInterval:  getdur("RECONCILE_INTERVAL", time.Minute),
		CollectPause:       getdur("COLLECT_PAUSE", time.Second),
		LogLevel:           getenv("LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getdur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
