package config

import (
	"log"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Server struct {
	Port string `mapstructure:"port"`
}

type Stellar struct {
	HorizonURL        string `mapstructure:"horizon-url"`
	NetworkPassphrase string `mapstructure:"network-passphrase"`
	Network           string `mapstructure:"network"`
	SigningSeed       string `mapstructure:"signing-seed"`
	BaseFee           int64  `mapstructure:"base-fee"`
	PollIntervalMs    int    `mapstructure:"poll-interval-ms"`
	MaxPollAttempts   int    `mapstructure:"max-poll-attempts"`
}

type Payment struct {
	PayTo          string `mapstructure:"pay-to"`
	Asset          string `mapstructure:"asset"`
	TimeoutSeconds int    `mapstructure:"timeout-seconds"`
	FeeSponsorship bool   `mapstructure:"fee-sponsorship"`
}

type Fiat struct {
	Enabled      bool    `mapstructure:"enabled"`
	Currency     string  `mapstructure:"currency"`
	Symbol       string  `mapstructure:"symbol"`
	ProofChannel string  `mapstructure:"proof-channel"`
	RateUSD      float64 `mapstructure:"rate-usd"`
}

type Queue struct {
	Buffer int `mapstructure:"buffer"`
}

type Jobs struct {
	RetentionMs      int `mapstructure:"retention-ms"`
	SweepIntervalMs  int `mapstructure:"sweep-interval-ms"`
	ProcessTimeoutMs int `mapstructure:"process-timeout-ms"`
}

type Webhook struct {
	URL       string `mapstructure:"url"`
	TimeoutMs int    `mapstructure:"timeout-ms"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Server  Server  `mapstructure:"server"`
	Stellar Stellar `mapstructure:"stellar"`
	Payment Payment `mapstructure:"payment"`
	Fiat    Fiat    `mapstructure:"fiat"`
	Queue   Queue   `mapstructure:"queue"`
	Jobs    Jobs    `mapstructure:"jobs"`
	Webhook Webhook `mapstructure:"webhook"`
	Metrics Metrics `mapstructure:"metrics"`
	Logs    Logs    `mapstructure:"logs"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("stellar.horizon-url", "https://horizon-testnet.stellar.org")
	viper.SetDefault("payment.asset", "native")
	viper.SetDefault("payment.timeout-seconds", 300)
	viper.SetDefault("queue.buffer", 256)
	viper.SetDefault("jobs.sweep-interval-ms", 60000)

	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
