package params

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Exchange struct {
	Sources         []string
	Symbols         []string
	OrderingMode    string // concurrent, ranked
	RejectSelfMatch bool
}

// Feed selects where broker messages come from.
//
//	generator: seeded synthetic traffic, see Generator
//	kafka:     one topic per source, KAFKA_FEED_TOPIC_PREFIX + source
//	journal:   replay of a previous run's JOURNAL_FILE
type Feed struct {
	Mode      string
	Generator Generator
}

type Generator struct {
	MessagesPerSource int
	Seed              int64
	CancelPct         int
}

type Kafka struct {
	Brokers         []string
	ResultsTopic    string // empty disables result publishing
	FeedTopicPrefix string
}

type Node struct {
	DataDir     string
	LogFile     string
	APIAddr     string // empty disables the API server
	JournalFile string // empty disables the journal
}

type Config struct {
	Exchange Exchange
	Feed     Feed
	Kafka    Kafka
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Sources:      []string{"broker-1", "broker-2"},
			Symbols:      []string{"GFT", "ACME"},
			OrderingMode: "concurrent",
		},
		Feed: Feed{
			Mode: "generator",
			Generator: Generator{
				MessagesPerSource: 1000,
				Seed:              1,
				CancelPct:         10,
			},
		},
		Kafka: Kafka{
			Brokers:         []string{"localhost:9092"},
			FeedTopicPrefix: "exchange.orders.",
		},
		Node: Node{
			DataDir: "data",
			LogFile: "data/exchange.log",
			APIAddr: ":8080",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("EXCHANGE_SOURCES"); v != "" {
		cfg.Exchange.Sources = splitList(v)
	}
	if v := os.Getenv("EXCHANGE_SYMBOLS"); v != "" {
		cfg.Exchange.Symbols = splitList(v)
	}
	cfg.Exchange.OrderingMode = getEnv("ORDERING_MODE", cfg.Exchange.OrderingMode)
	if v := os.Getenv("REJECT_SELF_MATCH"); v != "" {
		cfg.Exchange.RejectSelfMatch = v == "true"
	}

	cfg.Feed.Mode = getEnv("FEED_MODE", cfg.Feed.Mode)
	if v := os.Getenv("GEN_MESSAGES_PER_SOURCE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Feed.Generator.MessagesPerSource = n
		}
	}
	if v := os.Getenv("GEN_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Feed.Generator.Seed = n
		}
	}
	if v := os.Getenv("GEN_CANCEL_PCT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
			cfg.Feed.Generator.CancelPct = n
		}
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.ResultsTopic = getEnv("KAFKA_RESULTS_TOPIC", cfg.Kafka.ResultsTopic)
	cfg.Kafka.FeedTopicPrefix = getEnv("KAFKA_FEED_TOPIC_PREFIX", cfg.Kafka.FeedTopicPrefix)

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
		cfg.Node.LogFile = filepath.Join(v, "exchange.log")
	}
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	if v, ok := os.LookupEnv("API_ADDR"); ok {
		cfg.Node.APIAddr = v
	}
	cfg.Node.JournalFile = getEnv("JOURNAL_FILE", cfg.Node.JournalFile)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
