package params

import (
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Engine struct {
	// Interval between matching cycles. The next cycle is scheduled only
	// after the previous one finishes, so cycles never overlap.
	Interval           time.Duration
	MaxMatchesPerCycle int
	// MinOrderSize is the smallest amountIn (base units) eligible for matching.
	MinOrderSize *big.Int
	// SlippageBps bounds adverse execution: the swap price limit is the
	// current pool price moved by this many basis points.
	SlippageBps int64
}

type Chain struct {
	RPCURL string
	// PrivateKeyHex signs settlement transactions. Empty key degrades the
	// keeper to read-only: matching and compliance still run, settlement
	// is skipped with a warning.
	PrivateKeyHex string
	CallTimeout   time.Duration
}

type OrderStore struct {
	BaseURL        string
	RequestTimeout time.Duration
}

type Node struct {
	JournalPath string
	APIAddr     string
	LogFile     string
}

type Config struct {
	Engine     Engine
	Chain      Chain
	OrderStore OrderStore
	Node       Node
}

func Default() Config {
	return Config{
		Engine: Engine{
			Interval:           15 * time.Second,
			MaxMatchesPerCycle: 10,
			MinOrderSize:       big.NewInt(1),
			SlippageBps:        500, // 5%
		},
		Chain: Chain{
			RPCURL:      "http://localhost:8545",
			CallTimeout: 10 * time.Second,
		},
		OrderStore: OrderStore{
			BaseURL:        "http://localhost:3001",
			RequestTimeout: 10 * time.Second,
		},
		Node: Node{
			JournalPath: "data/journal",
			APIAddr:     ":8080",
			LogFile:     "data/keeper.log",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("MATCH_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Engine.Interval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MAX_MATCHES_PER_CYCLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxMatchesPerCycle = n
		}
	}
	if v := os.Getenv("MIN_ORDER_SIZE"); v != "" {
		if n, ok := new(big.Int).SetString(v, 10); ok && n.Sign() > 0 {
			cfg.Engine.MinOrderSize = n
		}
	}
	if v := os.Getenv("SLIPPAGE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 && n < 10000 {
			cfg.Engine.SlippageBps = n
		}
	}

	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	// Optional: without a key the keeper runs read-only.
	cfg.Chain.PrivateKeyHex = os.Getenv("KEEPER_PRIVATE_KEY")
	if v := os.Getenv("RPC_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Chain.CallTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("ORDER_STORE_URL"); v != "" {
		cfg.OrderStore.BaseURL = v
	}
	if v := os.Getenv("ORDER_STORE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.OrderStore.RequestTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Node.JournalPath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}

	return cfg
}
