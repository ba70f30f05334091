package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type LogConfig struct {
	Level      string
	Format     string
	Output     string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type LiquidatorConfig struct {
	RPCURL                        string
	Commitment                    rpc.CommitmentType
	KeypairPath                   string
	ClearingHouseProgramID        solana.PublicKey
	SlotPollInterval              time.Duration
	RPCTimeout                    time.Duration
	RPCMaxRetries                 int
	RPCRetryBaseDelay             time.Duration
	RPCRetryMaxDelay              time.Duration
	RPCRequestsPerSecond          uint64
	RPCBurst                      int
	Workers                       int
	TxTimeout                     time.Duration
	SkipPreflight                 bool
	MaxRetries                    *uint
	ComputeUnitLimit              uint32
	ComputeUnitPriceMicroLamports uint64
	AwaitConfirmation             bool
	DryRun                        bool
	EnableOrderCrank              bool
	StatusListenAddr              string
	DBDSN                         string
	Log                           LogConfig
}

// Overrides carries command line values. Empty fields leave the loaded value untouched.
type Overrides struct {
	KeypairPath string
	RPCURL      string
	Verbose     bool
}

var (
	DefaultClearingHouseProgramID = solana.MustPublicKeyFromBase58("dammHkt7jmytvbS3nHTxQNEcP59aE57nxwV21YdqEDN")

	ErrMissingKeypair = errors.New("signing key path is required (--keypath or LIQUIDATOR_KEYPAIR_PATH)")
)

func LoadLiquidatorConfig() (LiquidatorConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return LiquidatorConfig{}, err
	}

	keypairPath, err := expandHomePath(envOrDefault("LIQUIDATOR_KEYPAIR_PATH", ""))
	if err != nil {
		return LiquidatorConfig{}, fmt.Errorf("expand keypair path: %w", err)
	}

	commitment, err := envCommitment("SOLANA_COMMITMENT", rpc.CommitmentProcessed)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	programID, err := envPubkey("CLEARING_HOUSE_PROGRAM_ID", DefaultClearingHouseProgramID)
	if err != nil {
		return LiquidatorConfig{}, err
	}

	slotPollInterval, err := envDuration("LIQUIDATOR_SLOT_POLL_INTERVAL", 10*time.Millisecond)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	rpcTimeout, err := envDuration("LIQUIDATOR_RPC_TIMEOUT", 45*time.Second)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	rpcMaxRetries, err := envInt("LIQUIDATOR_RPC_MAX_RETRIES", 3)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	rpcRetryBaseDelay, err := envDuration("LIQUIDATOR_RPC_RETRY_BASE_DELAY", 250*time.Millisecond)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	rpcRetryMaxDelay, err := envDuration("LIQUIDATOR_RPC_RETRY_MAX_DELAY", 5*time.Second)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	if rpcRetryMaxDelay < rpcRetryBaseDelay {
		return LiquidatorConfig{}, fmt.Errorf("invalid LIQUIDATOR_RPC_RETRY_MAX_DELAY: must be >= LIQUIDATOR_RPC_RETRY_BASE_DELAY")
	}
	rps, err := envUint64("LIQUIDATOR_RPC_REQUESTS_PER_SECOND", 0)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	burst, err := envInt("LIQUIDATOR_RPC_BURST", 10)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	workers, err := envInt("LIQUIDATOR_WORKERS", runtime.NumCPU())
	if err != nil {
		return LiquidatorConfig{}, err
	}

	txTimeout, err := envDuration("LIQUIDATOR_TX_TIMEOUT", 30*time.Second)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	skipPreflight, err := envBool("LIQUIDATOR_SKIP_PREFLIGHT", false)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	maxRetries, err := envOptionalUint("LIQUIDATOR_MAX_RETRIES")
	if err != nil {
		return LiquidatorConfig{}, err
	}
	cuLimit, err := envUint32("LIQUIDATOR_COMPUTE_UNIT_LIMIT", 0)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	cuPrice, err := envUint64("LIQUIDATOR_COMPUTE_UNIT_PRICE_MICRO_LAMPORTS", 0)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	awaitConfirmation, err := envBool("LIQUIDATOR_AWAIT_CONFIRMATION", false)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	dryRun, err := envBool("LIQUIDATOR_DRY_RUN", false)
	if err != nil {
		return LiquidatorConfig{}, err
	}
	enableCrank, err := envBool("LIQUIDATOR_ENABLE_ORDER_CRANK", true)
	if err != nil {
		return LiquidatorConfig{}, err
	}

	logCfg, err := buildLogConfig("LIQUIDATOR", "liquidator")
	if err != nil {
		return LiquidatorConfig{}, err
	}

	return LiquidatorConfig{
		RPCURL:                        envOrDefault("SOLANA_RPC_URL", rpc.MainNetBeta_RPC),
		Commitment:                    commitment,
		KeypairPath:                   keypairPath,
		ClearingHouseProgramID:        programID,
		SlotPollInterval:              slotPollInterval,
		RPCTimeout:                    rpcTimeout,
		RPCMaxRetries:                 rpcMaxRetries,
		RPCRetryBaseDelay:             rpcRetryBaseDelay,
		RPCRetryMaxDelay:              rpcRetryMaxDelay,
		RPCRequestsPerSecond:          rps,
		RPCBurst:                      burst,
		Workers:                       workers,
		TxTimeout:                     txTimeout,
		SkipPreflight:                 skipPreflight,
		MaxRetries:                    maxRetries,
		ComputeUnitLimit:              cuLimit,
		ComputeUnitPriceMicroLamports: cuPrice,
		AwaitConfirmation:             awaitConfirmation,
		DryRun:                        dryRun,
		EnableOrderCrank:              enableCrank,
		StatusListenAddr:              envOrDefault("LIQUIDATOR_STATUS_ADDR", ""),
		DBDSN:                         envOrDefault("LIQUIDATOR_DB_DSN", ""),
		Log:                           logCfg,
	}, nil
}

// Apply merges command line values into the loaded configuration. A log
// level coming from the environment wins over --verbose.
func (c *LiquidatorConfig) Apply(o Overrides) error {
	if path := strings.TrimSpace(o.KeypairPath); path != "" {
		expanded, err := expandHomePath(path)
		if err != nil {
			return fmt.Errorf("expand keypair path: %w", err)
		}
		c.KeypairPath = expanded
	}
	if url := strings.TrimSpace(o.RPCURL); url != "" {
		c.RPCURL = url
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		if o.Verbose {
			c.Log.Level = "debug"
		} else {
			c.Log.Level = "info"
		}
	}
	if c.KeypairPath == "" {
		return ErrMissingKeypair
	}
	return nil
}

type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return ConfigSource{
		Phase:  runtimeConfigPhase,
		Path:   runtimeConfigPath,
		Loaded: runtimeConfigLoaded,
	}, nil
}

func buildLogConfig(prefix string, serviceName string) (LogConfig, error) {
	maxSize, err := envInt(prefix+"_LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return LogConfig{}, err
	}
	maxBackups, err := envInt(prefix+"_LOG_MAX_BACKUPS", 5)
	if err != nil {
		return LogConfig{}, err
	}
	maxAge, err := envInt(prefix+"_LOG_MAX_AGE_DAYS", 14)
	if err != nil {
		return LogConfig{}, err
	}
	compress, err := envBool(prefix+"_LOG_COMPRESS", false)
	if err != nil {
		return LogConfig{}, err
	}

	return LogConfig{
		// Left empty when unset so --verbose can decide.
		Level:      envOrDefault(prefix+"_LOG_LEVEL", envOrDefault("LOG_LEVEL", "")),
		Format:     envOrDefault(prefix+"_LOG_FORMAT", envOrDefault("LOG_FORMAT", "text")),
		Output:     envOrDefault(prefix+"_LOG_OUTPUT", envOrDefault("LOG_OUTPUT", "console")),
		FilePath:   envOrDefault(prefix+"_LOG_FILE", envOrDefault("LOG_FILE", filepath.Join(".docker", serviceName, serviceName+".log"))),
		MaxSizeMB:  maxSize,
		MaxBackups: maxBackups,
		MaxAgeDays: maxAge,
		Compress:   compress,
	}, nil
}
