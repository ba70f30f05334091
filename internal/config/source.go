package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"
)

var (
	runtimeConfigOnce   sync.Once
	runtimeConfigErr    error
	runtimeConfigValues map[string]string
	runtimeConfigLoaded bool
	runtimeConfigPath   string
	runtimeConfigPhase  string
)

// ensureRuntimeConfigLoaded reads config/config-<phase>.yaml (or CONFIG_FILE)
// once. A missing default file is not an error.
func ensureRuntimeConfigLoaded() error {
	runtimeConfigOnce.Do(func() {
		runtimeConfigValues = make(map[string]string)

		runtimeConfigPhase = strings.TrimSpace(os.Getenv("CONFIG_PHASE"))
		if runtimeConfigPhase == "" {
			runtimeConfigPhase = "local"
		}

		path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
		explicit := path != ""
		if !explicit {
			path = filepath.Join("config", "config-"+runtimeConfigPhase+".yaml")
		}

		values, err := readConfigFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !explicit {
				return
			}
			runtimeConfigErr = err
			return
		}

		runtimeConfigValues = values
		runtimeConfigLoaded = true
		if abs, err := filepath.Abs(path); err == nil {
			runtimeConfigPath = abs
		} else {
			runtimeConfigPath = path
		}
	})
	return runtimeConfigErr
}

func readConfigFile(path string) (map[string]string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	raw := make(map[string]any)
	if err := yaml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	out := make(map[string]string)
	for key, value := range raw {
		segment := normalizeKeySegment(key)
		if segment == "" {
			continue
		}
		if err := flattenConfigValue(segment, value, out); err != nil {
			return nil, fmt.Errorf("flatten config file %q: %w", path, err)
		}
	}
	return out, nil
}

// flattenConfigValue maps nested YAML onto env-style keys:
// liquidator: {rpc: {timeout: 5s}} becomes LIQUIDATOR_RPC_TIMEOUT.
func flattenConfigValue(prefix string, value any, out map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			segment := normalizeKeySegment(key)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
	case map[any]any:
		for rawKey, child := range typed {
			key, ok := rawKey.(string)
			if !ok {
				return fmt.Errorf("unsupported map key type %T under %q", rawKey, prefix)
			}
			segment := normalizeKeySegment(key)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch scalar := item.(type) {
			case string:
				if trimmed := strings.TrimSpace(scalar); trimmed != "" {
					parts = append(parts, trimmed)
				}
			case bool, int, int64, uint64, float64:
				parts = append(parts, fmt.Sprint(scalar))
			default:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
		}
		out[prefix] = strings.Join(parts, ",")
	case nil:
	default:
		out[prefix] = fmt.Sprint(typed)
	}
	return nil
}

func normalizeKeySegment(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	pendingUnderscore := false

	for _, r := range strings.TrimSpace(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingUnderscore {
				b.WriteByte('_')
				pendingUnderscore = false
			}
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if b.Len() > 0 {
			pendingUnderscore = true
		}
	}
	return b.String()
}

// valueForKey prefers the process environment over the config file.
func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ""
	}
	return strings.TrimSpace(runtimeConfigValues[key])
}

func envOrDefault(key, fallback string) string {
	if value := valueForKey(key); value != "" {
		return value
	}
	return fallback
}

func envPubkey(key string, fallback solana.PublicKey) (solana.PublicKey, error) {
	raw := valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return pk, nil
}

func envCommitment(key string, fallback rpc.CommitmentType) (rpc.CommitmentType, error) {
	raw := valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	switch commitment := rpc.CommitmentType(strings.ToLower(raw)); commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
		return commitment, nil
	default:
		return "", fmt.Errorf("invalid %s: %q (expected processed|confirmed|finalized)", key, raw)
	}
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return v, nil
}

func envUint64(key string, fallback uint64) (uint64, error) {
	raw := valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envUint32(key string, fallback uint32) (uint32, error) {
	raw := valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint32(v), nil
}

func envOptionalUint(key string) (*uint, error) {
	raw := valueForKey(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	out := uint(v)
	return &out, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func expandHomePath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")), nil
}
