package main

import (
	"github.com/coldbell/dex/liquidator/internal/config"
	"github.com/spf13/pflag"
)

const (
	keypathKey  = "keypath"
	endpointKey = "endpoint"
	verboseKey  = "verbose"
)

func addFlags(flags *pflag.FlagSet) {
	flags.String(keypathKey, "", "Path to the operator keypair file (overrides LIQUIDATOR_KEYPAIR_PATH)")
	flags.String(endpointKey, "", "RPC endpoint (overrides SOLANA_RPC_URL, mainnet-beta when both are unset)")
	flags.BoolP(verboseKey, "v", false, "Log at debug level unless LIQUIDATOR_LOG_LEVEL is set")
}

func parseFlags(flags *pflag.FlagSet) (config.Overrides, error) {
	keypath, err := flags.GetString(keypathKey)
	if err != nil {
		return config.Overrides{}, err
	}
	endpoint, err := flags.GetString(endpointKey)
	if err != nil {
		return config.Overrides{}, err
	}
	verbose, err := flags.GetBool(verboseKey)
	if err != nil {
		return config.Overrides{}, err
	}
	return config.Overrides{
		KeypairPath: keypath,
		RPCURL:      endpoint,
		Verbose:     verbose,
	}, nil
}
