// repminer is the reputation mining client: it replays the colony network's
// reputation update log, submits the resulting root hash and answers disputes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/ledger"
	log "github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/miner"
	"github.com/colorfulnotion/repminer/storage"
	"github.com/colorfulnotion/repminer/types"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

var (
	configPath string
	cfg        types.MinerConfig
	overrides  types.MinerConfig
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "repminer",
		Short:         "Colony reputation mining client",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := types.LoadMinerConfig(configPath)
			if err != nil {
				return err
			}
			cfg = applyOverrides(cmd, loaded)
			if cfg.LogJSON {
				log.InitJSONLogger(cfg.LogLevel)
			} else {
				log.InitLogger(cfg.LogLevel)
			}
			log.EnableModules(cfg.DebugModules)
			return nil
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.StringVar(&overrides.RPCURL, "rpc", "", "JSON-RPC endpoint of the ledger node")
	flags.StringVar(&overrides.ColonyNetwork, "network", "", "colony network contract address")
	flags.StringVar(&overrides.MinerAddress, "from", "", "miner account (node-unlocked when no key is given)")
	flags.StringVar(&overrides.PrivateKey, "key", "", "hex private key used to sign transactions locally")
	flags.Uint64Var(&overrides.ChainID, "chain-id", 0, "chain id for EIP-155 signing")
	flags.StringVar(&overrides.DataDir, "datadir", "", "directory of the reputation cache")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "trace, debug, info, warn, error or crit")
	flags.BoolVar(&overrides.LogJSON, "log-json", false, "log as JSON")
	flags.StringVar(&overrides.DebugModules, "debug", "", "comma separated modules to debug (miner,trie,dispute,ledger,storage)")
	flags.BoolVar(&overrides.StrictLog, "strict-log", false, "abort the cycle on a malformed log entry")
	flags.BoolVar(&overrides.StrictCache, "strict-cache", false, "abort when the cache disagrees with the ledger root")
	flags.Uint64Var(&overrides.EntryIndex, "entry-index", 0, "entry index passed to submitNewHash")

	rootCmd.AddCommand(mineCmd(), submitJRHCmd(), slotCmd(), respondCmd(), disputeCmd(), dumpCmd(), simulateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "repminer: %v\n", err)
		os.Exit(1)
	}
}

func applyOverrides(cmd *cobra.Command, c types.MinerConfig) types.MinerConfig {
	changed := cmd.Flags().Changed
	if changed("rpc") {
		c.RPCURL = overrides.RPCURL
	}
	if changed("network") {
		c.ColonyNetwork = overrides.ColonyNetwork
	}
	if changed("from") {
		c.MinerAddress = overrides.MinerAddress
	}
	if changed("key") {
		c.PrivateKey = overrides.PrivateKey
	}
	if changed("chain-id") {
		c.ChainID = overrides.ChainID
	}
	if changed("datadir") {
		c.DataDir = overrides.DataDir
	}
	if changed("log-level") {
		c.LogLevel = overrides.LogLevel
	}
	if changed("log-json") {
		c.LogJSON = overrides.LogJSON
	}
	if changed("debug") {
		c.DebugModules = overrides.DebugModules
	}
	if changed("strict-log") {
		c.StrictLog = overrides.StrictLog
	}
	if changed("strict-cache") {
		c.StrictCache = overrides.StrictCache
	}
	if changed("entry-index") {
		c.EntryIndex = overrides.EntryIndex
	}
	return c
}

func minerConfig() miner.Config {
	mc := miner.DefaultConfig()
	mc.EntryIndex = cfg.EntryIndex
	mc.StrictLog = cfg.StrictLog
	mc.StrictCache = cfg.StrictCache
	mc.MaxRounds = cfg.MaxRounds
	mc.MaxRoundIndex = cfg.MaxRoundIndex
	return mc
}

func dialLedger(ctx context.Context) (*ledger.EthLedger, error) {
	if !common.IsAddress(cfg.ColonyNetwork) {
		return nil, fmt.Errorf("colony network address %q is not valid", cfg.ColonyNetwork)
	}
	if cfg.PrivateKey == "" && !common.IsAddress(cfg.MinerAddress) {
		return nil, fmt.Errorf("miner address %q is not valid and no private key was given", cfg.MinerAddress)
	}
	opts := ledger.Options{
		SubmitJRHGas:          cfg.SubmitJRHGas,
		BinarySearchGas:       cfg.BinarySearchGas,
		RespondToChallengeGas: cfg.RespondToChallengeGas,
		ReceiptPollInterval:   cfg.ReceiptPollInterval,
		ReceiptTimeout:        cfg.ReceiptTimeout,
	}
	return ledger.Dial(ctx, cfg.RPCURL, common.HexToAddress(cfg.ColonyNetwork), common.HexToAddress(cfg.MinerAddress),
		cfg.PrivateKey, cfg.ChainID, opts)
}

// withCycle opens the cache and ledger and hands fn a cycle: a fresh one when
// replay is true, otherwise the one persisted by the last replay.
func withCycle(ctx context.Context, replay bool, fn func(c *miner.MiningCycleContext) error) error {
	cache, err := storage.OpenMinerStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer cache.Close()
	l, err := dialLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	var c *miner.MiningCycleContext
	if replay {
		if c, err = miner.NewMiningCycle(l, cache, minerConfig()); err == nil {
			err = c.ReplayLog(ctx)
		}
	} else {
		c, err = miner.LoadCycle(l, cache, minerConfig())
	}
	if err != nil {
		return err
	}
	return fn(c)
}
