package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand"
	"os"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/disputes"
	"github.com/colorfulnotion/repminer/ledger"
	"github.com/colorfulnotion/repminer/miner"
	"github.com/colorfulnotion/repminer/reputation"
	"github.com/colorfulnotion/repminer/storage"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

func mineCmd() *cobra.Command {
	var noJRH bool
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Replay the update log, submit the root hash and the justification root hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withCycle(ctx, true, func(c *miner.MiningCycleContext) error {
				if err := c.SubmitRootHash(ctx); err != nil {
					return err
				}
				if noJRH {
					return nil
				}
				return c.SubmitJustificationRootHash(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&noJRH, "no-jrh", false, "only submit the root hash")
	return cmd
}

func submitJRHCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit-jrh",
		Short: "Submit the justification root hash of the last replayed cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withCycle(ctx, false, func(c *miner.MiningCycleContext) error {
				return c.SubmitJustificationRootHash(ctx)
			})
		},
	}
}

func slotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slot",
		Short: "Locate our submission in the dispute bracket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withCycle(ctx, false, func(c *miner.MiningCycleContext) error {
				round, index, err := c.GetMySubmissionRoundAndIndex(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("round=%d index=%d root=%s\n", round, index, c.RootHash())
				return nil
			})
		},
	}
}

func respondCmd() *cobra.Command {
	var challenge bool
	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Answer one binary search step, or the challenge once the search has converged",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withCycle(ctx, false, func(c *miner.MiningCycleContext) error {
				d := disputes.NewDriver(c)
				if challenge {
					return d.RespondToChallenge(ctx)
				}
				b, err := d.RespondToBinarySearchForChallenge(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("bounds=%s converged=%v\n", b, b.Converged())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&challenge, "challenge", false, "respond to the challenge instead of a binary search step")
	return cmd
}

func disputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispute",
		Short: "Drive the dispute of our submission to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withCycle(ctx, false, func(c *miner.MiningCycleContext) error {
				return disputes.NewDriver(c).Run(ctx, cfg.DisputePollInterval)
			})
		},
	}
}

func dumpCmd() *cobra.Command {
	var records bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the cached reputations and, optionally, the justification records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := storage.OpenMinerStore(cfg.DataDir)
			if err != nil {
				return err
			}
			defer cache.Close()
			store, err := reputation.LoadStore(cache)
			if err != nil {
				return err
			}
			fmt.Printf("root=%s reputations=%d\n", store.RootHash(), store.Count())
			for uid := uint64(1); uid <= store.Count(); uid++ {
				key, _ := store.ByUID(uid)
				v, _ := store.Get(key)
				fmt.Printf("colony=%s skill=%s user=%s %s\n", key.Colony(), key.SkillID().Dec(), key.User(), v)
			}
			if !records {
				return nil
			}
			c, err := miner.LoadCycle(nil, cache, minerConfig())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			for i := uint64(0); i <= c.NLogEntries(); i++ {
				rec, err := c.Record(i)
				if err != nil {
					return err
				}
				if err := enc.Encode(&rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&records, "records", false, "also print the justification records")
	return cmd
}

func simulateCmd() *cobra.Command {
	var (
		entries int
		wrongAt int
		seed    int64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an honest and a faulty miner against an in-memory ledger through a full dispute",
		RunE: func(cmd *cobra.Command, args []string) error {
			if entries <= 0 || wrongAt < 0 || wrongAt >= entries {
				return fmt.Errorf("need 0 <= wrong-at < entries")
			}
			ctx := cmd.Context()
			rng := rand.New(rand.NewSource(seed))
			m := ledger.NewMockLedger()
			colony := common.BytesToAddress([]byte{0xc0, 0x10}).Hex()
			for i := 0; i < entries; i++ {
				m.AppendEntry(ledger.UpdateLogEntry{
					User:    common.BytesToAddress([]byte{0x05, byte(rng.Intn(entries/2 + 1))}).Hex(),
					Amount:  big.NewInt(rng.Int63n(200) - 50),
					SkillID: uint256.NewInt(uint64(rng.Intn(3) + 1)),
					Colony:  colony,
				})
			}

			honest, _ := common.GetEVMDevAccount(0)
			faulty, _ := common.GetEVMDevAccount(1)
			faultyCfg := minerConfig()
			faultyCfg.Score = miner.OffsetScore(uint64(wrongAt), big.NewInt(1))

			var drivers [2]*disputes.Driver
			for i, who := range []struct {
				addr common.Address
				cfg  miner.Config
			}{{honest, minerConfig()}, {faulty, faultyCfg}} {
				c, err := miner.NewMiningCycle(m.As(who.addr), nil, who.cfg)
				if err != nil {
					return err
				}
				if err := c.ReplayLog(ctx); err != nil {
					return err
				}
				if err := c.SubmitRootHash(ctx); err != nil {
					return err
				}
				fmt.Printf("miner %d (%s): root=%s jrh=%s\n", i, who.addr, c.RootHash(), c.JustificationRootHash())
				drivers[i] = disputes.NewDriver(c)
			}
			for _, d := range drivers {
				if err := d.Cycle().SubmitJustificationRootHash(ctx); err != nil {
					return err
				}
			}
			winner, err := disputes.Duel(ctx, drivers, 4*disputes.MaxSteps(uint64(entries))+4)
			if err != nil {
				return err
			}
			sub := m.Round(0)[winner]
			fmt.Printf("winner: miner %d, bounds=%s, steps=%d\n", winner, disputes.BoundsOf(sub), sub.ChallengeStepCompleted)
			return nil
		},
	}
	cmd.Flags().IntVar(&entries, "entries", 32, "number of update log entries")
	cmd.Flags().IntVar(&wrongAt, "wrong-at", 11, "entry the faulty miner applies wrongly")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed for the generated log")
	return cmd
}
