package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/defistate/cpamm-engine/protocols/cpamm"
	poolindexer "github.com/defistate/cpamm-engine/protocols/cpamm/indexer"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	mintindexer "github.com/defistate/cpamm-engine/protocols/mintregistry/indexer"
	"github.com/defistate/cpamm-engine/streams/jsonrpc/client"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Simulate a swap against the configured pools or a running server",
		RunE:  runQuote,
	}
	cmd.Flags().String("url", "", "quote against a running server instead of the local config")
	cmd.Flags().String("pool", "", "pool address; when empty the deepest configured pool for the pair is used")
	cmd.Flags().String("input-mint", "", "address or configured symbol of the token being sold")
	cmd.Flags().String("output-mint", "", "address or configured symbol of the token being bought, used to pick a pool")
	cmd.Flags().Uint64("amount", 0, "amount in (exact-in, partial-fill) or amount out (exact-out)")
	cmd.Flags().Uint64("threshold", 0, "minimum out (exact-in, partial-fill) or maximum in (exact-out)")
	cmd.Flags().String("mode", "exact-in", "swap mode (exact-in, partial-fill, exact-out)")
	cmd.Flags().Bool("referral", false, "route the host fee to a referrer")
	_ = cmd.MarkFlagRequired("input-mint")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	modeStr, _ := flags.GetString("mode")
	mode, err := parseSwapMode(modeStr)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mintList, err := cfg.BuildMints()
	if err != nil {
		return err
	}
	mints := mintindexer.New().Index(mintList)

	inputStr, _ := flags.GetString("input-mint")
	inputMint, err := resolveMint(inputStr, mints)
	if err != nil {
		return fmt.Errorf("input-mint: %w", err)
	}
	amount, _ := flags.GetUint64("amount")
	threshold, _ := flags.GetUint64("threshold")
	referral, _ := flags.GetBool("referral")
	args := client.SwapArgs{SwapRequest: cpamm.SwapRequest{
		InputMint:   inputMint,
		HasReferral: referral,
		Params: cpamm.SwapParameters2{
			Amount0:  amount,
			Amount1:  threshold,
			SwapMode: uint8(mode),
		},
	}}

	ctx := cmd.Context()
	var evt *cpamm.EvtSwap2
	if url, _ := flags.GetString("url"); url != "" {
		if args.Pool, err = parsePoolFlag(cmd); err != nil {
			return err
		}
		if args.Pool.IsZero() {
			return errors.New("pool is required with url")
		}
		caller, err := client.Dial(ctx, url)
		if err != nil {
			return fmt.Errorf("dial %s: %w", url, err)
		}
		defer caller.Close()
		evt, err = caller.Quote(ctx, args)
		if err != nil {
			return err
		}
	} else {
		n, err := newNode(cfg, prometheus.NewRegistry(), logger)
		if err != nil {
			return err
		}
		defer n.engine.Close()

		if args.Pool, err = parsePoolFlag(cmd); err != nil {
			return err
		}
		if args.Pool.IsZero() {
			outputStr, _ := flags.GetString("output-mint")
			outputMint, err := resolveMint(outputStr, mints)
			if err != nil {
				return fmt.Errorf("output-mint: %w", err)
			}
			pools := poolindexer.New().Index(n.engine.Pools().View())
			if args.Pool, err = deepestPool(pools, inputMint, outputMint); err != nil {
				return err
			}
		}
		evt, err = n.engine.Quote(ctx, args.Request())
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(evt)
}

func parsePoolFlag(cmd *cobra.Command) (types.Pubkey, error) {
	s, _ := cmd.Flags().GetString("pool")
	if s == "" {
		return types.Pubkey{}, nil
	}
	pool, err := types.ParsePubkey(s)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("pool: %w", err)
	}
	return pool, nil
}

// resolveMint accepts a base58 address or the symbol of a configured mint.
func resolveMint(s string, mints mintindexer.IndexedMintSystem) (types.Pubkey, error) {
	if s == "" {
		return types.Pubkey{}, errors.New("mint is required")
	}
	if key, err := types.ParsePubkey(s); err == nil {
		return key, nil
	}
	if m, ok := mints.GetBySymbol(s); ok {
		return m.Address, nil
	}
	return types.Pubkey{}, fmt.Errorf("unknown mint %q", s)
}

// deepestPool picks the pool with the most liquidity trading the pair.
func deepestPool(pools poolindexer.IndexedPools, mintA, mintB types.Pubkey) (types.Pubkey, error) {
	candidates := pools.GetByMints(mintA, mintB)
	if len(candidates) == 0 {
		return types.Pubkey{}, fmt.Errorf("no pool trades %s/%s", mintA, mintB)
	}
	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.Liquidity.Gt(best.Liquidity) {
			best = p
		}
	}
	return best.Address, nil
}

func parseSwapMode(s string) (types.SwapMode, error) {
	normalized := strings.ReplaceAll(strings.ToLower(s), "-", "_")
	for _, mode := range []types.SwapMode{types.ExactIn, types.PartialFill, types.ExactOut} {
		if mode.String() == normalized {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("mode: unknown swap mode %q", s)
}
