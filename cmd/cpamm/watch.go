package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/defistate/cpamm-engine/protocols/cpamm"
	poolindexer "github.com/defistate/cpamm-engine/protocols/cpamm/indexer"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	"github.com/defistate/cpamm-engine/protocols/mintregistry"
	mintindexer "github.com/defistate/cpamm-engine/protocols/mintregistry/indexer"
	"github.com/defistate/cpamm-engine/streams/jsonrpc/client"
	"github.com/defistate/cpamm-engine/streams/jsonrpc/server"
	"github.com/defistate/cpamm-engine/streams/jsonrpc/stateops"
)

const defaultClientStateBufferSize = 100

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a server's state stream and log every state and swap",
		RunE:  runWatch,
	}
	cmd.Flags().String("url", "ws://127.0.0.1:8545", "state stream websocket url")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	_, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	url, _ := cmd.Flags().GetString("url")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ops, err := stateops.NewStateOps(logger.With("component", "stateops"), prometheus.NewRegistry())
	if err != nil {
		return err
	}

	stream, err := client.NewClient(ctx, client.Config{
		URL:              url,
		Logger:           logger.With("component", "jsonrpc-client"),
		BufferSize:       defaultClientStateBufferSize,
		StatePatcher:     ops.Patch,
		StateDecoder:     ops.DecodeStateJSON,
		StateDiffDecoder: ops.DecodeStateDiffJSON,
	})
	if err != nil {
		return err
	}

	var (
		pools = poolindexer.New().Index(nil)
		mints = mintindexer.New().Index(nil)
	)
	for {
		select {
		case state := <-stream.State():
			poolList, _ := state.Protocols[server.PoolsProtocolID].Data.([]cpamm.Pool)
			mintList, _ := state.Protocols[server.MintsProtocolID].Data.([]mintregistry.Mint)
			pools = poolindexer.New().Index(poolList)
			mints = mintindexer.New().Index(mintList)
			logger.Info("state",
				"cluster", state.Cluster,
				"sequence", state.Slot.Sequence,
				"slot", state.Slot.Slot,
				"pools", len(poolList),
				"mints", len(mintList),
			)
			for _, p := range poolList {
				logger.Debug("pool",
					"address", p.Address.String(),
					"reserve_a", p.ReserveA,
					"reserve_b", p.ReserveB,
					"sqrt_price", p.SqrtPrice.Dec(),
				)
			}
		case evt := <-stream.Swaps():
			logger.Info("swap",
				"pool", evt.Pool.String(),
				"pair", pairName(pools, mints, evt.Pool),
				"direction", evt.TradeDirection.String(),
				"amount_in", evt.SwapResult.IncludedFeeInputAmount,
				"amount_out", evt.SwapResult.OutputAmount,
				"trading_fee", evt.SwapResult.TradingFee,
			)
		case err, open := <-stream.Err():
			if open {
				logger.Error("fatal client error", "error", err)
				return err
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// pairName renders a pool's mints by symbol, falling back to addresses.
func pairName(pools poolindexer.IndexedPools, mints mintindexer.IndexedMintSystem, pool types.Pubkey) string {
	p, ok := pools.GetByAddress(pool)
	if !ok {
		return "unknown"
	}
	return mintName(mints, p.TokenAMint) + "/" + mintName(mints, p.TokenBMint)
}

func mintName(mints mintindexer.IndexedMintSystem, address types.Pubkey) string {
	if m, ok := mints.GetByAddress(address); ok && m.Symbol != "" {
		return m.Symbol
	}
	return address.String()
}
