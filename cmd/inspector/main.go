// Inspector dials the chain RPC and prints state for the markets in the
// config file. Ops tool for checking what the gateway would see.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/MorphGate/morphgate/internal/config"
	"github.com/MorphGate/morphgate/internal/ledger"
	"github.com/MorphGate/morphgate/internal/manager"
	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/signer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	client, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("dial rpc: %v", err)
	}

	txSigner, err := signer.NewSigner(cfg.Gateway.PrivateKey, cfg.Chain.ChainID)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}
	transactor := ledger.NewTransactor(client, txSigner, manager.NewNonceManager(client), false)
	ledgerClient, err := ledger.NewClient(common.HexToAddress(cfg.Chain.LedgerAddress), transactor)
	if err != nil {
		log.Fatalf("ledger client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, mc := range cfg.Markets {
		params := model.MarketParams{
			LoanToken:       mc.LoanToken,
			CollateralToken: mc.CollateralToken,
			Oracle:          mc.Oracle,
			RateModel:       mc.RateModel,
			LLTV:            mc.LLTV,
		}
		marketCfg, err := params.ToConfig()
		if err != nil {
			fmt.Printf("skipping market (%v)\n", err)
			continue
		}
		id := marketCfg.ID()
		fmt.Printf("--- Market %s ---\n", id.Hex())
		fmt.Printf("  loan=%s collateral=%s lltv=%s\n",
			marketCfg.LoanToken.Hex(), marketCfg.CollateralToken.Hex(), marketCfg.LLTV)

		state, err := ledgerClient.Market(ctx, id)
		if err != nil {
			fmt.Printf("  state: error: %v\n", err)
			continue
		}
		fmt.Printf("  totalSupply=%s totalBorrow=%s lastUpdate=%d fee=%s\n",
			state.TotalSupplyAssets, state.TotalBorrowAssets, state.LastUpdate, state.Fee)

		pos, err := ledgerClient.Position(ctx, id, txSigner.Address())
		if err != nil {
			fmt.Printf("  position: error: %v\n", err)
			continue
		}
		fmt.Printf("  custody position: supplyShares=%s borrowShares=%s collateral=%s\n",
			pos.SupplyShares, pos.BorrowShares, pos.Collateral)

		rate, err := ledgerClient.BorrowRate(ctx, marketCfg, state)
		if err != nil {
			fmt.Printf("  borrow rate: error: %v\n", err)
			continue
		}
		fmt.Printf("  borrowRate=%s (per second, WAD)\n", rate)
	}
}
