package cmd

import (
	"math/big"

	"github.com/tokentwister/flashpool/borrower"
	"github.com/tokentwister/flashpool/config"
	"github.com/tokentwister/flashpool/events"
	"github.com/tokentwister/flashpool/flashloan"
	"github.com/tokentwister/flashpool/ledger"
	"github.com/tokentwister/flashpool/strategies/passthrough"
	"github.com/tokentwister/flashpool/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run an end-to-end flash loan against the in-process ledger",
	Run: func(cmd *cobra.Command, args []string) {
		log := utils.GetLogger()

		if err := config.LoadEnv(); err != nil {
			log.Debug("no .env file loaded", zap.Error(err))
		}

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatal("Failed to load config", zap.Error(err))
		}
		cfg.Logger = log

		eventLog := events.NewLog()
		assetLedger := ledger.New(eventLog, utils.Named("ledger"))

		poolAddr := common.HexToAddress(cfg.PoolAddress)
		pool, err := flashloan.NewPool(poolAddr, assetLedger, eventLog, utils.Named("pool"))
		if err != nil {
			log.Fatal("Failed to create pool", zap.Error(err))
		}

		// Seed the pool's lendable liquidity per config.
		for _, t := range cfg.Tokens {
			liquidity, err := t.Liquidity()
			if err != nil {
				log.Fatal("Bad token config", zap.Error(err))
			}
			if err := assetLedger.Mint(poolAddr, t.TokenAddress(), liquidity); err != nil {
				log.Fatal("Failed to seed liquidity", zap.Error(err))
			}
			pool.RegisterToken(flashloan.TokenConfig{Token: t.TokenAddress(), FeeBps: t.FeeBps})
		}

		b, err := borrower.New(
			common.HexToAddress(cfg.BorrowerAddress),
			pool,
			assetLedger,
			passthrough.New(log),
			log,
		)
		if err != nil {
			log.Fatal("Failed to create borrower", zap.Error(err))
		}

		data, err := borrower.EncodePayload(false)
		if err != nil {
			log.Fatal("Failed to encode payload", zap.Error(err))
		}

		limiter := rate.NewLimiter(rate.Limit(cfg.Demo.RatePerSecond), cfg.Demo.Burst)
		token := cfg.Tokens[0].TokenAddress()

		for i := 0; i < cfg.Demo.Loans; i++ {
			if err := limiter.Wait(cmd.Context()); err != nil {
				log.Warn("demo interrupted", zap.Error(err))
				break
			}

			amount := pool.MaxFlashLoan(token)
			fee, err := pool.FlashFee(token, amount)
			if err != nil {
				log.Fatal("Failed to quote fee", zap.Error(err))
			}

			// The pass-through strategy earns nothing, so fund the fee
			// up front the way the reference environment does.
			if err := assetLedger.Mint(b.Address(), token, fee); err != nil {
				log.Fatal("Failed to fund fee", zap.Error(err))
			}

			record, err := b.FlashBorrow(cmd.Context(), token, amount, data)
			if err != nil {
				log.Error("Flash loan failed", zap.Error(err))
				continue
			}
			log.Info("demo loan completed",
				zap.Uint64("id", record.ID),
				zap.String("amount", record.Amount.String()),
				zap.String("fee", record.Fee.String()),
				zap.String("pool_balance", assetLedger.BalanceOf(poolAddr, token).String()))
		}

		totals := make(map[string]*big.Int)
		for _, ev := range eventLog.Entries() {
			if fl, ok := ev.(events.FlashLoanEvent); ok {
				key := fl.Token.Hex()
				if totals[key] == nil {
					totals[key] = new(big.Int)
				}
				totals[key].Add(totals[key], fl.Fee)
			}
		}
		for tok, feeSum := range totals {
			log.Info("fees collected", zap.String("token", tok), zap.String("total", feeSum.String()))
		}
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
