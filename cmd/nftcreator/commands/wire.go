package commands

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"nftcreator/internal/config"
	"nftcreator/internal/creator"
	"nftcreator/internal/inference"
	"nftcreator/internal/mint"
	"nftcreator/internal/server"
	"nftcreator/internal/storage"
	"nftcreator/internal/wallet"
)

// dryRunAccount is the sender shown when minting against the in-process contract.
var dryRunAccount = common.HexToAddress("0x00000000000000000000000000000000000d3a11")

// pipeline is everything a command needs to run submissions.
type pipeline struct {
	creator *creator.Creator
	checker server.Checker
	rpc     server.Pinger
	metrics *server.Metrics
	journal *server.Journal
}

func buildPipeline(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*pipeline, error) {
	metrics := server.NewMetrics()
	journal := server.NewJournal(cfg.Service.FailedDir, metrics, logger)

	generator, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	retrying := inference.NewRetrying(generator, cfg.Retry, logger)
	retrying.OnRetry = metrics.IncRetry

	var uploader interface {
		storage.Uploader
		server.Checker
	}
	if dryRun {
		uploader = storage.NewMemoryStore(cfg.Storage.Gateway)
	} else {
		if cfg.Storage.APIKey == "" {
			logger.Warn("NFT_STORAGE_API_KEY is not set; uploads will be rejected")
		}
		uploader = storage.NewClient(cfg.Storage.Endpoint, cfg.Storage.APIKey, cfg.Storage.Gateway, logger)
	}

	price, err := mint.ParseEther(cfg.Chain.MintPrice)
	if err != nil {
		return nil, fmt.Errorf("MINT_PRICE: %w", err)
	}

	p := &pipeline{checker: uploader, metrics: metrics, journal: journal}

	var (
		invoker   *mint.Invoker
		minter    creator.Minter
		info      creator.SessionInfo
		preflight func(context.Context) error
	)
	if dryRun {
		contract := mint.NewFakeContract(price)
		invoker = mint.NewInvoker(contract, mint.FakeSigner{From: dryRunAccount}, price, logger)
		minter = invoker
		logContract(ctx, logger, contract, price)
		info = creator.SessionInfo{Account: dryRunAccount.Hex(), ChainID: "dry-run"}
	} else {
		sess, err := connectWallet(ctx, cfg, logger)
		if err != nil {
			// Keep serving so the failure is shown on the status display.
			logger.Error("wallet unavailable", zap.Error(err))
			minter = unavailable{err: err}
			preflight = func(context.Context) error { return err }
		} else {
			invoker = mint.NewInvoker(sess.Contract, sess, price, logger)
			minter = invoker
			info = creator.SessionInfo{Account: sess.AccountHex(), ChainID: sess.ChainID.String()}
			preflight = func(context.Context) error {
				if _, ok := sess.Account(); !ok {
					return wallet.ErrNoAccount
				}
				return nil
			}
			p.rpc = sess
			logContract(ctx, logger, sess.Contract, price)
		}
	}

	p.creator = creator.New(creator.Services{
		Generator: retrying,
		Uploader:  uploader,
		Minter:    minter,
	}, creator.Options{
		Timeouts:  cfg.Timeouts,
		Session:   info,
		Logger:    logger,
		Observer:  server.Observers{metrics, journal},
		Preflight: preflight,
	})
	if invoker != nil {
		invoker.OnSent = p.creator.NotePending
	}
	return p, nil
}

func buildGenerator(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (inference.Generator, error) {
	if dryRun {
		return inference.FakeGenerator{}, nil
	}
	switch cfg.Inference.Provider {
	case "gemini":
		return inference.NewGeminiClient(ctx, cfg.Inference.GeminiKey, cfg.Inference.GeminiModel, logger)
	case "huggingface", "":
		if cfg.Inference.APIKey == "" {
			logger.Warn("HUGGING_FACE_API_KEY is not set; generation will be rejected")
		}
		return inference.NewHTTPClient(cfg.Inference.Endpoint, cfg.Inference.APIKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown INFERENCE_PROVIDER %q", cfg.Inference.Provider)
	}
}

func connectWallet(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*wallet.Session, error) {
	client, err := wallet.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, err
	}
	sess, err := wallet.Connect(ctx, client, cfg.Networks, cfg.Chain.ContractName, wallet.SignerFromConfig(cfg.Chain), logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return sess, nil
}

// contractViews is the read-only surface logged at startup.
type contractViews interface {
	Cost(ctx context.Context) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
}

func logContract(ctx context.Context, logger *zap.Logger, c contractViews, price *big.Int) {
	if supply, err := c.TotalSupply(ctx); err != nil {
		logger.Warn("could not read total supply", zap.Error(err))
	} else {
		logger.Info("contract supply", zap.String("minted", supply.String()))
	}

	if price != nil {
		logger.Info("mint price from config", zap.String("ether", mint.FormatEther(price)))
		return
	}
	cost, err := c.Cost(ctx)
	if err != nil {
		logger.Warn("could not read mint price", zap.Error(err))
		return
	}
	logger.Info("mint price from contract", zap.String("ether", mint.FormatEther(cost)))
}

// unavailable fails every mint with the wallet connection error.
type unavailable struct{ err error }

func (u unavailable) Mint(context.Context, string) (mint.Receipt, error) {
	return mint.Receipt{}, u.err
}
