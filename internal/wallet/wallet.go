// Package wallet connects to the chain provider, resolves the active network
// and binds the minting contract for it.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"nftcreator/internal/config"
	"nftcreator/internal/contracts"
)

var (
	ErrNoWallet           = errors.New("no wallet detected")
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrNoAccount          = errors.New("no account connected")
)

// Provider is the chain handle a session is built on. *ethclient.Client satisfies it.
type Provider interface {
	contracts.Backend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Session is the wallet state held for the lifetime of the process.
type Session struct {
	Provider Provider
	ChainID  *big.Int
	Contract *contracts.NFT

	account    *common.Address
	transactor *bind.TransactOpts
}

// Dial opens the provider. An empty URL means no wallet is configured.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, ErrNoWallet
	}
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial rpc: %v", ErrNoWallet, err)
	}
	return cli, nil
}

// Connect resolves the chain id, looks up the contract address for it and
// binds the contract. signer may be nil for a read-only session.
func Connect(ctx context.Context, provider Provider, networks config.Networks, contractName string, signer SignerSource, logger *zap.Logger) (*Session, error) {
	if provider == nil {
		return nil, ErrNoWallet
	}

	chainID, err := provider.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	addr, ok := networks.Lookup(chainID.Int64(), contractName)
	if !ok {
		return nil, fmt.Errorf("%w: chain %s has no %q contract", ErrUnsupportedNetwork, chainID, contractName)
	}
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("%w: invalid %q address %q for chain %s", ErrUnsupportedNetwork, contractName, addr, chainID)
	}

	nft, err := contracts.NewNFT(common.HexToAddress(addr), provider)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Provider: provider,
		ChainID:  chainID,
		Contract: nft,
	}

	if signer != nil {
		opts, err := signer(ctx, chainID)
		if err != nil {
			return nil, fmt.Errorf("signer: %w", err)
		}
		s.transactor = opts
		s.account = &opts.From
	}

	logger.Info("wallet connected",
		zap.String("chainId", chainID.String()),
		zap.String("contract", addr),
		zap.String("account", s.AccountHex()),
	)
	return s, nil
}

// Account returns the connected account, if any.
func (s *Session) Account() (common.Address, bool) {
	if s.account == nil {
		return common.Address{}, false
	}
	return *s.account, true
}

func (s *Session) AccountHex() string {
	if s.account == nil {
		return ""
	}
	return s.account.Hex()
}

// Transactor returns a copy of the signer options bound to ctx and carrying value.
func (s *Session) Transactor(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	if s.transactor == nil {
		return nil, ErrNoAccount
	}
	opts := *s.transactor
	opts.Context = ctx
	opts.Value = value
	opts.GasLimit = 0 // let node estimate
	opts.Nonce = nil
	return &opts, nil
}

func (s *Session) Ping(ctx context.Context) error {
	_, err := s.Provider.BlockNumber(ctx)
	return err
}
