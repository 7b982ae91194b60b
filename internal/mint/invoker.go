// Package mint calls the contract's payable mint entry point and waits for
// the transaction to be confirmed.
package mint

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

var (
	ErrRejected          = errors.New("transaction rejected in wallet")
	ErrInsufficientFunds = errors.New("insufficient funds for mint")
	ErrReverted          = errors.New("mint transaction reverted")
	ErrEmptyTokenURI     = errors.New("token uri is empty")
)

// Contract is the on-chain surface the invoker needs. *contracts.NFT satisfies it.
type Contract interface {
	Mint(opts *bind.TransactOpts, tokenURI string) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Cost(ctx context.Context) (*big.Int, error)
}

// Signer hands out transaction options carrying value. *wallet.Session satisfies it.
type Signer interface {
	Transactor(ctx context.Context, value *big.Int) (*bind.TransactOpts, error)
}

type tokenIDReader interface {
	MintedTokenID(receipt *types.Receipt) (*big.Int, bool)
}

type tokenURIReader interface {
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
}

// Receipt summarises a confirmed mint.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	TokenID     *big.Int
	Price       *big.Int
	// TokenURI is read back from the contract; empty when it could not be.
	TokenURI string
}

// Invoker mints one token per call.
type Invoker struct {
	contract Contract
	signer   Signer
	// price in wei; nil reads cost() from the contract on every mint
	price  *big.Int
	logger *zap.Logger
	// OnSent observes the hash once the transaction is broadcast.
	OnSent func(tx common.Hash)
}

func NewInvoker(contract Contract, signer Signer, price *big.Int, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{contract: contract, signer: signer, price: price, logger: logger}
}

// Mint sends mint(tokenURI) with the configured fee and waits for one confirmation.
func (m *Invoker) Mint(ctx context.Context, tokenURI string) (Receipt, error) {
	if strings.TrimSpace(tokenURI) == "" {
		return Receipt{}, ErrEmptyTokenURI
	}

	price, err := m.quote(ctx)
	if err != nil {
		return Receipt{}, err
	}

	opts, err := m.signer.Transactor(ctx, price)
	if err != nil {
		return Receipt{}, err
	}

	tx, err := m.contract.Mint(opts, tokenURI)
	if err != nil {
		return Receipt{}, Classify(err)
	}
	m.logger.Info("mint sent",
		zap.String("tx", tx.Hash().Hex()),
		zap.String("value", price.String()),
		zap.String("tokenURI", tokenURI),
	)
	if m.OnSent != nil {
		m.OnSent(tx.Hash())
	}

	receipt, err := m.contract.WaitMined(ctx, tx)
	if err != nil {
		return Receipt{}, fmt.Errorf("wait for mint %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Receipt{}, fmt.Errorf("%w: tx %s in block %s", ErrReverted, tx.Hash().Hex(), receipt.BlockNumber)
	}

	out := Receipt{TxHash: tx.Hash(), Price: price}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if r, ok := m.contract.(tokenIDReader); ok {
		if id, found := r.MintedTokenID(receipt); found {
			out.TokenID = id
		}
	}
	if out.TokenID != nil {
		out.TokenURI = m.readBack(ctx, out.TokenID, tokenURI)
	}
	return out, nil
}

// readBack confirms the contract recorded tokenURI. The mint is already
// paid for, so a mismatch is logged rather than returned.
func (m *Invoker) readBack(ctx context.Context, id *big.Int, want string) string {
	r, ok := m.contract.(tokenURIReader)
	if !ok {
		return ""
	}
	got, err := r.TokenURI(ctx, id)
	if err != nil {
		m.logger.Warn("read token uri", zap.String("tokenId", id.String()), zap.Error(err))
		return ""
	}
	if got != want {
		m.logger.Warn("token uri differs from submitted metadata",
			zap.String("tokenId", id.String()),
			zap.String("want", want),
			zap.String("got", got),
		)
	}
	return got
}

func (m *Invoker) quote(ctx context.Context) (*big.Int, error) {
	if m.price != nil {
		return new(big.Int).Set(m.price), nil
	}
	cost, err := m.contract.Cost(ctx)
	if err != nil {
		return nil, fmt.Errorf("read mint cost: %w", err)
	}
	return cost, nil
}

// Classify maps a send error onto the mint outcomes users can act on.
// Unrecognised errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrReverted) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "request denied"),
		strings.Contains(msg, "user denied"),
		strings.Contains(msg, "user rejected"),
		strings.Contains(msg, "rejected by user"):
		return fmt.Errorf("%w: %v", ErrRejected, err)
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case strings.Contains(msg, "execution reverted"), strings.Contains(msg, "revert"):
		if reason := revertReason(err); reason != "" {
			return fmt.Errorf("%w: %s", ErrReverted, reason)
		}
		return fmt.Errorf("%w: %v", ErrReverted, err)
	}
	return err
}

func revertReason(err error) string {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return ""
	}
	data, ok := de.ErrorData().(string)
	if !ok {
		return ""
	}
	reason, uerr := abi.UnpackRevert(common.FromHex(data))
	if uerr != nil {
		return ""
	}
	return reason
}
