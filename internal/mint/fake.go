package mint

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// FakeContract records mints in memory and confirms them immediately.
type FakeContract struct {
	Price *big.Int

	mu     sync.Mutex
	uris   []string
	byHash map[common.Hash]uint64
}

func NewFakeContract(price *big.Int) *FakeContract {
	return &FakeContract{Price: price, byHash: make(map[common.Hash]uint64)}
}

func (f *FakeContract) Mint(opts *bind.TransactOpts, tokenURI string) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Price != nil && (opts.Value == nil || opts.Value.Cmp(f.Price) < 0) {
		return nil, ErrInsufficientFunds
	}
	f.uris = append(f.uris, tokenURI)
	nonce := uint64(len(f.uris))
	tx := types.NewTx(&types.LegacyTx{
		Nonce: nonce,
		Value: opts.Value,
		Data:  crypto.Keccak256([]byte(tokenURI)),
	})
	f.byHash[tx.Hash()] = nonce
	return tx, nil
}

func (f *FakeContract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	block := f.byHash[tx.Hash()]
	f.mu.Unlock()
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(block),
	}, nil
}

func (f *FakeContract) Cost(context.Context) (*big.Int, error) {
	if f.Price == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(f.Price), nil
}

func (f *FakeContract) MintedTokenID(receipt *types.Receipt) (*big.Int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byHash[receipt.TxHash]
	if !ok {
		return nil, false
	}
	return new(big.Int).SetUint64(id), true
}

func (f *FakeContract) TotalSupply(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return big.NewInt(int64(len(f.uris))), nil
}

func (f *FakeContract) TokenURI(_ context.Context, tokenID *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !tokenID.IsUint64() || tokenID.Uint64() == 0 || tokenID.Uint64() > uint64(len(f.uris)) {
		return "", fmt.Errorf("token %s does not exist", tokenID)
	}
	return f.uris[tokenID.Uint64()-1], nil
}

// Minted returns the token URIs minted so far.
func (f *FakeContract) Minted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uris...)
}

// FakeSigner signs nothing; it only carries a sender address.
type FakeSigner struct {
	From common.Address
}

func (s FakeSigner) Transactor(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: s.From, Context: ctx, Value: value}, nil
}
