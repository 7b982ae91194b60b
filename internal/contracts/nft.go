// Package contracts holds the ABI and a thin binding for the deployed NFT
// contract: mint(string tokenURI) payable plus the read-only views the
// creator needs.
package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NFTABI covers the subset of the ERC-721 minting contract we call.
const NFTABI = `[
  {"type":"function","name":"mint","stateMutability":"payable",
   "inputs":[{"name":"tokenURI","type":"string"}],"outputs":[]},
  {"type":"function","name":"cost","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokenURI","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"event","name":"Transfer","anonymous":false,
   "inputs":[{"name":"from","type":"address","indexed":true},
             {"name":"to","type":"address","indexed":true},
             {"name":"tokenId","type":"uint256","indexed":true}]}
]`

// Backend is what the binding needs from the provider.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// NFT is a read/write handle to a deployed minting contract.
type NFT struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	backend  Backend
}

// NewNFT binds the ABI to address on backend. No RPC call is made.
func NewNFT(address common.Address, backend Backend) (*NFT, error) {
	parsed, err := abi.JSON(strings.NewReader(NFTABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &NFT{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:  backend,
	}, nil
}

func (n *NFT) Address() common.Address { return n.address }

// Mint sends mint(tokenURI) with opts.Value attached.
func (n *NFT) Mint(opts *bind.TransactOpts, tokenURI string) (*types.Transaction, error) {
	return n.contract.Transact(opts, "mint", tokenURI)
}

// WaitMined blocks until tx has one confirmation or ctx ends.
func (n *NFT) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, n.backend, tx)
}

// Cost reads the contract's mint price in wei.
func (n *NFT) Cost(ctx context.Context) (*big.Int, error) {
	return n.callUint(ctx, "cost")
}

// TotalSupply reads how many tokens have been minted.
func (n *NFT) TotalSupply(ctx context.Context) (*big.Int, error) {
	return n.callUint(ctx, "totalSupply")
}

// TokenURI reads the metadata URL recorded for tokenID.
func (n *NFT) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	var out []interface{}
	if err := n.contract.Call(&bind.CallOpts{Context: ctx}, &out, "tokenURI", tokenID); err != nil {
		return "", err
	}
	return out[0].(string), nil
}

// MintedTokenID extracts the token id from the Transfer event of a mint receipt.
func (n *NFT) MintedTokenID(receipt *types.Receipt) (*big.Int, bool) {
	event := n.abi.Events["Transfer"]
	for _, l := range receipt.Logs {
		if l.Address != n.address || len(l.Topics) != 4 || l.Topics[0] != event.ID {
			continue
		}
		if l.Topics[1] != (common.Hash{}) {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes()), true
	}
	return nil, false
}

func (n *NFT) callUint(ctx context.Context, method string) (*big.Int, error) {
	var out []interface{}
	if err := n.contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}
