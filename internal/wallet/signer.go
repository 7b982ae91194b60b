package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"nftcreator/internal/config"
)

// SignerSource builds transaction options for the resolved chain.
type SignerSource func(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error)

// SignerFromConfig picks the first configured signer: Clef, keystore, then
// raw key. It returns nil when none is configured.
func SignerFromConfig(cfg config.ChainConfig) SignerSource {
	switch {
	case cfg.SignerURL != "":
		return ClefSigner(cfg.SignerURL, cfg.SignerAcct)
	case cfg.KeystorePath != "":
		return KeystoreSigner(cfg.KeystorePath, cfg.KeystorePass)
	case cfg.PrivateKey != "":
		return PrivateKeySigner(cfg.PrivateKey)
	default:
		return nil
	}
}

func PrivateKeySigner(hexKey string) SignerSource {
	return func(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
		pk, err := parsePrivateKey(hexKey)
		if err != nil {
			return nil, err
		}
		opts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
		if err != nil {
			return nil, fmt.Errorf("transactor: %w", err)
		}
		opts.Context = ctx
		return opts, nil
	}
}

func KeystoreSigner(path, passphrase string) SignerSource {
	return func(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open keystore: %w", err)
		}
		defer f.Close()

		opts, err := bind.NewTransactorWithChainID(f, passphrase, chainID)
		if err != nil {
			return nil, fmt.Errorf("unlock keystore: %w", err)
		}
		opts.Context = ctx
		return opts, nil
	}
}

// ClefSigner delegates signing to an external Clef instance. Each mint is
// confirmed or denied by the operator there.
func ClefSigner(endpoint, account string) SignerSource {
	return func(ctx context.Context, _ *big.Int) (*bind.TransactOpts, error) {
		clef, err := external.NewExternalSigner(endpoint)
		if err != nil {
			return nil, fmt.Errorf("%w: clef: %v", ErrNoWallet, err)
		}

		var acct accounts.Account
		if account != "" {
			if !common.IsHexAddress(account) {
				return nil, fmt.Errorf("invalid clef account %q", account)
			}
			acct = accounts.Account{Address: common.HexToAddress(account)}
		} else {
			accts := clef.Accounts()
			if len(accts) == 0 {
				return nil, ErrNoAccount
			}
			acct = accts[0]
		}

		opts := bind.NewClefTransactor(clef, acct)
		opts.Context = ctx
		return opts, nil
	}
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
