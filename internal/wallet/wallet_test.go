package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nftcreator/internal/config"
)

// fakeProvider only answers ChainID; every other call panics via the nil embed.
type fakeProvider struct {
	Provider
	chainID *big.Int
	err     error
}

func (f *fakeProvider) ChainID(context.Context) (*big.Int, error) {
	return f.chainID, f.err
}

var testNetworks = config.Networks{
	"31337": {"nft": {Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"}},
	"5":     {"nft": {Address: "not-an-address"}},
}

const hardhatKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestConnectUnsupportedNetwork(t *testing.T) {
	signerCalled := false
	signer := func(context.Context, *big.Int) (*bind.TransactOpts, error) {
		signerCalled = true
		return nil, errors.New("should not be called")
	}

	sess, err := Connect(context.Background(), &fakeProvider{chainID: big.NewInt(1)}, testNetworks, "nft", signer, zap.NewNop())

	require.ErrorIs(t, err, ErrUnsupportedNetwork)
	assert.Nil(t, sess, "no contract handle is constructed")
	assert.False(t, signerCalled)
}

func TestConnectInvalidAddressIsUnsupported(t *testing.T) {
	_, err := Connect(context.Background(), &fakeProvider{chainID: big.NewInt(5)}, testNetworks, "nft", nil, zap.NewNop())
	require.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestConnectNoProvider(t *testing.T) {
	_, err := Connect(context.Background(), nil, testNetworks, "nft", nil, zap.NewNop())
	require.ErrorIs(t, err, ErrNoWallet)
}

func TestDialWithoutURL(t *testing.T) {
	_, err := Dial(context.Background(), "")
	require.ErrorIs(t, err, ErrNoWallet)
}

func TestConnectChainIDFailure(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := Connect(context.Background(), &fakeProvider{err: boom}, testNetworks, "nft", nil, zap.NewNop())
	require.ErrorIs(t, err, boom)
}

func TestConnectReadOnlySession(t *testing.T) {
	sess, err := Connect(context.Background(), &fakeProvider{chainID: big.NewInt(31337)}, testNetworks, "nft", nil, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", sess.Contract.Address().Hex())
	_, ok := sess.Account()
	assert.False(t, ok)

	_, err = sess.Transactor(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestConnectWithPrivateKey(t *testing.T) {
	sess, err := Connect(context.Background(), &fakeProvider{chainID: big.NewInt(31337)}, testNetworks, "nft", PrivateKeySigner(hardhatKey), zap.NewNop())
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(hardhatKey[2:])
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	got, ok := sess.Account()
	require.True(t, ok)
	assert.Equal(t, want, got)

	value := big.NewInt(1_000_000)
	opts, err := sess.Transactor(context.Background(), value)
	require.NoError(t, err)
	assert.Equal(t, value, opts.Value)
	assert.Equal(t, want, opts.From)
}

func TestSignerFromConfig(t *testing.T) {
	assert.Nil(t, SignerFromConfig(config.ChainConfig{}))
	assert.NotNil(t, SignerFromConfig(config.ChainConfig{PrivateKey: hardhatKey}))
	assert.NotNil(t, SignerFromConfig(config.ChainConfig{KeystorePath: "/tmp/key.json"}))
}

func TestPrivateKeySignerRejectsGarbage(t *testing.T) {
	_, err := PrivateKeySigner("0xnothex")(context.Background(), big.NewInt(1))
	assert.Error(t, err)
}
