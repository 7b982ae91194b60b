package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"nftcreator/internal/config"
	"nftcreator/internal/creator"
	"nftcreator/internal/mint"
)

func TestDryRunPipelineMints(t *testing.T) {
	dryRun = true
	t.Cleanup(func() { dryRun = false })

	c := config.FromEnv()
	c.Chain.MintPrice = "0.01"
	c.Service.FailedDir = t.TempDir()

	p, err := buildPipeline(context.Background(), c, zap.NewNop())
	require.NoError(t, err)

	final, err := p.creator.Submit(context.Background(), creator.Draft{Name: "Dusk", Description: "a sunset over the sea"})
	require.NoError(t, err)

	v := p.creator.ViewOf(final)
	assert.True(t, v.Minted)
	assert.Equal(t, dryRunAccount.Hex(), v.Account)
	assert.Equal(t, "dry-run", v.ChainID)
	assert.NotEmpty(t, v.TxHash)

	avail, err := p.checker.Check(context.Background(), final.Metadata.CID)
	require.NoError(t, err)
	assert.True(t, avail.Available())
}

func TestWalletFailureSurfacesOnSubmission(t *testing.T) {
	c := config.FromEnv()
	c.Chain.RPCURL = ""
	c.Inference.Provider = "huggingface"
	c.Service.FailedDir = t.TempDir()

	p, err := buildPipeline(context.Background(), c, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, p.rpc)

	final, err := p.creator.Submit(context.Background(), creator.Draft{Name: "Dusk", Description: "a sunset"})
	require.True(t, creator.IsKind(err, creator.KindWallet), "got %v", err)
	assert.Equal(t, "No wallet detected", final.Err.Msg)
	assert.Nil(t, final.Image, "generation never ran")
	assert.Equal(t, 1, p.journal.Depth())
}

func TestUnknownInferenceProvider(t *testing.T) {
	c := config.FromEnv()
	c.Inference.Provider = "dall-e"

	_, err := buildPipeline(context.Background(), c, zap.NewNop())
	require.Error(t, err)
}

func TestLogContractReportsSupplyAndPrice(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	fc := mint.NewFakeContract(nil)
	_, err := mint.NewInvoker(fc, mint.FakeSigner{}, nil, nil).Mint(context.Background(), "ipfs://one")
	require.NoError(t, err)

	logContract(context.Background(), zap.New(core), fc, nil)

	supply := logs.FilterMessage("contract supply").All()
	require.Len(t, supply, 1)
	assert.Equal(t, "1", supply[0].ContextMap()["minted"])
	assert.Equal(t, 1, logs.FilterMessage("mint price from contract").Len())
}
