package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// MemoryStore content-addresses assets in memory. Dry-run mode and tests
// use it in place of the remote service.
type MemoryStore struct {
	Gateway string

	mu      sync.Mutex
	objects map[string]Asset
}

func NewMemoryStore(gateway string) *MemoryStore {
	return &MemoryStore{Gateway: gateway, objects: make(map[string]Asset)}
}

func (m *MemoryStore) Store(ctx context.Context, asset Asset) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	id, err := ObjectCID(asset)
	if err != nil {
		return Stored{}, err
	}

	m.mu.Lock()
	m.objects[id.String()] = asset
	m.mu.Unlock()

	return Stored{CID: id.String(), MetadataURL: MetadataURL(m.Gateway, id.String())}, nil
}

func (m *MemoryStore) Check(_ context.Context, id string) (Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return Availability{}, ErrNotFound
	}
	return Availability{CID: id, Status: PinPinned}, nil
}

// ObjectCID hashes the asset into a CIDv1. It does not reproduce the
// identifier the real service would assign.
func ObjectCID(asset Asset) (cid.Cid, error) {
	meta, err := json.Marshal(struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}{asset.Name, asset.Description})
	if err != nil {
		return cid.Undef, err
	}
	payload := append(meta, asset.Image...)
	mh, err := multihash.Sum(payload, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.DagCBOR, mh), nil
}
