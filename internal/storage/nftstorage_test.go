package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

func TestMetadataURL(t *testing.T) {
	assert.Equal(t, "https://ipfs.io/ipfs/abc123/metadata.json", MetadataURL("ipfs.io", "abc123"))
	assert.Equal(t, "https://ipfs.io/ipfs/abc123/metadata.json", MetadataURL("https://ipfs.io/", "abc123"))
	assert.Equal(t, "https://nftstorage.link/ipfs/abc123/metadata.json", MetadataURL("nftstorage.link", "abc123"))
}

func TestStoreUploadsImageAndMetadata(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0x00}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/store", r.URL.Path)
		assert.Equal(t, "Bearer storage-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		var meta map[string]any
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("meta")), &meta))
		assert.Equal(t, "Sunset", meta["name"])
		assert.Equal(t, "a sunset over the sea", meta["description"])
		assert.Contains(t, meta, "image")
		assert.Nil(t, meta["image"])

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		got, _ := io.ReadAll(f)
		assert.Equal(t, image, got)
		assert.Equal(t, "image.jpeg", hdr.Filename)
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))

		_, _ = w.Write([]byte(`{"ok":true,"value":{"ipnft":"` + sampleCID + `","url":"ipfs://` + sampleCID + `/metadata.json"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "storage-key", "ipfs.io", zap.NewNop())
	stored, err := c.Store(context.Background(), Asset{
		Name:        "Sunset",
		Description: "a sunset over the sea",
		Image:       image,
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, sampleCID, stored.CID)
	assert.Equal(t, "https://ipfs.io/ipfs/"+sampleCID+"/metadata.json", stored.MetadataURL)
}

func TestStoreErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"service error", http.StatusUnauthorized, `{"ok":false,"error":{"name":"HTTPError","message":"invalid token"}}`, ErrRejected},
		{"ok false on 200", http.StatusOK, `{"ok":false,"error":{"message":"quota exceeded"}}`, ErrRejected},
		{"missing identifier", http.StatusOK, `{"ok":true,"value":{}}`, ErrBadIdentifier},
		{"identifier with path", http.StatusOK, `{"ok":true,"value":{"ipnft":"abc/../x"}}`, ErrBadIdentifier},
		{"not json", http.StatusOK, `<html>`, ErrMalformedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "k", "ipfs.io", zap.NewNop()).Store(context.Background(), Asset{Image: []byte{1}})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestStoreKeepsIdentifierAsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"value":{"ipnft":"abc123"}}`))
	}))
	defer srv.Close()

	stored, err := NewClient(srv.URL, "k", "ipfs.io", zap.NewNop()).Store(context.Background(), Asset{Image: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "abc123", stored.CID)
	assert.Equal(t, "https://ipfs.io/ipfs/abc123/metadata.json", stored.MetadataURL)
}

func TestStoreRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"value":{"ipnft":"` + sampleCID + `"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "ipfs.io", zap.NewNop())
	c.maxBytes = 16
	_, err := c.Store(context.Background(), Asset{Image: []byte{1}})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestStoreTransportFailureIsNotRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "k", "ipfs.io", zap.NewNop()).Store(context.Background(), Asset{Image: []byte{1}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestCheckPendingIsNotAnError(t *testing.T) {
	status := "queued"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check/"+sampleCID {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"ok":false,"error":{"message":"not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"value":{"cid":"` + sampleCID + `","pin":{"status":"` + status + `"}}}`))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "k", "ipfs.io", zap.NewNop())

	avail, err := c.Check(context.Background(), sampleCID)
	require.NoError(t, err)
	assert.True(t, avail.Pending())
	assert.False(t, avail.Available())

	status = "pinned"
	avail, err = c.Check(context.Background(), sampleCID)
	require.NoError(t, err)
	assert.True(t, avail.Available())

	_, err = c.Check(context.Background(), "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Check(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrBadIdentifier)
}

func TestMemoryStoreIsContentAddressed(t *testing.T) {
	m := NewMemoryStore("ipfs.io")
	asset := Asset{Name: "n", Description: "d", Image: []byte("pixels")}

	a, err := m.Store(context.Background(), asset)
	require.NoError(t, err)
	b, err := m.Store(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, a.CID, b.CID)

	asset.Name = "other"
	c, err := m.Store(context.Background(), asset)
	require.NoError(t, err)
	assert.NotEqual(t, a.CID, c.CID)

	avail, err := m.Check(context.Background(), a.CID)
	require.NoError(t, err)
	assert.True(t, avail.Available())
}
