package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/profitharness/internal/crypto"
	"github.com/alanyoungcy/profitharness/internal/domain"
)

// memBlobs is an in-memory blob store.
type memBlobs struct {
	objects   map[string][]byte
	multipart int
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	m.objects[path] = b
	return err
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart++
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func sampleResult() domain.ExecutionResult {
	return domain.ExecutionResult{
		ID:        "6f1c2a4e-0000-4000-8000-000000000001",
		Strategy:  "noop",
		Success:   true,
		BaseAsset: common.HexToAddress("0x00000000000000000000000000000000000000b1"),
		Profit:    big.NewInt(12),
		StartedAt: time.Date(2026, 3, 4, 23, 30, 0, 0, time.FixedZone("x", -2*3600)),
	}
}

func TestReportPathUsesUTC(t *testing.T) {
	assert.Equal(t, "reports/2026/03/05/6f1c2a4e-0000-4000-8000-000000000001.json", ReportPath(sampleResult()))
}

func TestArchiveSignedRoundTrip(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	signer, err := crypto.NewSigner(key, 1)
	require.NoError(t, err)

	blobs := newMemBlobs()
	a := NewReportArchiver(blobs, blobs, signer, slog.Default())
	ctx := context.Background()

	path, err := a.Archive(ctx, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, ReportPath(sampleResult()), path)
	assert.Zero(t, blobs.multipart)

	rep, err := a.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, signer.Address().Hex(), rep.Signer)

	who, err := crypto.RecoverMessageSigner(rep.Result, rep.Signature)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), who)

	res, err := rep.Decode()
	require.NoError(t, err)
	assert.Equal(t, 0, res.Profit.Cmp(big.NewInt(12)))
	assert.Equal(t, "noop", res.Strategy)
}

func TestArchiveUnsignedAndMissing(t *testing.T) {
	blobs := newMemBlobs()
	a := NewReportArchiver(blobs, blobs, nil, slog.Default())
	ctx := context.Background()

	path, err := a.Archive(ctx, sampleResult())
	require.NoError(t, err)
	rep, err := a.Load(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, rep.Signature)

	_, err = a.Load(ctx, "reports/none.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = NewReportArchiver(blobs, nil, nil, slog.Default()).Load(ctx, path)
	assert.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://r2.dev", normaliseEndpoint("https://r2.dev", false))
}
