package crypto

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestKeyFileRoundTrip(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	blob, err := EncryptKey(key, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.FromECDSA(key), ethcrypto.FromECDSA(got))

	_, err = DecryptKey(blob, "wrong")
	assert.ErrorContains(t, err, "wrong password")

	_, err = EncryptKey(key, "")
	assert.Error(t, err)
}

func TestLoadKeyRaw(t *testing.T) {
	key, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, common.Bytes2Hex(ethcrypto.FromECDSA(key)))

	_, err = LoadKey(KeyConfig{RawPrivateKey: "zz"})
	assert.Error(t, err)
	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestSigner(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	s, err := NewSigner(key, 56)
	require.NoError(t, err)

	to := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(56),
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21_000,
		To:        &to,
		Value:     big.NewInt(0),
	})
	signed, err := s.SignTx(tx)
	require.NoError(t, err)
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(56)), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)

	sig, err := s.SignMessage([]byte("report"))
	require.NoError(t, err)
	who, err := RecoverMessageSigner([]byte("report"), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), who)

	_, err = NewSigner(key, 0)
	assert.Error(t, err)
}

func TestRequestAuth(t *testing.T) {
	a := &RequestAuth{Secret: "s3cret", MaxSkew: time.Minute}
	now := time.Unix(1_700_000_000, 0)
	h := a.HeadersAt("POST", "/api/venues", `{"name":"x"}`, now.Unix())

	assert.NoError(t, a.Verify("POST", "/api/venues", `{"name":"x"}`, h[HeaderTimestamp], h[HeaderSignature], now))
	assert.Error(t, a.Verify("POST", "/api/venues", `{"name":"y"}`, h[HeaderTimestamp], h[HeaderSignature], now))
	assert.Error(t, a.Verify("POST", "/api/venues", `{"name":"x"}`, h[HeaderTimestamp], h[HeaderSignature], now.Add(2*time.Minute)))
	assert.Error(t, a.Verify("POST", "/api/venues", "", "abc", "", now))
	assert.Equal(t, "RequestAuth{secret=s3cr****, skew=1m0s}", a.String())
}
