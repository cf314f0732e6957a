package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const account = "0x00000000000000000000000000000000000000a1"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harness.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsNeedAccountForMemoryBackend(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "harness: account is required")

	cfg.Harness.Account = account
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
mode = "run"

[harness]
account = "`+account+`"
slippage_bps = 100
swap_deadline = "45s"

[strategy]
name = "revert"

[[venues]]
name = "alpha"
router = "0x00000000000000000000000000000000000000d1"
fee_bps = 30
active = true
`)
	t.Setenv("HARNESS_SLIPPAGE_BPS", "250")
	t.Setenv("HARNESS_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "run", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250, cfg.Harness.SlippageBps)
	assert.Equal(t, 45*time.Second, cfg.Harness.SwapDeadline.Duration)
	require.Len(t, cfg.Venues, 1)
	assert.Equal(t, "alpha", cfg.Venues[0].Name)
	assert.Equal(t, "harness:execute", cfg.Harness.LockKey)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Backend = "evm"
	cfg.Harness.SlippageBps = 20_000
	cfg.Venues = []VenueConfig{{Router: "nope", FeeBps: 10_000}}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		"slippage_bps must be 0-10000",
		"venues[0]: name must not be empty",
		`venues[0]: router: "nope" is not a hex address`,
		"fee_bps must be 0-9999",
		"chain: rpc_url is required",
		"wallet: either private_key or encrypted_key_path",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateMemoryTokens(t *testing.T) {
	cfg := Defaults()
	cfg.Memory.Tokens = []MemoryToken{
		{Asset: "0x00000000000000000000000000000000000000b1", Symbol: "BASE", Decimals: 18},
		{Symbol: "NOADDR", Decimals: 6},
		{Asset: "0x00000000000000000000000000000000000000c1", Decimals: 300},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory.tokens[1]: asset must not be empty")
	assert.Contains(t, err.Error(), "memory.tokens[2]: decimals must be 0-77, got 300")
	assert.NotContains(t, err.Error(), "memory.tokens[0]")
}

func TestApplyPresets(t *testing.T) {
	cfg := Defaults()
	cfg.Backend = "evm"
	cfg.Chain.ChainID = 56
	ApplyPresets(&cfg)

	assert.Equal(t, ChainPresets[56].BaseAsset, cfg.Harness.BaseAsset)
	require.Len(t, cfg.Venues, 2)
	assert.Equal(t, "PancakeSwap V2", cfg.Venues[0].Name)
	assert.Len(t, cfg.Intermediates, 4)

	explicit := Defaults()
	explicit.Backend = "evm"
	explicit.Venues = []VenueConfig{{Name: "mine"}}
	ApplyPresets(&explicit)
	require.Len(t, explicit.Venues, 1)
	assert.Equal(t, ChainPresets[1].BaseAsset, explicit.Harness.BaseAsset)

	mem := Defaults()
	ApplyPresets(&mem)
	assert.Empty(t, mem.Venues)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Chain.RPCURL = "https://node.example/key"
	cfg.Server.APIKey = "secret"
	cfg.Intermediates = []string{account}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Chain.RPCURL)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Wallet.KeyPassword)

	out.Intermediates[0] = "changed"
	assert.Equal(t, account, cfg.Intermediates[0])
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 1000000000000000000000 ")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000", v.String())

	_, err = ParseAmount("-1")
	assert.Error(t, err)
	_, err = ParseAmount("1.5")
	assert.Error(t, err)
}
