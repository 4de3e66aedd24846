package cli

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/Davincible/aescore/pkg/config"
	"github.com/Davincible/aescore/pkg/crypto/aes128"
	"github.com/Davincible/aescore/pkg/crypto/keyshare"
	"github.com/Davincible/aescore/pkg/crypto/mnemonic"
	"github.com/Davincible/aescore/pkg/sharestore"
	"github.com/Davincible/aescore/pkg/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	c1Key        = "000102030405060708090a0b0c0d0e0f"
	c1Plaintext  = "00112233445566778899aabbccddeeff"
	c1Ciphertext = "69c4e0d86a7b0430d8cdb78070b4c55a"
)

// setupConfig points the CLI at a fresh config file with cheap KDF settings.
func setupConfig(t *testing.T) *config.Config {
	t.Helper()
	color.NoColor = true

	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("AESCORE_CONFIG", path)

	cm, err := config.NewConfigManagerAt(path)
	require.NoError(t, err)

	cfg := cm.GetConfig()
	cfg.KDF.Iterations = 1000
	cfg.Storage.KeystoreIterations = 1000
	cfg.Storage.DefaultKeystore = filepath.Join(t.TempDir(), "key.json")
	cfg.Storage.ShareStore = filepath.Join(t.TempDir(), "shares")
	require.NoError(t, cm.SaveConfig())

	return cfg
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := &cobra.Command{Use: "aescore", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().BoolP("verbose", "v", false, "")
	root.PersistentFlags().BoolP("json", "j", false, "")
	root.AddCommand(
		NewEncryptCommand(),
		NewExpandCommand(),
		NewKeygenCommand(),
		NewSplitCommand(),
		NewCombineCommand(),
		NewSharesCommand(),
		NewSelftestCommand(),
	)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestEncryptCommand_KnownAnswers(t *testing.T) {
	setupConfig(t)

	tests := []struct {
		name string
		key  string
		in   string
		want string
	}{
		{"FIPS-197 C.1", c1Key, c1Plaintext, c1Ciphertext},
		{"FIPS-197 B", "2b7e151628aed2a6abf7158809cf4f3c", "3243f6a8885a308d313198a2e0370734", "3925841d02dc09fbdc118597196a0b32"},
		{"zero key", strings.Repeat("00", 16), strings.Repeat("00", 16), "66e94bd4ef8a2c3b884cfa59ca342b2e"},
		{"all ones", strings.Repeat("ff", 16), strings.Repeat("ff", 16), "bcbf217cb280cf30b2517052193ab979"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, "encrypt", "--key", tt.key, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}
}

func TestEncryptCommand_InputForms(t *testing.T) {
	setupConfig(t)

	t.Run("block flag", func(t *testing.T) {
		out, err := executeCommand(t, "encrypt", "-k", c1Key, "-b", c1Plaintext)
		require.NoError(t, err)
		assert.Equal(t, c1Ciphertext, strings.TrimSpace(out))
	})

	t.Run("separators and prefix", func(t *testing.T) {
		out, err := executeCommand(t, "encrypt", "--key", "0x"+c1Key, "00:11:22:33:44:55:66:77:88:99:aa:bb:cc:dd:ee:ff")
		require.NoError(t, err)
		assert.Equal(t, c1Ciphertext, strings.TrimSpace(out))
	})

	t.Run("base64", func(t *testing.T) {
		out, err := executeCommand(t, "encrypt", "--key", c1Key, "--format", "base64", c1Plaintext)
		require.NoError(t, err)
		assert.Equal(t, "acTg2Gp7BDDYzbeAcLTFWg==", strings.TrimSpace(out))
	})
}

func TestEncryptCommand_JSONTrace(t *testing.T) {
	setupConfig(t)

	out, err := executeCommand(t, "encrypt", "--json", "--trace",
		"--key", "2b7e151628aed2a6abf7158809cf4f3c", "3243f6a8885a308d313198a2e0370734")
	require.NoError(t, err)

	var result EncryptResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	assert.Equal(t, "3925841d02dc09fbdc118597196a0b32", result.Ciphertext)
	assert.Equal(t, "hex", result.Format)
	assert.Equal(t, "hex", result.KeySource)
	require.Len(t, result.Trace, 13)

	assert.Equal(t, "initialized", result.Trace[0].Phase)
	assert.Equal(t, "3243f6a8885a308d313198a2e0370734", result.Trace[0].State)
	assert.Equal(t, "round-key-added", result.Trace[1].Phase)
	assert.Equal(t, "193de3bea0f4e22b9ac68d2ae9f84808", result.Trace[1].State)
	assert.Equal(t, "substitute-round", result.Trace[2].Phase)
	assert.Equal(t, 1, result.Trace[2].Round)
	assert.Equal(t, "a49c7ff2689f352b6b5bea43026a5049", result.Trace[2].State)
	assert.Equal(t, "final-round", result.Trace[11].Phase)
	assert.Equal(t, "done", result.Trace[12].Phase)
	assert.Equal(t, result.Ciphertext, result.Trace[12].State)
}

func TestEncryptCommand_Errors(t *testing.T) {
	setupConfig(t)

	tests := []struct {
		name    string
		args    []string
		target  error
		message string
	}{
		{
			name:   "short block",
			args:   []string{"encrypt", "--key", c1Key, "00112233"},
			target: aes128.ErrInvalidBlockLength,
		},
		{
			name:   "long block",
			args:   []string{"encrypt", "--key", c1Key, c1Plaintext + "00"},
			target: aes128.ErrInvalidBlockLength,
		},
		{
			name:   "short key",
			args:   []string{"encrypt", "--key", "000102", c1Plaintext},
			target: aes128.ErrInvalidKeyLength,
		},
		{
			name:   "24-byte key",
			args:   []string{"encrypt", "--key", strings.Repeat("00", 24), c1Plaintext},
			target: aes128.ErrInvalidKeyLength,
		},
		{
			name:    "no key",
			args:    []string{"encrypt", c1Plaintext},
			message: "exactly one of",
		},
		{
			name:    "two keys",
			args:    []string{"encrypt", "--key", c1Key, "--passphrase", "long enough passphrase", c1Plaintext},
			message: "exactly one of",
		},
		{
			name:    "no block",
			args:    []string{"encrypt", "--key", c1Key},
			message: "block is required",
		},
		{
			name:    "block twice",
			args:    []string{"encrypt", "--key", c1Key, "-b", c1Plaintext, c1Plaintext},
			message: "not both",
		},
		{
			name:    "not hex",
			args:    []string{"encrypt", "--key", c1Key, strings.Repeat("zz", 16)},
			message: "invalid block",
		},
		{
			name:    "bad format",
			args:    []string{"encrypt", "--key", c1Key, "--format", "base32", c1Plaintext},
			message: "format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestEncryptCommand_MnemonicKey(t *testing.T) {
	setupConfig(t)

	key, err := aes128.NewKey(mustDecode(t, c1Key))
	require.NoError(t, err)
	m, err := mnemonic.FromKey(key)
	require.NoError(t, err)

	out, err := executeCommand(t, "encrypt", "--mnemonic", m.Words(), c1Plaintext)
	require.NoError(t, err)
	assert.Equal(t, c1Ciphertext, strings.TrimSpace(out))

	_, err = executeCommand(t, "encrypt", "--mnemonic", "abandon abandon abandon", c1Plaintext)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mnemonic")
}

func TestEncryptCommand_PassphraseKey(t *testing.T) {
	cfg := setupConfig(t)
	passphrase := "correct horse battery staple"

	key, err := mnemonic.DeriveKey([]byte(passphrase), []byte(cfg.KDF.Salt), cfg.KDF.Iterations)
	require.NoError(t, err)
	want, err := aes128.Encrypt(key[:], mustDecode(t, c1Plaintext))
	require.NoError(t, err)

	out, err := executeCommand(t, "encrypt", "--passphrase", passphrase, c1Plaintext)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want), strings.TrimSpace(out))

	_, err = executeCommand(t, "encrypt", "--passphrase", "short", c1Plaintext)
	require.Error(t, err)
}

func TestExpandCommand(t *testing.T) {
	setupConfig(t)

	out, err := executeCommand(t, "expand", "--json", "--key", c1Key)
	require.NoError(t, err)

	var result ExpandResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	assert.Equal(t, 44, result.Words)
	require.Len(t, result.RoundKeys, 11)
	assert.Equal(t, []string{"00010203", "04050607", "08090a0b", "0c0d0e0f"}, result.RoundKeys[0])
	assert.Equal(t, []string{"d6aa74fd", "d2af72fa", "daa678f1", "d6ab76fe"}, result.RoundKeys[1])
	assert.Equal(t, []string{"13111d7f", "e3944a17", "f307a78b", "4d2b30c5"}, result.RoundKeys[10])

	out, err = executeCommand(t, "expand", "--key", "2b7e151628aed2a6abf7158809cf4f3c")
	require.NoError(t, err)
	assert.Contains(t, out, "round  1: a0fafe17 88542cb1 23a33939 2a6c7605")
	assert.Contains(t, out, "round 10: d014f9a8 c9ee2589 e13f0cc8 b6630ca6")
}

func TestKeygenCommand(t *testing.T) {
	setupConfig(t)

	out, err := executeCommand(t, "keygen", "--json")
	require.NoError(t, err)

	var result KeygenResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	assert.Len(t, result.Key, 32)
	assert.Len(t, strings.Fields(result.Mnemonic), mnemonic.KeyWordCount)
	assert.Empty(t, result.Keystore)

	m, err := mnemonic.FromWords(result.Mnemonic)
	require.NoError(t, err)
	key, err := m.Key()
	require.NoError(t, err)
	assert.Equal(t, result.Key, hex.EncodeToString(key[:]))
	assert.Equal(t, mnemonic.Fingerprint(key), result.Fingerprint)
}

func TestKeygenCommand_SaveAndUse(t *testing.T) {
	setupConfig(t)
	path := filepath.Join(t.TempDir(), "team.key")

	out, err := executeCommand(t, "keygen", "--json", "--save", "--out", path, "--password", "hunter22")
	require.NoError(t, err)

	var result KeygenResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, path, result.Keystore)
	require.NotEmpty(t, result.Key)

	key := mustDecode(t, result.Key)
	want, err := aes128.Encrypt(key, mustDecode(t, c1Plaintext))
	require.NoError(t, err)

	out, err = executeCommand(t, "encrypt", "--keystore", path, "--password", "hunter22", c1Plaintext)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want), strings.TrimSpace(out))

	t.Run("wrong password", func(t *testing.T) {
		_, err := executeCommand(t, "encrypt", "--keystore", path, "--password", "hunter23", c1Plaintext)
		require.Error(t, err)
		assert.ErrorIs(t, err, storage.ErrAuthentication)
	})

	t.Run("password from input", func(t *testing.T) {
		root := &cobra.Command{Use: "aescore", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().BoolP("json", "j", false, "")
		root.AddCommand(NewEncryptCommand())

		var buf bytes.Buffer
		root.SetOut(&buf)
		root.SetErr(io.Discard)
		root.SetIn(strings.NewReader("hunter22\n"))
		root.SetArgs([]string{"encrypt", "--keystore", path, c1Plaintext})

		require.NoError(t, root.Execute())
		assert.Equal(t, hex.EncodeToString(want), strings.TrimSpace(buf.String()))
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		_, err := executeCommand(t, "keygen", "--save", "--out", path, "--password", "hunter22")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("force replaces", func(t *testing.T) {
		out, err := executeCommand(t, "keygen", "--json", "--save", "--force", "--out", path, "--password", "hunter33")
		require.NoError(t, err)

		var replaced KeygenResult
		require.NoError(t, json.Unmarshal([]byte(out), &replaced))
		assert.NotEqual(t, result.Key, replaced.Key)

		_, err = executeCommand(t, "encrypt", "--keystore", path, "--password", "hunter22", c1Plaintext)
		assert.ErrorIs(t, err, storage.ErrAuthentication)

		out, err = executeCommand(t, "encrypt", "--keystore", path, "--password", "hunter33", c1Plaintext)
		require.NoError(t, err)
		want, err := aes128.Encrypt(mustDecode(t, replaced.Key), mustDecode(t, c1Plaintext))
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(want), strings.TrimSpace(out))
	})

	t.Run("quiet hides the key", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "other.key")
		out, err := executeCommand(t, "keygen", "--json", "--save", "--quiet", "--out", other, "--password", "hunter22")
		require.NoError(t, err)

		var quiet KeygenResult
		require.NoError(t, json.Unmarshal([]byte(out), &quiet))
		assert.Empty(t, quiet.Key)
		assert.Empty(t, quiet.Mnemonic)
		assert.NotEmpty(t, quiet.Fingerprint)
	})
}

func TestSplitCombineCommands(t *testing.T) {
	setupConfig(t)

	out, err := executeCommand(t, "split", "--json", "--key", c1Key, "--parts", "5", "--threshold", "3")
	require.NoError(t, err)

	var split SplitResult
	require.NoError(t, json.Unmarshal([]byte(out), &split))
	require.Len(t, split.Shares, 5)
	assert.Equal(t, 3, split.Threshold)
	assert.Equal(t, 5, split.Total)

	combinations := [][]int{{0, 1, 2}, {1, 3, 4}, {4, 2, 0}, {0, 1, 2, 3, 4}}
	for _, combo := range combinations {
		args := []string{"combine", "--json", "--fingerprint", split.Fingerprint}
		for _, i := range combo {
			args = append(args, split.Shares[i])
		}

		out, err := executeCommand(t, args...)
		require.NoError(t, err, "shares %v", combo)

		var combined CombineResult
		require.NoError(t, json.Unmarshal([]byte(out), &combined))
		assert.Equal(t, c1Key, combined.Key)
		assert.True(t, combined.Verified)
		assert.Len(t, strings.Fields(combined.Mnemonic), mnemonic.KeyWordCount)
	}

	t.Run("below threshold", func(t *testing.T) {
		_, err := executeCommand(t, "combine", "--fingerprint", split.Fingerprint, split.Shares[0], split.Shares[1])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fingerprint mismatch")
	})

	t.Run("bad share", func(t *testing.T) {
		_, err := executeCommand(t, "combine", split.Shares[0], "abcd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "share 2")
	})

	t.Run("bad parameters", func(t *testing.T) {
		_, err := executeCommand(t, "split", "--key", c1Key, "--parts", "2", "--threshold", "3")
		require.Error(t, err)
	})
}

func TestSplitCombineCommands_ShareStore(t *testing.T) {
	setupConfig(t)

	out, err := executeCommand(t, "split", "--json", "--key", c1Key, "-n", "4", "-m", "2", "--store", "team")
	require.NoError(t, err)

	var split SplitResult
	require.NoError(t, json.Unmarshal([]byte(out), &split))
	assert.NotEmpty(t, split.ShareSetID)

	out, err = executeCommand(t, "combine", "--json", "--from", "team")
	require.NoError(t, err)

	var combined CombineResult
	require.NoError(t, json.Unmarshal([]byte(out), &combined))
	assert.Equal(t, c1Key, combined.Key)
	assert.True(t, combined.Verified, "fingerprint comes from the stored set")

	_, err = executeCommand(t, "split", "--key", c1Key, "--store", "team")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = executeCommand(t, "combine", "--from", "missing")
	assert.ErrorIs(t, err, sharestore.ErrNotFound)

	_, err = executeCommand(t, "combine", "--from", "team", split.Shares[0])
	assert.Error(t, err)
}

func TestSplitCommand_StoreModeIsFixed(t *testing.T) {
	setupConfig(t)

	_, err := executeCommand(t, "split", "--key", c1Key, "--store", "a")
	require.NoError(t, err)

	_, err = executeCommand(t, "split", "--key", c1Key, "--store", "b", "--store-password", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, sharestore.ErrNotEncrypted)

	out, err := executeCommand(t, "combine", "--json", "--from", "a")
	require.NoError(t, err)
	var combined CombineResult
	require.NoError(t, json.Unmarshal([]byte(out), &combined))
	assert.Equal(t, c1Key, combined.Key)
}

func TestSharesCommands(t *testing.T) {
	setupConfig(t)

	out, err := executeCommand(t, "split", "--json", "--key", c1Key, "-n", "3", "-m", "2",
		"--store", "team", "--tag", "office")
	require.NoError(t, err)
	var split SplitResult
	require.NoError(t, json.Unmarshal([]byte(out), &split))

	_, err = executeCommand(t, "split", "--key", strings.Repeat("ff", 16), "--store", "lab")
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		out, err := executeCommand(t, "shares", "list", "--json")
		require.NoError(t, err)
		var sets []ShareSetSummary
		require.NoError(t, json.Unmarshal([]byte(out), &sets))
		assert.Len(t, sets, 2)
		assert.NotContains(t, out, split.Shares[0], "list must not print share data")

		out, err = executeCommand(t, "shares", "list", "--json", "--tags", "office")
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal([]byte(out), &sets))
		require.Len(t, sets, 1)
		assert.Equal(t, "team", sets[0].Name)
		assert.Equal(t, 3, sets[0].Stored)
		assert.Equal(t, split.Fingerprint, sets[0].Fingerprint)

		out, err = executeCommand(t, "shares", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "2-of-3")
	})

	t.Run("verify", func(t *testing.T) {
		out, err := executeCommand(t, "shares", "verify", "--json", "team")
		require.NoError(t, err)
		var report sharestore.VerificationReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, 3, report.ValidShares)
		assert.True(t, report.IsRecoverable)
	})

	t.Run("distribute", func(t *testing.T) {
		share, err := keyshare.ParseShare(split.Shares[0])
		require.NoError(t, err)
		index := strconv.Itoa(int(share.Index))

		_, err = executeCommand(t, "shares", "distribute", "team", "--index", index, "--location", "vault")
		require.NoError(t, err)

		out, err := executeCommand(t, "shares", "verify", "--json", "team")
		require.NoError(t, err)
		var report sharestore.VerificationReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, 2, report.ValidShares)
		assert.True(t, report.IsRecoverable)

		_, err = executeCommand(t, "shares", "distribute", "team", "--index", "0")
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		out, err := executeCommand(t, "shares", "delete", "lab")
		require.NoError(t, err)
		assert.Contains(t, out, "cancelled")

		_, err = executeCommand(t, "shares", "delete", "lab", "--force")
		require.NoError(t, err)

		_, err = executeCommand(t, "shares", "verify", "lab")
		assert.ErrorIs(t, err, sharestore.ErrNotFound)

		out, err = executeCommand(t, "combine", "--json", "--from", "team")
		require.NoError(t, err)
		var combined CombineResult
		require.NoError(t, json.Unmarshal([]byte(out), &combined))
		assert.Equal(t, c1Key, combined.Key)
	})
}

func TestWipeKey(t *testing.T) {
	cfg := config.DefaultConfig()
	key, err := aes128.NewKey(mustDecode(t, c1Key))
	require.NoError(t, err)

	cfg.Security.WipeMemory = false
	wipeKey(cfg, &key)
	assert.Equal(t, c1Key, hex.EncodeToString(key[:]))

	cfg.Security.WipeMemory = true
	wipeKey(cfg, &key)
	assert.Equal(t, aes128.Key{}, key)
}

func TestSelftestCommand(t *testing.T) {
	setupConfig(t)

	out, err := executeCommand(t, "selftest")
	require.NoError(t, err)
	for _, v := range knownAnswers {
		assert.Contains(t, out, "✓ "+v.Name)
	}

	results, err := runSelftest([]knownAnswer{
		{"tampered", c1Key, c1Plaintext, strings.Repeat("00", 16)},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Equal(t, c1Ciphertext, results[0].Got)

	_, err = runSelftest([]knownAnswer{{"short key", "0001", c1Plaintext, c1Ciphertext}})
	assert.ErrorIs(t, err, aes128.ErrInvalidKeyLength)
}

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}
