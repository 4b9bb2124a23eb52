package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTrussrc(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ".trussrc")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadTrussrcParsesProfiles(t *testing.T) {
	path := writeTrussrc(t, `
# comment line
[default]
remote_url = https://default.example.com
api_key = key-default

[staging]
remote_url = https://staging.example.com
api_key = key-staging
`)

	rc, err := LoadTrussrc(path)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"default", "staging"}, rc.Profiles())

	def, ok := rc.Profile("default")
	require.True(t, ok)
	assert.Equal(t, "https://default.example.com", def.RemoteURL)
	assert.Equal(t, "key-default", def.APIKey)
	assert.Equal(t, "key-default", def.Credentials())

	staging, ok := rc.Profile("staging")
	require.True(t, ok)
	assert.Equal(t, "https://staging.example.com", staging.RemoteURL)
	assert.Equal(t, "key-staging", staging.APIKey)
}

func TestLoadTrussrcMissingProfile(t *testing.T) {
	path := writeTrussrc(t, "[default]\nremote_url = https://x\napi_key = k\n")
	rc, err := LoadTrussrc(path)
	require.NoError(t, err)

	_, ok := rc.Profile("nonexistent")
	assert.False(t, ok)
}

func TestLoadTrussrcIgnoresLinesBeforeFirstSection(t *testing.T) {
	path := writeTrussrc(t, "remote_url = orphan\n[default]\napi_key = k\n")
	rc, err := LoadTrussrc(path)
	require.NoError(t, err)

	def, ok := rc.Profile("default")
	require.True(t, ok)
	assert.Equal(t, "k", def.APIKey)
	assert.Empty(t, def.RemoteURL)
}

func TestLoadTrussrcMissingFile(t *testing.T) {
	_, err := LoadTrussrc(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestStaticProviderCredentials(t *testing.T) {
	var p Provider = StaticProvider("tok-123")
	assert.Equal(t, "tok-123", p.Credentials())
}

func TestTrussrcDefaultReturnsFirstProfileInFileOrder(t *testing.T) {
	path := writeTrussrc(t, `
[staging]
remote_url = https://staging.example.com
api_key = key-staging

[default]
remote_url = https://default.example.com
api_key = key-default
`)
	rc, err := LoadTrussrc(path)
	require.NoError(t, err)

	def, ok := rc.Default()
	require.True(t, ok)
	assert.Equal(t, "staging", def.Name)
}

func TestTrussrcDefaultEmptyFile(t *testing.T) {
	path := writeTrussrc(t, "# nothing but a comment\n")
	rc, err := LoadTrussrc(path)
	require.NoError(t, err)

	_, ok := rc.Default()
	assert.False(t, ok)
}

func TestFingerprintRoundTrip(t *testing.T) {
	fp, err := Fingerprint("sekret-key")
	require.NoError(t, err)
	assert.True(t, VerifyFingerprint(fp, "sekret-key"))
	assert.False(t, VerifyFingerprint(fp, "wrong-key"))
}

func TestVerifyFingerprintEmptyAlwaysPasses(t *testing.T) {
	assert.True(t, VerifyFingerprint("", "anything"))
}

func TestRemoteVerifyIntegrity(t *testing.T) {
	fp, err := Fingerprint("k")
	require.NoError(t, err)

	ok := Remote{APIKey: "k", KeyFingerprint: fp}
	assert.True(t, ok.VerifyIntegrity())

	stale := Remote{APIKey: "changed", KeyFingerprint: fp}
	assert.False(t, stale.VerifyIntegrity())

	noFingerprint := Remote{APIKey: "k"}
	assert.True(t, noFingerprint.VerifyIntegrity())
}
