package auth

import "golang.org/x/crypto/bcrypt"

// Fingerprint hashes an API key with bcrypt so a trussrc file can carry a
// `key_fingerprint` alongside `api_key` without storing a second copy of the
// secret itself — useful for config-management tooling that wants to assert
// "this is still the key we expect" without ever reading the key back out.
func Fingerprint(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyFingerprint reports whether apiKey matches a fingerprint produced by
// Fingerprint. A malformed fingerprint (e.g. hand-edited) is treated as a
// mismatch rather than an error, since the caller only uses this for an
// optional integrity warning, never to gate authentication itself.
func VerifyFingerprint(fingerprint, apiKey string) bool {
	if fingerprint == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(fingerprint), []byte(apiKey)) == nil
}

// VerifyIntegrity reports whether r's APIKey matches its KeyFingerprint, when
// one is present. Profiles without a key_fingerprint line always pass.
func (r Remote) VerifyIntegrity() bool {
	return VerifyFingerprint(r.KeyFingerprint, r.APIKey)
}
