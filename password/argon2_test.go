package password

import (
	"strings"
	"testing"
)

// fastArgon2Config keeps memory at the minimum so the suite stays quick.
func fastArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestArgon2(t *testing.T, cfg Argon2Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return h
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher := newTestArgon2(t, fastArgon2Config())

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}
	if !hasher.Verify("P@ssw0rd-Ascii", hash) {
		t.Fatal("expected password verification to succeed")
	}
	if hasher.Verify("P@ssw0rd-ascii", hash) {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestArgon2SaltsDiffer(t *testing.T) {
	hasher := newTestArgon2(t, fastArgon2Config())

	a, err := hasher.Hash("same-input")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := hasher.Hash("same-input")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct encodings for repeated hashes")
	}
}

func TestArgon2NeedsRehash(t *testing.T) {
	weak := newTestArgon2(t, fastArgon2Config())
	hash, err := weak.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if weak.NeedsRehash(hash) {
		t.Fatal("expected NeedsRehash=false for current parameters")
	}

	stronger := fastArgon2Config()
	stronger.Time = 2
	if !newTestArgon2(t, stronger).NeedsRehash(hash) {
		t.Fatal("expected NeedsRehash=true for weaker hash parameters")
	}
	if !weak.NeedsRehash("$2a$04$not-argon") {
		t.Fatal("expected foreign encodings to need rehashing")
	}
}

func TestArgon2VerifyMalformedHash(t *testing.T) {
	hasher := newTestArgon2(t, fastArgon2Config())

	hash, err := hasher.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	malformed := []string{
		"",
		"not-a-phc-hash",
		strings.Replace(hash, "$v=19$", "$v=18$", 1),
		strings.Replace(hash, "argon2id", "argon2i", 1),
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	}
	for _, encoded := range malformed {
		if hasher.Verify("version-test", encoded) {
			t.Fatalf("expected malformed hash %q to fail verification", encoded)
		}
	}
}

func TestArgon2InputLimits(t *testing.T) {
	cfg := fastArgon2Config()
	cfg.MaxPasswordBytes = 64
	hasher := newTestArgon2(t, cfg)

	if _, err := hasher.Hash(""); err != ErrEmptyPassword {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if _, err := hasher.Hash(strings.Repeat("a", 65)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	exact := strings.Repeat("b", 64)
	hash, err := hasher.Hash(exact)
	if err != nil {
		t.Fatalf("expected max-length password to be accepted: %v", err)
	}
	if !hasher.Verify(exact, hash) {
		t.Fatal("Verify failed for max-length password")
	}
	if hasher.Verify(strings.Repeat("c", 65), hash) {
		t.Fatal("expected oversized password to fail verification")
	}
}

func TestArgon2ConfigValidation(t *testing.T) {
	bad := fastArgon2Config()
	bad.Memory = 1024
	if _, err := NewArgon2(bad); err == nil {
		t.Fatal("expected low memory to be rejected")
	}

	bad = fastArgon2Config()
	bad.SaltLength = 8
	if _, err := NewArgon2(bad); err == nil {
		t.Fatal("expected short salt to be rejected")
	}

	if _, err := NewArgon2(DefaultArgon2Config()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestArgon2EncodingIsUnpaddedAndAcceptsPadding(t *testing.T) {
	hasher := newTestArgon2(t, fastArgon2Config())

	hash, err := hasher.Hash("padding-check")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if strings.Count(hash, "=") != 4 {
		t.Fatalf("expected only the v, m, t and p separators to use '=': %s", hash)
	}

	fields := strings.Split(hash, "$")
	padded := strings.Join(append(fields[:4:4], fields[4]+"==", fields[5]+"="), "$")
	if !hasher.Verify("padding-check", padded) {
		t.Fatalf("expected padded base64 to verify: %s", padded)
	}
}

func TestDecodePHCRejectsReorderedCost(t *testing.T) {
	hasher := newTestArgon2(t, fastArgon2Config())
	hash, err := hasher.Hash("order-check")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	reordered := strings.Replace(hash, "m=8192,t=1,p=1", "t=1,m=8192,p=1", 1)
	if _, err := decodePHC(reordered); err == nil {
		t.Fatal("expected reordered cost parameters to be rejected")
	}
	if _, err := decodePHC(strings.Replace(hash, "p=1", "p=256", 1)); err == nil {
		t.Fatal("expected lanes beyond uint8 to be rejected")
	}

	h, err := decodePHC(hash)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.cost != (argonCost{memory: 8192, passes: 1, lanes: 1}) || len(h.salt) != 16 || len(h.key) != 32 {
		t.Fatalf("unexpected decode %+v", h)
	}
	if h.String() != hash {
		t.Fatalf("re-encoding changed the hash:\n%s\n%s", h.String(), hash)
	}
}

func TestArgon2NeedsRehashOnKeyLength(t *testing.T) {
	hasher := newTestArgon2(t, fastArgon2Config())
	hash, err := hasher.Hash("key-length")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	longer := fastArgon2Config()
	longer.KeyLength = 64
	if !newTestArgon2(t, longer).NeedsRehash(hash) {
		t.Fatal("expected a different key length to need rehashing")
	}
}
