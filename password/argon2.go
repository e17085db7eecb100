package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// Argon2Config holds the Argon2id cost parameters. Memory is in KiB.
type Argon2Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultArgon2Config returns the parameters recommended for interactive logins.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Argon2 hashes passwords with Argon2id and encodes them as PHC strings.
type Argon2 struct {
	config Argon2Config
}

// NewArgon2 validates cfg and returns a hasher. A zero MaxPasswordBytes selects
// [DefaultMaxPasswordBytes].
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

func (a *Argon2) cost() argonCost {
	return argonCost{memory: a.config.Memory, passes: a.config.Time, lanes: a.config.Parallelism}
}

// Hash derives a key from plaintext and a fresh random salt. The plaintext bytes
// are used as given, without Unicode normalization.
func (a *Argon2) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	h := phcHash{cost: a.cost(), salt: make([]byte, a.config.SaltLength)}
	if _, err := io.ReadFull(rand.Reader, h.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	h.key = h.cost.derive(plaintext, h.salt, a.config.KeyLength)
	return h.String(), nil
}

// Verify recomputes the key with the cost and salt embedded in encoded and
// compares in constant time. Oversized input and malformed encodings fail.
func (a *Argon2) Verify(plaintext, encoded string) bool {
	if len(plaintext) > a.config.MaxPasswordBytes {
		return false
	}
	h, err := decodePHC(encoded)
	if err != nil {
		return false
	}
	got := h.cost.derive(plaintext, h.salt, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(got, h.key) == 1
}

// NeedsRehash reports whether encoded is cheaper than the configured cost, has
// a different key length, or cannot be decoded.
func (a *Argon2) NeedsRehash(encoded string) bool {
	h, err := decodePHC(encoded)
	if err != nil {
		return true
	}
	want := a.cost()
	return h.cost.memory < want.memory ||
		h.cost.passes < want.passes ||
		h.cost.lanes < want.lanes ||
		uint32(len(h.key)) != a.config.KeyLength
}

// argonCost is the m, t and p triple of an Argon2id hash.
type argonCost struct {
	memory uint32
	passes uint32
	lanes  uint8
}

func (c argonCost) derive(plaintext string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(plaintext), salt, c.passes, c.memory, c.lanes, keyLen)
}

// phcHash is the decoded form of $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>.
type phcHash struct {
	cost argonCost
	salt []byte
	key  []byte
}

var phcVersion = "v=" + strconv.Itoa(argon2.Version)

// String renders h with unpadded base64, as the PHC format prescribes.
func (h phcHash) String() string {
	var b strings.Builder
	b.WriteString("$" + algorithmID + "$" + phcVersion)
	fmt.Fprintf(&b, "$m=%d,t=%d,p=%d", h.cost.memory, h.cost.passes, h.cost.lanes)
	b.WriteString("$" + base64.RawStdEncoding.EncodeToString(h.salt))
	b.WriteString("$" + base64.RawStdEncoding.EncodeToString(h.key))
	return b.String()
}

var errMalformedPHC = errors.New("malformed argon2id hash")

func malformed(what string) error {
	return fmt.Errorf("%w: %s", errMalformedPHC, what)
}

func decodePHC(encoded string) (phcHash, error) {
	rest, ok := strings.CutPrefix(encoded, "$")
	if !ok {
		return phcHash{}, malformed("missing leading $")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 5 {
		return phcHash{}, malformed("expected 5 fields")
	}
	id, version, costField, saltField, keyField := fields[0], fields[1], fields[2], fields[3], fields[4]

	if id != algorithmID {
		return phcHash{}, malformed("algorithm " + id)
	}
	if version != phcVersion {
		return phcHash{}, malformed("version " + version)
	}

	var (
		h   phcHash
		err error
	)
	if h.cost, err = decodeCost(costField); err != nil {
		return phcHash{}, err
	}
	if h.salt, err = decodeB64(saltField); err != nil || len(h.salt) < int(minSaltLength) {
		return phcHash{}, malformed("salt")
	}
	if h.key, err = decodeB64(keyField); err != nil || len(h.key) == 0 {
		return phcHash{}, malformed("key")
	}
	return h, nil
}

// decodeB64 accepts padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// costParams lists the cost parameters in the order they are encoded.
var costParams = [...]struct {
	name  string
	bits  int
	floor uint64
	store func(*argonCost, uint64)
}{
	{"m", 32, uint64(minMemoryKB), func(c *argonCost, v uint64) { c.memory = uint32(v) }},
	{"t", 32, uint64(minTimeCost), func(c *argonCost, v uint64) { c.passes = uint32(v) }},
	{"p", 8, uint64(minParallelism), func(c *argonCost, v uint64) { c.lanes = uint8(v) }},
}

func decodeCost(field string) (argonCost, error) {
	var c argonCost
	pairs := strings.Split(field, ",")
	if len(pairs) != len(costParams) {
		return c, malformed("cost " + field)
	}
	for i, pair := range pairs {
		p := costParams[i]
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name != p.name {
			return c, malformed("cost " + field)
		}
		v, err := strconv.ParseUint(raw, 10, p.bits)
		if err != nil || v < p.floor {
			return c, malformed(p.name + "=" + raw)
		}
		p.store(&c, v)
	}
	return c, nil
}

func (cfg Argon2Config) check() error {
	switch {
	case cfg.Memory < minMemoryKB:
		return fmt.Errorf("argon2 memory must be at least %d KiB", minMemoryKB)
	case cfg.Time < minTimeCost:
		return fmt.Errorf("argon2 time must be at least %d", minTimeCost)
	case cfg.Parallelism < minParallelism:
		return fmt.Errorf("argon2 parallelism must be at least %d", minParallelism)
	case cfg.SaltLength < minSaltLength:
		return fmt.Errorf("argon2 salt length must be at least %d bytes", minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return fmt.Errorf("argon2 key length must be at least %d bytes", minKeyLength)
	case cfg.MaxPasswordBytes < 0:
		return errors.New("argon2 max password bytes must not be negative")
	}
	return nil
}
