package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// Algorithm names a supported JWS signing algorithm.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
	EdDSA Algorithm = "EdDSA"
)

const minSecretBytes = 32

// ErrInvalidToken is returned by [Codec.Decode] for every rejected token.
var ErrInvalidToken = errors.New("invalid token")

// Config binds a Codec to an algorithm and its keys.
//
// HMAC algorithms use Secret. EdDSA uses PrivateKey for signing and PublicKey for
// verification; both accept raw key bytes or PEM. A codec without a private key can
// only verify.
type Config struct {
	Algorithm  Algorithm
	Secret     []byte
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Leeway     time.Duration
	Now        func() time.Time
}

// Codec encodes and decodes signed tokens. It is safe for concurrent use.
type Codec struct {
	method    gjwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	leeway    time.Duration
	now       func() time.Time
}

// NewCodec validates cfg and resolves its keys.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = HS256
	}

	c := &Codec{
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		now:    cfg.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}

	switch cfg.Algorithm {
	case HS256, HS384, HS512:
		if len(cfg.Secret) < minSecretBytes {
			return nil, fmt.Errorf("%s requires a secret of at least %d bytes", cfg.Algorithm, minSecretBytes)
		}
		c.method = hmacMethod(cfg.Algorithm)
		c.signKey = cfg.Secret
		c.verifyKey = cfg.Secret
	case EdDSA:
		c.method = gjwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			c.signKey = priv
			if len(cfg.PublicKey) == 0 {
				c.verifyKey = priv.Public()
			}
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			c.verifyKey = pub
		}
		if c.verifyKey == nil {
			return nil, errors.New("EdDSA requires a public or private key")
		}
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	return c, nil
}

// Algorithm reports the JWS "alg" value this codec signs with and accepts.
func (c *Codec) Algorithm() Algorithm {
	return Algorithm(c.method.Alg())
}

// Encode signs claims. The map is copied; "exp" must be present and "iss" is filled
// from the configured issuer when absent.
func (c *Codec) Encode(claims map[string]any) (string, error) {
	if c.signKey == nil {
		return "", errors.New("codec has no signing key")
	}
	if _, ok := claims["exp"]; !ok {
		return "", errors.New("claims must carry exp")
	}

	payload := make(gjwt.MapClaims, len(claims)+1)
	for k, v := range claims {
		payload[k] = v
	}
	if c.issuer != "" {
		if _, ok := payload["iss"]; !ok {
			payload["iss"] = c.issuer
		}
	}

	return gjwt.NewWithClaims(c.method, payload).SignedString(c.signKey)
}

// Decode verifies token and returns its payload. A token whose exp equals the current
// time is already expired.
func (c *Codec) Decode(token string) (map[string]any, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	options := []gjwt.ParserOption{
		gjwt.WithValidMethods([]string{c.method.Alg()}),
		gjwt.WithExpirationRequired(),
		gjwt.WithIssuedAt(),
		gjwt.WithTimeFunc(c.now),
	}
	if c.leeway > 0 {
		options = append(options, gjwt.WithLeeway(c.leeway))
	}
	if c.issuer != "" {
		options = append(options, gjwt.WithIssuer(c.issuer))
	}

	parsed, err := gjwt.NewParser(options...).ParseWithClaims(token, gjwt.MapClaims{}, func(t *gjwt.Token) (any, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.verifyKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(gjwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, gjwt.ErrTokenInvalidClaims)
	}

	return map[string]any(claims), nil
}

func hmacMethod(alg Algorithm) gjwt.SigningMethod {
	switch alg {
	case HS384:
		return gjwt.SigningMethodHS384
	case HS512:
		return gjwt.SigningMethodHS512
	default:
		return gjwt.SigningMethodHS256
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := gjwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := gjwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
