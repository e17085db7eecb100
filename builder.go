package authcore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
)

// Builder assembles an [Engine]. A Builder can be used for one Build only.
type Builder struct {
	config Config

	store       CredentialStore
	revocations RevocationSet
	hasher      password.Hasher
	table       *permission.Table
	auditSink   AuditSink
	logger      *slog.Logger
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithRevocationSet enables token revocation, logout and refresh rotation.
func (b *Builder) WithRevocationSet(set RevocationSet) *Builder {
	b.revocations = set
	return b
}

// WithHasher replaces the default bcrypt hasher built from Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithPermissionTable replaces [permission.DefaultTable].
func (b *Builder) WithPermissionTable(t *permission.Table) *Builder {
	b.table = t
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token timestamps and lockout windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if cfg.JWT.RotateRefreshTokens && b.revocations == nil {
		return nil, errors.New("RotateRefreshTokens requires a revocation set")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewCodec(jwt.Config{
		Algorithm:  cfg.JWT.Algorithm,
		Secret:     cloneBytes(cfg.JWT.Secret),
		PrivateKey: cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:  cloneBytes(cfg.JWT.PublicKey),
		Issuer:     cfg.JWT.Issuer,
		Leeway:     cfg.JWT.Leeway,
		Now:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt codec: %w", err)
	}

	// -------- PASSWORD HASHER --------
	hasher := b.hasher
	if hasher == nil {
		bc, err := password.NewBcrypt(cfg.Password.BcryptCost)
		if err != nil {
			return nil, err
		}
		hasher = bc
	}
	// Unknown identifiers are verified against this hash so lookups that miss
	// cost about as much as a wrong password.
	dummyHash, err := hasher.Hash("authcore-unknown-account")
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	// -------- PERMISSIONS --------
	table := b.table
	if table == nil {
		table = permission.DefaultTable()
	}

	validate, err := newRequestValidator()
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Metrics)

	engine := &Engine{
		config:      cfg,
		store:       b.store,
		revocations: b.revocations,
		codec:       codec,
		hasher:      hasher,
		dummyHash:   dummyHash,
		lockout: LockoutPolicy{
			Threshold: cfg.Lockout.Threshold,
			Duration:  cfg.Lockout.Duration,
		},
		guard:     &Guard{table: table, metrics: metrics},
		metrics:   metrics,
		logger:    logger.With("component", "authcore"),
		now:       now,
		validator: validate,
	}
	if u, ok := b.store.(AtomicUpdater); ok {
		engine.updater = u
	}
	if c, ok := b.store.(AccountCreator); ok {
		engine.creator = c
	}
	if l, ok := b.store.(AccountLister); ok {
		engine.lister = l
	}
	if s, ok := b.store.(AccountSearcher); ok {
		engine.searcher = s
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(ev internalaudit.Event) {
			engine.logger.Warn("audit event dropped", "event_type", ev.Type)
		},
	}, b.auditSink)

	b.built = true

	return engine, nil
}
