package jwks

import (
	"context"
	"time"

	"github.com/sing3demons/jwks-server/internal/config"
	"github.com/sing3demons/jwks-server/pkg/logAction"
	"github.com/sing3demons/jwks-server/pkg/mlog"
)

type Bootstrapper struct {
	repo          IKeyRepository
	bits          int
	validTTL      time.Duration
	expiredOffset time.Duration
	publisher     KeyEventPublisher
	onCreated     []func(ctx context.Context) error
	now           func() time.Time
	generate      func(bits int) ([]byte, error)
}

type BootstrapOption func(*Bootstrapper)

func WithPublisher(p KeyEventPublisher) BootstrapOption {
	return func(b *Bootstrapper) {
		if p != nil {
			b.publisher = p
		}
	}
}

// WithKeyCreatedHook registers fn to run after every successful insert.
func WithKeyCreatedHook(fn func(ctx context.Context) error) BootstrapOption {
	return func(b *Bootstrapper) {
		b.onCreated = append(b.onCreated, fn)
	}
}

func WithBootstrapClock(now func() time.Time) BootstrapOption {
	return func(b *Bootstrapper) {
		if now != nil {
			b.now = now
		}
	}
}

func NewBootstrapper(repo IKeyRepository, cfg config.KeyConfig, opts ...BootstrapOption) *Bootstrapper {
	b := &Bootstrapper{
		repo:          repo,
		bits:          cfg.Bits,
		validTTL:      cfg.ValidKeyTTL,
		expiredOffset: cfg.ExpiredKeyOffset,
		publisher:     NewNoopKeyEventPublisher(),
		now:           time.Now,
		generate:      generateEncodedKey,
	}
	if b.bits <= 0 {
		b.bits = DefaultKeyBits
	}
	if b.validTTL <= 0 {
		b.validTTL = time.Hour
	}
	if b.expiredOffset <= 0 {
		b.expiredOffset = time.Minute
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func generateEncodedKey(bits int) ([]byte, error) {
	key, err := GenerateKeyPair(bits)
	if err != nil {
		return nil, err
	}
	return EncodePrivateKey(key), nil
}

type BootstrapResult struct {
	Before   ValidityCounts `json:"before"`
	Inserted []KeyRecord    `json:"inserted"`
}

// EnsureMinimum inserts an expired key (now - offset) and a valid key (now + ttl)
// when the store holds none of that class. Counts and exp are computed from separately
// sampled clocks, so two processes bootstrapping at once may both insert.
func (b *Bootstrapper) EnsureMinimum(ctx context.Context) (BootstrapResult, error) {
	log := mlog.L(ctx)

	counts, err := b.repo.CountByValidity(ctx)
	if err != nil {
		return BootstrapResult{}, err
	}
	result := BootstrapResult{Before: counts, Inserted: []KeyRecord{}}

	if counts.Expired == 0 {
		rec, err := b.CreateKey(ctx, b.now().Add(-b.expiredOffset).Unix())
		if err != nil {
			return result, err
		}
		result.Inserted = append(result.Inserted, rec)
	}
	if counts.Valid == 0 {
		rec, err := b.CreateKey(ctx, b.now().Add(b.validTTL).Unix())
		if err != nil {
			return result, err
		}
		result.Inserted = append(result.Inserted, rec)
	}

	log.Info(logAction.SYSTEM("bootstrap keys"), map[string]any{
		"valid":    counts.Valid,
		"expired":  counts.Expired,
		"inserted": len(result.Inserted),
	})
	return result, nil
}

// CreateKey generates, stores and announces one key expiring at exp.
// The returned record carries no key bytes.
func (b *Bootstrapper) CreateKey(ctx context.Context, exp int64) (KeyRecord, error) {
	log := mlog.L(ctx)

	encoded, err := b.generate(b.bits)
	if err != nil {
		return KeyRecord{}, err
	}
	kid, err := b.repo.Insert(ctx, encoded, exp)
	if err != nil {
		return KeyRecord{}, err
	}
	rec := KeyRecord{Kid: kid, Exp: exp}

	for _, fn := range b.onCreated {
		if err := fn(ctx); err != nil {
			log.Warn(logAction.SYSTEM("key created hook"), map[string]any{"kid": kid, "error": err.Error()})
		}
	}

	event := KeyEvent{
		Event:      EventKeyCreated,
		Kid:        rec.KidString(),
		Exp:        exp,
		Valid:      rec.IsValid(b.now()),
		OccurredAt: b.now().Unix(),
	}
	if err := b.publisher.PublishKeyEvent(ctx, event); err != nil {
		log.Warn(logAction.PUBLISH(EventKeyCreated, "publish key event"), map[string]any{"kid": kid, "error": err.Error()})
	}
	return rec, nil
}
