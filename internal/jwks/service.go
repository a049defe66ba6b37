package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sing3demons/jwks-server/internal/config"
	"github.com/sing3demons/jwks-server/internal/database"
	"github.com/sing3demons/jwks-server/pkg/logAction"
	"github.com/sing3demons/jwks-server/pkg/mlog"
)

const JWKSCacheKey = "jwks:discovery"

type JWKSService struct {
	repo     IKeyRepository
	signer   *TokenSigner
	cache    database.ICacheClient
	keys     *gocache.Cache
	issuer   string
	tokenTTL time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

type ServiceOption func(*JWKSService)

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *JWKSService) {
		if now != nil {
			s.now = now
			s.signer = NewTokenSigner(now)
		}
	}
}

// NewJWKSService builds the service. A nil cache disables discovery caching.
func NewJWKSService(cfg *config.AppConfig, repo IKeyRepository, cache database.ICacheClient, opts ...ServiceOption) *JWKSService {
	s := &JWKSService{
		repo:     repo,
		signer:   NewTokenSigner(time.Now),
		cache:    cache,
		keys:     gocache.New(gocache.NoExpiration, 10*time.Minute),
		issuer:   cfg.OidcConfig.Issuer,
		tokenTTL: cfg.KeyConfig.TokenTTL,
		maxAge:   cfg.KeyConfig.JWKSMaxAge,
		now:      time.Now,
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueToken signs a token for subject with the key fetch_one selects. A token
// signed with an expired key takes that key's exp as its own.
func (s *JWKSService) IssueToken(ctx context.Context, wantExpired bool, subject string) (IssuedToken, error) {
	rec, err := s.repo.FetchOne(ctx, wantExpired)
	if err != nil {
		return IssuedToken{}, err
	}
	if rec == nil {
		return IssuedToken{}, ErrNoMatchingKey
	}

	priv, err := s.privateKey(ctx, *rec)
	if err != nil {
		return IssuedToken{}, err
	}

	extra := map[string]any{"jti": uuid.NewString()}
	if s.issuer != "" {
		extra["iss"] = s.issuer
	}
	if wantExpired {
		extra["exp"] = rec.Exp
	}

	token, err := s.signer.Sign(priv, rec.Kid, subject, s.tokenTTL, extra)
	if err != nil {
		return IssuedToken{}, err
	}

	mlog.L(ctx).Info(logAction.BUSINESS("issue token"), map[string]any{
		"kid":     rec.Kid,
		"key_exp": rec.Exp,
		"expired": wantExpired,
		"sub":     subject,
	})
	return IssuedToken{
		Token:   token,
		Kid:     rec.KidString(),
		KeyExp:  rec.Exp,
		Expired: wantExpired,
	}, nil
}

// GetJWKS returns the public keys of all valid records, ordered by kid.
func (s *JWKSService) GetJWKS(ctx context.Context) (JWKS, error) {
	log := mlog.L(ctx)

	if s.cache != nil {
		if val, err := s.cache.Get(ctx, JWKSCacheKey); err == nil && val != "" {
			var doc JWKS
			if err := json.Unmarshal([]byte(val), &doc); err == nil {
				return doc, nil
			}
			_ = s.cache.Del(ctx, JWKSCacheKey)
		} else if err != nil && !errors.Is(err, database.ErrNotFound) {
			log.Warn(logAction.EXCEPTION("jwks cache get"), map[string]any{"error": err.Error()})
		}
	}

	records, err := s.repo.FetchAllValid(ctx)
	if err != nil {
		return JWKS{}, err
	}

	doc := JWKS{Keys: make([]JWK, 0, len(records))}
	var soonest int64
	for _, rec := range records {
		priv, err := s.privateKey(ctx, rec)
		if err != nil {
			return JWKS{}, err
		}
		doc.Keys = append(doc.Keys, ToPublicJWK(rec.Kid, priv))
		if soonest == 0 || rec.Exp < soonest {
			soonest = rec.Exp
		}
	}

	if ttl := s.cacheTTL(soonest); s.cache != nil && ttl > 0 {
		if err := s.cache.Set(ctx, JWKSCacheKey, doc, ttl); err != nil {
			log.Warn(logAction.EXCEPTION("jwks cache set"), map[string]any{"error": err.Error()})
		}
	}
	return doc, nil
}

// InvalidateJWKS drops the cached discovery document.
func (s *JWKSService) InvalidateJWKS(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, JWKSCacheKey)
}

// cacheTTL is min(maxAge, time until the soonest included key expires), truncated
// down to whole seconds so the entry never outlives that key.
func (s *JWKSService) cacheTTL(soonestExp int64) time.Duration {
	ttl := s.maxAge
	if soonestExp > 0 {
		if untilExp := time.Unix(soonestExp, 0).Sub(s.now()); untilExp < ttl {
			ttl = untilExp
		}
	}
	if ttl < time.Second {
		return 0
	}
	return ttl.Truncate(time.Second)
}

func (s *JWKSService) privateKey(ctx context.Context, rec KeyRecord) (*rsa.PrivateKey, error) {
	cacheKey := rec.KidString()
	if v, ok := s.keys.Get(cacheKey); ok {
		if key, ok := v.(*rsa.PrivateKey); ok {
			return key, nil
		}
	}

	key, err := DecodePrivateKey(rec.Key)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			decodeErr.Kid = rec.Kid
		}
		mlog.L(ctx).Error(logAction.EXCEPTION("decode private key"), map[string]any{
			"kid":   rec.Kid,
			"error": err.Error(),
		})
		return nil, err
	}
	s.keys.Set(cacheKey, key, gocache.NoExpiration)
	return key, nil
}
