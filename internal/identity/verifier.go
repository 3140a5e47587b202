package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultJWKSURL    = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	defaultJWKSMaxAge = time.Hour
	issuerPrefix      = "https://securetoken.google.com/"
)

// ErrUnknownKeyID はIDトークンのkidがJWKSに存在しないことを表す。
var ErrUnknownKeyID = errors.New("unknown key id")

// jwkSet はJWKSエンドポイントのレスポンス。
type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// idTokenClaims はFirebase IDトークンのクレーム。
type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// JWKSVerifierConfig はJWKSVerifierの設定。
type JWKSVerifierConfig struct {
	ProjectID string
	JWKSURL   string
	Timeout   time.Duration
	MaxAge    time.Duration
}

// JWKSVerifier はFirebaseの公開鍵（JWKS）でIDトークンを検証する。
// 公開鍵はMaxAgeの間キャッシュし、未知のkidを受け取った場合は再取得する。
type JWKSVerifier struct {
	config     JWKSVerifierConfig
	httpClient *http.Client
	now        func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewJWKSVerifier はJWKSVerifierを生成する。
func NewJWKSVerifier(config JWKSVerifierConfig) *JWKSVerifier {
	if config.JWKSURL == "" {
		config.JWKSURL = defaultJWKSURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxAge <= 0 {
		config.MaxAge = defaultJWKSMaxAge
	}
	return &JWKSVerifier{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		now:        time.Now,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// Verify はIDトークンの署名・発行者・対象者・有効期限を検証し、ユーザー情報を返す。
func (v *JWKSVerifier) Verify(ctx context.Context, idToken string) (*User, error) {
	claims := &idTokenClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuerPrefix+v.config.ProjectID),
		jwt.WithAudience(v.config.ProjectID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("id token has empty subject: %w", jwt.ErrTokenInvalidClaims)
	}

	return &User{
		UID:         claims.Subject,
		Email:       optional(claims.Email),
		DisplayName: optional(claims.Name),
		PhotoURL:    optional(claims.Picture),
	}, nil
}

// key はkidに対応する公開鍵を返す。
// キャッシュが古いか、kidが見つからない場合はJWKSを再取得する。
func (v *JWKSVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	fresh := v.now().Sub(v.fetchedAt) < v.config.MaxAge
	v.mu.RUnlock()
	if ok && fresh {
		return k, nil
	}

	if err := v.refresh(ctx); err != nil {
		if ok {
			// 取得に失敗した場合は期限切れのキャッシュで検証を続ける
			return k, nil
		}
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
}

// refresh はJWKSエンドポイントから公開鍵を取得してキャッシュを置き換える。
func (v *JWKSVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.JWKSURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create jwks request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jwks request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read jwks response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks request failed with status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("failed to parse jwks response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			return fmt.Errorf("invalid jwk %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = v.now()
	v.mu.Unlock()
	return nil
}

// parseRSAKey はJWKのn, eからRSA公開鍵を組み立てる。
func parseRSAKey(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := new(big.Int).SetBytes(eb)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// compile-time interface check
var _ TokenVerifier = (*JWKSVerifier)(nil)
