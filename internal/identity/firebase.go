package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	defaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"
	defaultTimeout            = 10 * time.Second
)

// FirebaseConfig はFirebase Authenticationプロバイダーの設定。
type FirebaseConfig struct {
	APIKey    string
	ProjectID string
	Timeout   time.Duration
	// RetryBackoff はトークン再発行をリトライする際の初回遅延
	RetryBackoff time.Duration

	// テスト・エミュレータ用にオーバーライド可能なURL
	IdentityToolkitURL string
	SecureTokenURL     string
}

// TokenVerifier はIDトークンを検証し、ユーザー情報を取り出す。
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*User, error)
}

// FirebaseProvider はFirebase AuthenticationのREST APIによる認証を提供する。
type FirebaseProvider struct {
	config     FirebaseConfig
	verifier   TokenVerifier
	httpClient *http.Client
}

// NewFirebaseProvider はFirebaseProviderを生成する。
// 発行されたIDトークンはverifierで検証してからユーザー情報として扱う。
func NewFirebaseProvider(config FirebaseConfig, verifier TokenVerifier) *FirebaseProvider {
	if config.IdentityToolkitURL == "" {
		config.IdentityToolkitURL = defaultIdentityToolkitURL
	}
	if config.SecureTokenURL == "" {
		config.SecureTokenURL = defaultSecureTokenURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaultRetryBackoff
	}
	return &FirebaseProvider{
		config:     config,
		verifier:   verifier,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// ProviderError はIdPがエラーレスポンスを返したことを表す。
// CodeはFirebaseのエラーコード（例: INVALID_PASSWORD）。
type ProviderError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *ProviderError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("identity provider error %d %s: %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("identity provider error %d %s", e.StatusCode, e.Code)
}

// signInResponse はaccounts:signInWithPasswordのレスポンス。
type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
}

// refreshResponse はSecure Tokenのtokenエンドポイントのレスポンス。
type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// errorResponse はFirebase REST APIのエラーレスポンス。
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInWithPassword はメールアドレスとパスワードで認証し、検証済みの認証情報を返す。
func (p *FirebaseProvider) SignInWithPassword(ctx context.Context, email, password string) (*Credential, error) {
	payload, err := json.Marshal(map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sign-in request: %w", err)
	}

	endpoint := p.config.IdentityToolkitURL + "/accounts:signInWithPassword?" + url.Values{"key": {p.config.APIKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := p.do(req)
	if err != nil {
		return nil, err
	}

	var resp signInResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse sign-in response: %w", err)
	}
	if resp.IDToken == "" {
		return nil, fmt.Errorf("empty id token in sign-in response")
	}

	return p.credential(ctx, resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
}

// Refresh はリフレッシュトークンからIDトークンを再発行する。
// 再発行は冪等なため、通信エラーと429/5xxは指数バックオフで再試行する。
func (p *FirebaseProvider) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	return withRetry(ctx, p.config.RetryBackoff, func() (*Credential, error) {
		return p.refreshOnce(ctx, refreshToken)
	})
}

func (p *FirebaseProvider) refreshOnce(ctx context.Context, refreshToken string) (*Credential, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	endpoint := p.config.SecureTokenURL + "/token?" + url.Values{"key": {p.config.APIKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := p.do(req)
	if err != nil {
		return nil, err
	}

	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if resp.IDToken == "" {
		return nil, fmt.Errorf("empty id token in refresh response")
	}

	return p.credential(ctx, resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
}

// credential はIDトークンを検証してCredentialを組み立てる。
func (p *FirebaseProvider) credential(ctx context.Context, idToken, refreshToken, expiresIn string) (*Credential, error) {
	user, err := p.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	seconds, err := strconv.Atoi(expiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3600
	}

	return &Credential{
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(seconds) * time.Second),
		User:         *user,
	}, nil
}

// do はリクエストを送信し、2xx以外をProviderErrorに変換する。
func (p *FirebaseProvider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read identity response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseProviderError(resp.StatusCode, body)
	}
	return body, nil
}

// parseProviderError はエラーレスポンスからFirebaseのエラーコードを取り出す。
// メッセージは "TOO_MANY_ATTEMPTS_TRY_LATER : Access to this account..." の形式を取り得る。
func parseProviderError(status int, body []byte) *ProviderError {
	pe := &ProviderError{StatusCode: status}

	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Message == "" {
		return pe
	}

	code, detail, _ := strings.Cut(er.Error.Message, ":")
	pe.Code = strings.TrimSpace(code)
	pe.Detail = strings.TrimSpace(detail)
	return pe
}

// compile-time interface check
var _ Provider = (*FirebaseProvider)(nil)
