package model

import "fmt"

// AuthFailureCode はサインイン失敗の分類を表す。
type AuthFailureCode string

const (
	// AuthFailureInvalidCredentials はパスワード不一致などの認証情報エラー。
	AuthFailureInvalidCredentials AuthFailureCode = "invalid-credentials"
	// AuthFailureUserNotFound はメールアドレスに対応するアカウントが存在しないエラー。
	AuthFailureUserNotFound AuthFailureCode = "user-not-found"
	// AuthFailureTooManyRequests はIdP側の試行回数制限エラー。
	AuthFailureTooManyRequests AuthFailureCode = "too-many-requests"
	// AuthFailureUnknown は上記以外のすべての失敗。
	AuthFailureUnknown AuthFailureCode = "unknown"
)

// authFailureMessages はコードごとのユーザー向けメッセージ。
var authFailureMessages = map[AuthFailureCode]string{
	AuthFailureInvalidCredentials: "Invalid email or password.",
	AuthFailureUserNotFound:       "No account found with this email.",
	AuthFailureTooManyRequests:    "Too many failed attempts. Please try again later.",
	AuthFailureUnknown:            "Failed to sign in. Please try again.",
}

// AuthFailure はIdentity Clientが呼び出し元に返すサインイン失敗。
// IdP固有のエラーはこの分類に変換され、そのまま伝播することはない。
type AuthFailure struct {
	Code AuthFailureCode
	Err  error // IdPから返された元のエラー（ログ用）
}

// NewAuthFailure は指定コードのAuthFailureを生成する。
// 未知のコードはunknownとして扱う。
func NewAuthFailure(code AuthFailureCode, err error) *AuthFailure {
	if _, ok := authFailureMessages[code]; !ok {
		code = AuthFailureUnknown
	}
	return &AuthFailure{Code: code, Err: err}
}

// Message はユーザー向けのメッセージを返す。
func (f *AuthFailure) Message() string {
	if msg, ok := authFailureMessages[f.Code]; ok {
		return msg
	}
	return authFailureMessages[AuthFailureUnknown]
}

// Error はerrorインターフェースを実装する。
func (f *AuthFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("auth failure %s: %v", f.Code, f.Err)
	}
	return fmt.Sprintf("auth failure %s", f.Code)
}

// Unwrap は元のエラーを返す。
func (f *AuthFailure) Unwrap() error {
	return f.Err
}
