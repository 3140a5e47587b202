// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はIdPによって認証されたプリンシパルを表す。
// IsAdminはSession Contextが観測時に許可リストから再計算する値であり、
// IdPから受け取った値を保存・信頼することはない。
type Identity struct {
	UID         string
	Email       *string
	DisplayName *string
	PhotoURL    *string
	IsAdmin     bool
}

// EmailOrEmpty はメールアドレスを返す。未設定の場合は空文字列を返す。
func (i *Identity) EmailOrEmpty() string {
	if i == nil || i.Email == nil {
		return ""
	}
	return *i.Email
}

// BrowserSession はブラウザごとのログインセッションを表す。
// IdPのリフレッシュトークンを保持し、プロセス再起動後もサインイン状態を復元する。
// RefreshTokenが空の場合はサインアウト状態。
type BrowserSession struct {
	ID           string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
