// Package authz は管理者判定ポリシーを提供する。
package authz

// Policy は単一の許可リスト登録メールアドレスに基づく管理者判定。
// 許可リストは起動時の設定値であり、実行時に変更されない。
type Policy struct {
	adminEmail string
}

// NewPolicy はPolicyを生成する。
// adminEmailが空の場合は誰も管理者にならない。
func NewPolicy(adminEmail string) *Policy {
	return &Policy{adminEmail: adminEmail}
}

// IsAdmin はemailが許可リストのアドレスとバイト単位で完全一致する場合にtrueを返す。
// 大文字小文字の同一視や前後空白の除去は行わない。
func (p *Policy) IsAdmin(email *string) bool {
	if p == nil || email == nil || p.adminEmail == "" {
		return false
	}
	return *email == p.adminEmail
}
