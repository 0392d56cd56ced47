package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// DigestSanitizer は期限通知メールのHTMLを、ダイジェストで使うタグだけに制限する。
// タスク名や説明に含まれるユーザー入力由来のマークアップはここで除去される。
type DigestSanitizer struct {
	policy *bluemonday.Policy
}

// NewDigestSanitizer はh1, ul, li, strong, br のみを許可するサニタイザーを生成する。
// 属性は一切許可しない。
func NewDigestSanitizer() *DigestSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("h1", "ul", "li", "strong", "br")

	return &DigestSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして返す。同一入力には常に同一出力を返す。
func (s *DigestSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
