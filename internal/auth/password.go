package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verifier は入力されたパスワードを設定済みの秘密情報と照合します。
// 秘密情報は bcrypt ハッシュ（$2a$ / $2b$ / $2y$ で始まる）または
// 平文のどちらでもよく、接頭辞で判別します。
type Verifier struct {
	secret string
}

// NewVerifier は Verifier を作成します。
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify はパスワードを照合します。秘密情報が未設定なら常に false です。
// 比較はどちらの形式でも一定時間で行い、部分一致をタイミングで漏らしません。
func (v *Verifier) Verify(supplied string) bool {
	if v.secret == "" {
		return false
	}

	if isBcryptHash(v.secret) {
		return bcrypt.CompareHashAndPassword([]byte(v.secret), []byte(supplied)) == nil
	}

	return subtle.ConstantTimeCompare([]byte(v.secret), []byte(supplied)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") ||
		strings.HasPrefix(s, "$2y$")
}
