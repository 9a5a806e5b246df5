package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domainauth "github.com/NordCoder/storefront-auth/internal/domain/auth"
)

const (
	algHS256 = "HS256"
	typJWT   = "JWT"
)

var ErrEmptySecret = errors.New("signing secret is empty")

// encodedHeader is fixed: the codec issues exactly one algorithm.
var encodedHeader = base64URL([]byte(`{"alg":"HS256","typ":"JWT"}`))

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// wireClaims keeps ver and exp optional so absence can be told from zero.
type wireClaims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"`
	Email string `json:"email"`
	Ver   *int64 `json:"ver"`
	Iat   int64  `json:"iat"`
	Exp   *int64 `json:"exp"`
}

// Codec signs and verifies compact HS256 tokens.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret []byte, now func() time.Time) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: secret, now: now}, nil
}

// Sign stamps iat and exp onto c and returns header.payload.signature.
func (c *Codec) Sign(claims domainauth.AccessClaims, ttl time.Duration) (string, error) {
	claims.Iat = c.now().Unix()
	claims.Exp = claims.Iat + int64(ttl/time.Second)

	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	sigInput := encodedHeader + "." + base64URL(payloadJSON)
	sig := hmacSHA256(c.secret, []byte(sigInput))

	return sigInput + "." + base64URL(sig), nil
}

// Verify never returns the reason a token was rejected.
func (c *Codec) Verify(token string) (*domainauth.AccessClaims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, false
	}
	headerB64, payloadB64, sigB64 := parts[0], parts[1], parts[2]
	if headerB64 == "" || payloadB64 == "" || sigB64 == "" {
		return nil, false
	}

	// Compared in encoded form: the decoder ignores trailing pad bits and
	// newlines, so only the canonical encoding is accepted.
	expectedSig := base64URL(hmacSHA256(c.secret, []byte(headerB64+"."+payloadB64)))
	if !hmac.Equal([]byte(sigB64), []byte(expectedSig)) {
		return nil, false
	}

	var h header
	if !decodeSegment(headerB64, &h) || h.Alg != algHS256 {
		return nil, false
	}

	var wc wireClaims
	if !decodeSegment(payloadB64, &wc) {
		return nil, false
	}
	if wc.Exp == nil || *wc.Exp <= c.now().Unix() {
		return nil, false
	}

	claims := &domainauth.AccessClaims{
		Sub:   wc.Sub,
		Role:  wc.Role,
		Email: wc.Email,
		Iat:   wc.Iat,
		Exp:   *wc.Exp,
	}
	if wc.Ver != nil {
		claims.Ver = *wc.Ver
	}
	return claims, true
}

func decodeSegment(seg string, out any) bool {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func base64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func hmacSHA256(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}
