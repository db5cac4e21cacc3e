// Package jwt 访问令牌的签发和校验, 以及令牌在 redis 里的键
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtgo "github.com/dgrijalva/jwt-go"
	"github.com/stardustagi/ChatRelay/libs/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token is expired")
	ErrEmptySecret  = errors.New("jwt secret is empty")
)

const Issuer = "chatrelay"

type Claims struct {
	Email string `json:"email,omitempty"`
	jwtgo.StandardClaims
}

// UserID 即 sub
func (m *Claims) UserID() string {
	return m.Subject
}

// TokenID 即 jti, 同时作为 redis 会话键
func (m *Claims) TokenID() string {
	return m.Id
}

type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (m *Signer) TTL() time.Duration {
	return m.ttl
}

// Issue 返回签名后的令牌和其中的 claims
func (m *Signer) Issue(userID, email string) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		Email: email,
		StandardClaims: jwtgo.StandardClaims{
			Id:        uuid.RequestID(),
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(m.ttl).Unix(),
		},
	}
	token, err := jwtgo.NewWithClaims(jwtgo.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

func (m *Signer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwtgo.ParseWithClaims(token, claims, func(t *jwtgo.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtgo.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		var verr *jwtgo.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwtgo.ValidationErrorExpired != 0 {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" || claims.Id == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SessionKey 令牌对应的会话, 由 RedisView 加前缀
func SessionKey(tokenID string) string {
	return "session:" + tokenID
}
