package workspace

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "moviedeck"

var (
	// ErrInvalidToken は署名・形式が不正なトークン。
	ErrInvalidToken = errors.New("invalid workspace token")
	// ErrExpiredToken は有効期限切れのトークン。
	ErrExpiredToken = errors.New("workspace token expired")
)

// Claims はclient_id Cookieに格納するトークンのクレーム。SubjectがワークスペースID。
type Claims struct {
	jwt.RegisteredClaims
}

// TokenSigner はワークスペースIDをHS256で署名したトークンに変換する。
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner はTokenSignerを生成する。ttlはトークンの有効期間。
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign はワークスペースIDを署名済みトークンにする。
func (s *TokenSigner) Sign(workspaceID string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   workspaceID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse はトークンを検証してワークスペースIDを返す。
func (s *TokenSigner) Parse(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
