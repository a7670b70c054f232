package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"cohortflow/internal/access"
	"cohortflow/internal/config"
	"cohortflow/internal/domain"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Identity 是签发令牌所需的账号信息。
type Identity struct {
	UserID             string
	Name               string
	Email              string
	Role               domain.Role
	MustChangePassword bool
}

// TokenPair 封装访问令牌与刷新令牌。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims 携带会话所需的身份字段；Subject 为用户 ID。
type Claims struct {
	Name               string      `json:"name"`
	Email              string      `json:"email"`
	Role               domain.Role `json:"role"`
	MustChangePassword bool        `json:"must_change_password,omitempty"`
	TokenType          string      `json:"token_type"`
	jwt.RegisteredClaims
}

// Session converts verified claims into the caller identity handed to procedures.
func (c *Claims) Session() *access.Session {
	return &access.Session{
		UserID: c.Subject,
		Name:   c.Name,
		Email:  c.Email,
		Role:   c.Role,
	}
}

// Issuer 使用 RS256 签发并校验会话令牌。
type Issuer struct {
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

// NewIssuer 解析 PEM 密钥并构造签发器。
func NewIssuer(privateKeyPEM, publicKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if len(privateKeyPEM) == 0 {
		return nil, errors.New("private key pem is required")
	}
	if len(publicKeyPEM) == 0 {
		return nil, errors.New("public key pem is required")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}

	return &Issuer{
		privateKey:      privateKey,
		publicKey:       publicKey,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		now:             time.Now,
	}, nil
}

// LoadIssuer reads the key files named in cfg.
func LoadIssuer(cfg config.AuthConfig) (*Issuer, error) {
	privatePEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	publicPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewIssuer(privatePEM, publicPEM, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

// Issue 创建访问令牌与刷新令牌；刷新令牌带唯一 jti 以便注销。
func (s *Issuer) Issue(id Identity) (TokenPair, error) {
	if id.UserID == "" || !id.Role.Valid() {
		return TokenPair{}, errors.New("identity requires user id and a known role")
	}
	now := s.now()

	accessClaims := s.claims(id, TokenTypeAccess, now, s.accessTokenTTL)
	refreshClaims := s.claims(id, TokenTypeRefresh, now, s.refreshTokenTTL)
	refreshClaims.ID = uuid.NewString()

	accessToken, err := s.sign(accessClaims)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := s.sign(refreshClaims)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTokenTTL.Seconds()),
	}, nil
}

func (s *Issuer) claims(id Identity, tokenType string, now time.Time, ttl time.Duration) Claims {
	return Claims{
		Name:               id.Name,
		Email:              id.Email,
		Role:               id.Role,
		MustChangePassword: id.MustChangePassword,
		TokenType:          tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// Parse 校验签名、有效期与令牌类型。
func (s *Issuer) Parse(tokenString, wantType string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return s.publicKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("expected %s token, got %q", wantType, claims.TokenType)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, errors.New("token is missing subject or role")
	}
	return claims, nil
}

func (s *Issuer) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Issuer) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}

func (s *Issuer) RefreshTokenTTL() time.Duration {
	return s.refreshTokenTTL
}
