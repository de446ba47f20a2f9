package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 令牌类型。
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const tokenIssuer = "careerhub"

// AuthService 签发并校验 RS256 JWT。
type AuthService struct {
	signKey    *rsa.PrivateKey
	verifyKey  *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
	now        func() time.Time
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Identity 是写入令牌的用户身份。
type Identity struct {
	UserID             uint
	Role               string
	MustChangePassword bool
}

// TokenClaims 是中间件读取的业务声明。刷新令牌只携带 UserID 与 jti。
type TokenClaims struct {
	UserID             uint   `json:"user_id"`
	Role               string `json:"role,omitempty"`
	MustChangePassword bool   `json:"must_change_password,omitempty"`
	TokenType          string `json:"token_type"`
	jwt.RegisteredClaims
}

// NewAuthService 解析 PEM 格式的 RSA 密钥对。
func NewAuthService(privateKeyPEM, publicKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	switch {
	case len(privateKeyPEM) == 0:
		return nil, errors.New("private key pem is required")
	case len(publicKeyPEM) == 0:
		return nil, errors.New("public key pem is required")
	case accessTTL <= 0 || refreshTTL <= 0:
		return nil, errors.New("token ttl must be positive")
	}

	signKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	verifyKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}

	return &AuthService{
		signKey:    signKey,
		verifyKey:  verifyKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
		now: time.Now,
	}, nil
}

func (s *AuthService) claims(id Identity, tokenType string, ttl time.Duration, issuedAt time.Time) TokenClaims {
	return TokenClaims{
		UserID:    id.UserID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(uint64(id.UserID), 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
}

func (s *AuthService) sign(claims TokenClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

// GenerateTokenPair 为同一身份签发访问令牌与刷新令牌。
func (s *AuthService) GenerateTokenPair(id Identity) (TokenPair, error) {
	now := s.now()

	access := s.claims(id, TokenTypeAccess, s.accessTTL, now)
	access.Role = id.Role
	access.MustChangePassword = id.MustChangePassword

	var pair TokenPair
	var err error
	if pair.AccessToken, err = s.sign(access); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = s.sign(s.claims(id, TokenTypeRefresh, s.refreshTTL, now)); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// ValidateToken 校验签名、签发方与有效期，调用方自行检查 TokenType。
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}

	claims := &TokenClaims{}
	if _, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.verifyKey, nil
	}); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == 0 {
		return nil, errors.New("token has no user")
	}
	return claims, nil
}

func (s *AuthService) AccessTokenTTL() time.Duration  { return s.accessTTL }
func (s *AuthService) RefreshTokenTTL() time.Duration { return s.refreshTTL }
