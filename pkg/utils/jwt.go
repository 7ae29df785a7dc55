package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sevaconnect-backend/pkg/models"
)

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

// JWTService 签发和校验带角色的令牌
type JWTService struct {
	secretKey []byte
	now       func() time.Time
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{secretKey: []byte(secretKey), now: time.Now}
}

func (j *JWTService) sign(user models.User, typ string, ttl time.Duration) (string, int64, error) {
	now := j.now()
	expiry := now.Add(ttl)
	claims := &models.TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Type:   typ,
		Exp:    expiry.Unix(),
		Iat:    now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate %s token: %w", typ, err)
	}
	return token, expiry.Unix(), nil
}

// GenerateTokenPair 生成访问令牌和刷新令牌对，返回访问令牌过期时间
func (j *JWTService) GenerateTokenPair(user models.User) (accessToken, refreshToken string, expiresAt int64, err error) {
	accessToken, expiresAt, err = j.sign(user, "access", accessTTL)
	if err != nil {
		return "", "", 0, err
	}
	refreshToken, _, err = j.sign(user, "refresh", refreshTTL)
	if err != nil {
		return "", "", 0, err
	}
	return accessToken, refreshToken, expiresAt, nil
}

// GenerateAccessToken 生成访问令牌
func (j *JWTService) GenerateAccessToken(user models.User) (string, int64, error) {
	return j.sign(user, "access", accessTTL)
}

// ValidateToken 验证令牌
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if j.now().Unix() > claims.Exp {
		return nil, fmt.Errorf("token expired")
	}
	return claims, nil
}

// ValidateAccessToken 验证访问令牌
func (j *JWTService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	return j.validateType(tokenString, "access")
}

// ValidateRefreshToken 验证刷新令牌
func (j *JWTService) ValidateRefreshToken(tokenString string) (*models.TokenClaims, error) {
	return j.validateType(tokenString, "refresh")
}

func (j *JWTService) validateType(tokenString, typ string) (*models.TokenClaims, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("invalid token type: expected %s, got %s", typ, claims.Type)
	}
	return claims, nil
}

// RefreshAccessToken 使用刷新令牌生成新的访问令牌
func (j *JWTService) RefreshAccessToken(refreshToken string) (string, int64, error) {
	claims, err := j.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", 0, fmt.Errorf("invalid refresh token: %w", err)
	}
	return j.GenerateAccessToken(claims.User())
}
