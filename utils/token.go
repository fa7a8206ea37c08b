package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

type JwtCustomClaim struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	TenantID string `json:"tenant_id,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	jwt.StandardClaims
}

func jwtSecret() []byte {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return []byte("Records-Secret")
	}
	return []byte(secret)
}

func tokenLifespan() (time.Duration, error) {
	v := os.Getenv("TOKEN_HOUR_LIFESPAN")
	if v == "" {
		return 24 * time.Hour, nil
	}
	hours, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(hours) * time.Hour, nil
}

func JwtGenerate(claim JwtCustomClaim) (string, error) {
	lifespan, err := tokenLifespan()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claim.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(lifespan).Unix(),
		IssuedAt:  now.Unix(),
		Subject:   claim.UserID,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &claim)

	token, err := t.SignedString(jwtSecret())
	if err != nil {
		return "", err
	}

	return token, nil
}

func JwtValidate(token string) (*JwtCustomClaim, error) {
	parsed, err := jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return jwtSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	claim, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claim, nil
}
