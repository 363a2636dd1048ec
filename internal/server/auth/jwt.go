// Package auth signs and checks short-lived action tokens, such as the
// email verification link. Sessions are opaque random tokens and do not
// go through here.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const PurposeVerifyEmail = "verify-email"

// Claims carries the registered claims plus the subject user and what the
// token may be used for.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string `json:"uid"`
	Purpose string `json:"purpose"`
}

func GenerateActionToken(userID, purpose string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID:  userID,
		Purpose: purpose,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// ParseActionToken returns the user id of a valid token issued for purpose.
// Expired, tampered or mis-purposed tokens are AccessUnauthorized.
func ParseActionToken(tokenString, purpose string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrAccessUnauthorized.WithMessage("The token has expired")
		}
		return "", common.ErrAccessUnauthorized.WithMessage("The token is invalid").Wrap(err)
	}
	if !token.Valid || claims.Purpose != purpose || claims.UserID == "" {
		return "", common.ErrAccessUnauthorized.WithMessage("The token is invalid")
	}

	return claims.UserID, nil
}
