package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/harlequingg/taskd/internal/data"
)

const tokenIssuer = "taskd"

type tokenClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

func (app *application) issueToken(u *data.User, now time.Time) (string, time.Time, error) {
	expiry := now.Add(app.config.jwt.ttl)
	claims := tokenClaims{
		UserID: u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(app.config.jwt.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// parseToken validates signature, expiry and issuer and returns the user id.
func (app *application) parseToken(tokenStr string) (int64, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(app.config.jwt.secret), nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid || !claims.VerifyIssuer(tokenIssuer, true) || claims.UserID < 1 {
		return 0, errors.New("invalid token claims")
	}
	return claims.UserID, nil
}
