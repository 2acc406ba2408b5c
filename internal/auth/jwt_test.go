package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("secret")
	token, err := svc.GenerateAccessToken("u1", "alice")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestValidateRejectsBadTokens(t *testing.T) {
	svc := NewJWTService("secret")
	other, _ := NewJWTService("other-secret").GenerateAccessToken("u1", "alice")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, _ := expired.SignedString([]byte("secret"))

	noUser := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{})
	noUserToken, _ := noUser.SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong secret", other, ErrInvalidToken},
		{"expired", expiredToken, ErrExpiredToken},
		{"missing user", noUserToken, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ValidateAccessToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}
