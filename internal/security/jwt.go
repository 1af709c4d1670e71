package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SellerClaims are the JWT claims carried by seller panel session tokens.
type SellerClaims struct {
	OwnerID string `json:"owner_id"`
	jwt.RegisteredClaims
}

// IssueSellerToken signs an HS256 session token for a seller.
func IssueSellerToken(secret, ownerID string, expiry time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("security: empty jwt secret")
	}
	now := time.Now().UTC()
	claims := SellerClaims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseSellerToken validates a seller session token and returns its claims.
func ParseSellerToken(secret, token string) (*SellerClaims, error) {
	claims := &SellerClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("security: unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if errParse != nil {
		return nil, errParse
	}
	if !parsed.Valid || claims.OwnerID == "" {
		return nil, fmt.Errorf("security: invalid token")
	}
	return claims, nil
}
