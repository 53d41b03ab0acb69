package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// mintToken issues a signed session token for the user.
func mintToken(secret []byte, userID int64, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.Claims{
		Subject:  strconv.FormatInt(userID, 10),
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.Signed(signer).Claims(claims).Serialize()
}

// parseToken validates a session token and extracts the user id. Any
// failure, including expiry, maps to ErrAuthentication.
func parseToken(secret []byte, raw string) (int64, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	var claims jwt.Claims
	if err := tok.Claims(secret, &claims); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrAuthentication)
	}
	return id, nil
}
