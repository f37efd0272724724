package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claim set of a dmchat session token.
type Payload struct {
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the user id the session belongs to.
	ID string `json:"id"`
}
