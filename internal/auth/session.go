// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// privateKey and publicKey are used for signing and verifying JWT tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is how long an issued token stays valid (0 => never expires).
	tokenTTL time.Duration
)

// ErrNotInitialized is returned when tokens are issued or verified before Init.
var ErrNotInitialized = errors.New("auth keys not initialized")

// Claims binds a caller to one seat in one room.
type Claims struct {
	PlayerID uuid.UUID
	RoomCode string
}

// Init generates a fresh ed25519 key pair at runtime. Tokens issued by a previous
// process stop verifying after a restart.
func Init(ttl time.Duration) error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	publicKey, privateKey, tokenTTL = pub, priv, ttl
	return nil
}

// InitFromPath reads a raw ed25519 key pair from disk so that several server
// instances accept each other's tokens.
func InitFromPath(privatePath, publicPath string, ttl time.Duration) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return fmt.Errorf("ed25519 key files have the wrong size")
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	tokenTTL = ttl
	return nil
}

// CreateJWT signs a token with "sub" = playerID and "room" = roomCode.
func CreateJWT(playerID uuid.UUID, roomCode string) (string, error) {
	if privateKey == nil {
		return "", ErrNotInitialized
	}
	claims := jwt.MapClaims{
		"sub":  playerID.String(),
		"room": roomCode,
		"iat":  time.Now().Unix(),
	}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token and returns the seat it was issued for.
func AuthenticateJWT(tokenString string) (Claims, error) {
	if publicKey == nil {
		return Claims{}, ErrNotInitialized
	}
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Claims{}, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return Claims{}, fmt.Errorf("missing sub in jwt")
	}
	playerID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid sub in jwt: %w", err)
	}
	room, ok := claims["room"].(string)
	if !ok || room == "" {
		return Claims{}, fmt.Errorf("missing room in jwt")
	}
	return Claims{PlayerID: playerID, RoomCode: room}, nil
}
