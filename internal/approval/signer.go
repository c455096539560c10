package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries one approval decision inside a signed link.
type Claims struct {
	JobID  string `json:"job_id"`
	Step   string `json:"step"`
	Action Action `json:"action"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 action tokens.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner creates a signer. ttl is usually the approval timeout.
func NewSigner(key string, ttl time.Duration) (*Signer, error) {
	if len(key) < 16 {
		return nil, errors.New("approval signing key must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{key: []byte(key), ttl: ttl, now: time.Now}, nil
}

// Issue returns a token that applies action to the step when verified.
func (s *Signer) Issue(jobID, step string, action Action) (string, error) {
	now := s.now()
	claims := &Claims{
		JobID:  jobID,
		Step:   step,
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   jobID + "/" + step,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign approval token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns its claims.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("approval link expired: %w", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("invalid approval link signature: %w", err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("malformed approval link: %w", err)
		}
		return nil, fmt.Errorf("failed to parse approval token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("approval token is not valid")
	}
	if _, err := ParseAction(string(claims.Action)); err != nil {
		return nil, err
	}
	return claims, nil
}

// Links returns a signed URL per action under baseURL, e.g. {baseURL}/approvals/{token}.
func (s *Signer) Links(baseURL, jobID, step string, actions []Action) (map[Action]string, error) {
	links := make(map[Action]string, len(actions))
	for _, a := range actions {
		token, err := s.Issue(jobID, step, a)
		if err != nil {
			return nil, err
		}
		links[a] = baseURL + "/approvals/" + token
	}
	return links, nil
}
