// Package token issues short lived signed tokens that bind a form action to
// the record it acts on. They stand in for per-form nonces: a delete button
// for survey 3 carries a token that is only valid for deleting survey 3.
package token

import (
	"strconv"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Action string

const (
	Delete           Action = "delete"
	Duplicate        Action = "duplicate"
	ToggleStatus     Action = "toggle_status"
	SaveSurvey       Action = "save_survey"
	DeleteSubmission Action = "delete_submission"
	TestEmail        Action = "test_email"
	Submit           Action = "submit"
	Results          Action = "results"
)

const (
	claimAction = "act"
	claimID     = "sid"
)

var ErrInvalid = errors.New("invalid or expired token")

type Issuer struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		auth: jwtauth.New("HS256", []byte(secret), nil),
		ttl:  ttl,
	}
}

// Issue returns a token for action on id, valid for the issuer's TTL.
func (i *Issuer) Issue(action Action, id int64) (string, error) {
	return i.IssueFor(action, id, i.ttl)
}

func (i *Issuer) IssueFor(action Action, id int64, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{
		"jti":       uuid.NewString(),
		claimAction: string(action),
		claimID:     strconv.FormatInt(id, 10),
	}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, ttl)

	_, tokenString, err := i.auth.Encode(claims)
	if err != nil {
		return "", errors.Wrap(err, "token.encode")
	}
	return tokenString, nil
}

// Verify checks that tokenString was issued for action on id and has not
// expired.
func (i *Issuer) Verify(tokenString string, action Action, id int64) error {
	if tokenString == "" {
		return ErrInvalid
	}

	tok, err := jwtauth.VerifyToken(i.auth, tokenString)
	if err != nil {
		return ErrInvalid
	}

	claims := tok.PrivateClaims()
	if claims[claimAction] != string(action) || claims[claimID] != strconv.FormatInt(id, 10) {
		return ErrInvalid
	}
	return nil
}
