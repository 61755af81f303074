package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/dgrijalva/jwt-go"
	"github.com/go-chi/render"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const JWT_CONTEXT_KEY contextKey = "jwt"

var (
	JWT_LIFESPAN time.Duration = time.Hour

	JWTEmpty             = errors.New("Bearer token not provided")
	ERR_TOKEN_INVALID    = errors.New("Invalid token")
	ERR_TOKEN_EXPIRED    = errors.New("Token has expired")
	ERR_UNKNOWN_OPERATOR = errors.New("unknown operator")
	ERR_BAD_PASSWORD     = errors.New("Invalid password")
)

// Operator is someone allowed to drive the SBrick remotely.
type Operator struct {
	ID       int    `storm:"increment"` // pk
	Email    string `storm:"unique"`
	Name     string
	Password string
	Admin    bool
}

// SetPassword stores a bcrypt hash of pass.
func (o *Operator) SetPassword(pass []byte) error {
	hash, err := bcrypt.GenerateFromPassword(pass, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	o.Password = string(hash)
	return nil
}

// VerifyPassword returns the bcrypt error unchanged so callers can tell a
// mismatch from a corrupt hash.
func (o *Operator) VerifyPassword(pass []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(o.Password), pass)
}

// authenticate finds the operator for email and checks their password.
func authenticate(db *storm.DB, email, password string) (*Operator, error) {
	operator := new(Operator)
	if err := db.One("Email", email, operator); err != nil {
		if err == storm.ErrNotFound {
			return nil, ERR_UNKNOWN_OPERATOR
		}
		return nil, err
	}

	if err := operator.VerifyPassword([]byte(password)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return nil, ERR_BAD_PASSWORD
		}
		return nil, err
	}
	return operator, nil
}

type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (l *LoginPayload) Bind(r *http.Request) error {
	if l.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

type JWTPayload struct {
	SignedToken string `json:"token"`
}

func jwtSecret() []byte {
	return []byte(ENV.JWT_SECRET)
}

func newJWT(sub string) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.StandardClaims{
		Issuer:    ENV.JWT_ISSUER,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(JWT_LIFESPAN).Unix(),
		Subject:   sub,
	})
	return token.SignedString(jwtSecret())
}

// renderToken issues a fresh token for sub.
func renderToken(w http.ResponseWriter, r *http.Request, sub string) {
	signed, err := newJWT(sub)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
	render.JSON(w, r, JWTPayload{signed})
}

// Login checks the operator credentials and returns a token.
func Login(w http.ResponseWriter, r *http.Request) {
	data := &LoginPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	operator, err := authenticate(ENV.DB, data.Email, data.Password)
	switch err {
	case nil:
		renderToken(w, r, operator.Email)
	case ERR_UNKNOWN_OPERATOR:
		render.Render(w, r, ErrNotFound)
	case ERR_BAD_PASSWORD:
		render.Render(w, r, ErrPermissionDenied(err))
	default:
		render.Render(w, r, ErrRender(err))
	}
}

// JWTRefresh swaps a valid token for one with a new expiry.
func JWTRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := r.Context().Value(JWT_CONTEXT_KEY).(*jwt.Token)
	if !ok {
		render.Render(w, r, ErrUnauthorized(JWTEmpty))
		return
	}
	renderToken(w, r, token.Claims.(*jwt.StandardClaims).Subject)
}

// tokenFromRequest looks in the query, then the Authorization header, then
// the jwt cookie. Websockets cannot set headers so the query comes first.
func tokenFromRequest(r *http.Request) string {
	if ts := r.URL.Query().Get("jwt"); ts != "" {
		return ts
	}

	bearer := r.Header.Get("Authorization")
	if len(bearer) > 7 && strings.ToUpper(bearer[0:6]) == "BEARER" {
		return bearer[7:]
	}

	if cookie, err := r.Cookie("jwt"); err == nil {
		return cookie.Value
	}
	return ""
}

func parseToken(ts string) (*jwt.Token, error) {
	token, err := jwt.ParseWithClaims(ts, &jwt.StandardClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("Unexpected signing method")
		}
		return jwtSecret(), nil
	})

	var verr *jwt.ValidationError
	switch {
	case errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0:
		return nil, ERR_TOKEN_EXPIRED
	case err != nil, !token.Valid:
		return nil, ERR_TOKEN_INVALID
	}
	return token, nil
}

// ValidateJWT rejects requests without a valid token and stores the parsed
// token in the request context under JWT_CONTEXT_KEY.
func ValidateJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts := tokenFromRequest(r)
		if ts == "" {
			render.Render(w, r, ErrUnauthorized(JWTEmpty))
			return
		}

		token, err := parseToken(ts)
		if err != nil {
			render.Render(w, r, ErrUnauthorized(err))
			return
		}

		ctx := context.WithValue(r.Context(), JWT_CONTEXT_KEY, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
