package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/authz"
	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
)

// Claims is the payload of tokens issued at login.
type Claims struct {
	UserID      int64    `json:"uid"`
	Username    string   `json:"usr"`
	Authorities []string `json:"auth"`
	jwt.RegisteredClaims
}

type AuthHandler struct {
	userRepository repository.UserRepository
	jwtSecret      []byte
	tokenTTL       time.Duration
	logger         zerolog.Logger
}

type signupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func NewAuthHandler(users repository.UserRepository, jwtSecret string, tokenTTL time.Duration, logger zerolog.Logger) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthHandler{
		userRepository: users,
		jwtSecret:      []byte(jwtSecret),
		tokenTTL:       tokenTTL,
		logger:         logger.With().Str("handler", "auth").Logger(),
	}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Invalid signup request: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.userRepository.CreateUser(r.Context(), req.Username, req.Password, nil)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			http.Error(w, "Username already taken", http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Str("username", req.Username).Msg("failed to create user")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Invalid login request: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.userRepository.AuthenticateUser(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCredentials) || errors.Is(err, repository.ErrUserInactive) {
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}
		h.logger.Error().Err(err).Msg("authentication error")
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	tokenString, err := h.issueToken(user)
	if err != nil {
		http.Error(w, "Failed to generate token: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

func (h *AuthHandler) issueToken(user models.User) (string, error) {
	authorities := make([]string, 0, len(user.Authorities))
	for _, a := range user.Authorities {
		authorities = append(authorities, string(a))
	}
	now := time.Now()
	claims := Claims{
		UserID:      user.ID,
		Username:    user.Username,
		Authorities: authorities,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
}

// JWTMiddleware validates the bearer token and attaches the caller's identity to the request.
func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		var claims Claims
		token, err := jwt.ParseWithClaims(parts[1], &claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return h.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if claims.UserID == 0 {
			http.Error(w, "Missing token claim", http.StatusUnauthorized)
			return
		}

		authorities := make([]models.Authority, 0, len(claims.Authorities))
		for _, raw := range claims.Authorities {
			a := models.Authority(raw)
			if !models.IsValidAuthority(a) {
				http.Error(w, "Invalid authority claim", http.StatusUnauthorized)
				return
			}
			authorities = append(authorities, a)
		}

		ctx := authz.WithIdentity(r.Context(), authz.Identity{
			UserID:      claims.UserID,
			Username:    claims.Username,
			Authorities: authorities,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
