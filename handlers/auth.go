package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"passenger-flow-api/middleware"
	"passenger-flow-api/models"
	"passenger-flow-api/services"
	"passenger-flow-api/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
}

type AuthHandler struct {
	users       UserStore
	authService *services.AuthService
	revoker     TokenRevoker
}

func NewAuthHandler(users UserStore, authService *services.AuthService, revoker TokenRevoker) *AuthHandler {
	return &AuthHandler{users: users, authService: authService, revoker: revoker}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user := models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    req.Email,
		Password: hash,
		Role:     models.RoleUser,
	}
	if err := h.users.CreateUser(c.Request.Context(), &user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already registered"})
			return
		}
		respondError(c, err, "failed to create user")
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: user})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.FindUserByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Msg("user lookup failed")
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if !h.authService.CheckPassword(user.Password, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, User: *user})
}

// Logout revokes the caller's token. It runs behind middleware.Authenticate.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if ok && h.revoker != nil {
		if err := h.revoker.RevokeToken(c.Request.Context(), claims.ID, claims.TTL()); err != nil {
			respondError(c, err, "failed to revoke token")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// EnsureAdmin creates the admin account unless a user with that name exists.
func (h *AuthHandler) EnsureAdmin(ctx context.Context, username, password string) error {
	if password == "" {
		return nil
	}
	if _, err := h.users.FindUserByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	hash, err := h.authService.HashPassword(password)
	if err != nil {
		return err
	}
	err = h.users.CreateUser(ctx, &models.User{Username: username, Password: hash, Role: models.RoleAdmin})
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err == nil {
		log.Info().Str("username", username).Msg("admin account created")
	}
	return err
}
