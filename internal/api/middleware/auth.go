package middleware

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/logging"
)

const (
	cookieName           = "printfarm_auth"
	tokenDuration        = 24 * time.Hour
	settingsKeyPassword  = "admin_password"
	settingsKeyJWTSecret = "jwt_secret"
)

type Claims struct {
	jwt.RegisteredClaims
	Authenticated bool `json:"authenticated"`
}

// AuthMiddleware guards the operator endpoints with a single admin password
// and a signed session token. When disabled every request is let through.
type AuthMiddleware struct {
	store   *db.Store
	secret  []byte
	enabled bool
	log     *logrus.Entry
}

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

type SetupRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

type StatusResponse struct {
	Enabled       bool `json:"enabled"`
	Authenticated bool `json:"authenticated"`
	SetupRequired bool `json:"setup_required"`
}

func NewAuthMiddleware(ctx context.Context, store *db.Store, enabled bool) (*AuthMiddleware, error) {
	a := &AuthMiddleware{
		store:   store,
		enabled: enabled,
		log:     logging.Component("auth"),
	}

	secret, err := a.getOrCreateSecret(ctx)
	if err != nil {
		return nil, err
	}
	a.secret = secret

	return a, nil
}

func (a *AuthMiddleware) getOrCreateSecret(ctx context.Context) ([]byte, error) {
	setting, err := a.store.Settings.GetSetting(ctx, settingsKeyJWTSecret)
	if err == nil {
		return hex.DecodeString(setting.Value)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if err := a.store.Settings.SetSetting(ctx, settingsKeyJWTSecret, hex.EncodeToString(secret), false); err != nil {
		return nil, err
	}
	return secret, nil
}

func (a *AuthMiddleware) isSetupRequired(ctx context.Context) bool {
	_, err := a.store.Settings.GetSetting(ctx, settingsKeyPassword)
	return errors.Is(err, sql.ErrNoRows)
}

func (a *AuthMiddleware) generateToken() (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
			Issuer:    "printfarm",
		},
		Authenticated: true,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func (a *AuthMiddleware) getTokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func (a *AuthMiddleware) setAuthCookie(c *gin.Context, token string) {
	c.SetCookie(cookieName, token, int(tokenDuration.Seconds()), "/", "", true, true)
}

func (a *AuthMiddleware) clearAuthCookie(c *gin.Context) {
	c.SetCookie(cookieName, "", -1, "/", "", true, true)
}

func (a *AuthMiddleware) issue(c *gin.Context, status int, message string) {
	token, err := a.generateToken()
	if err != nil {
		a.log.WithError(err).Error("sign token")
		c.JSON(http.StatusInternalServerError, LoginResponse{Success: false, Message: "Failed to generate token"})
		return
	}
	a.setAuthCookie(c, token)
	c.JSON(status, LoginResponse{Success: true, Token: token, Message: message})
}

func (a *AuthMiddleware) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Success: false, Message: "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	if a.isSetupRequired(ctx) {
		c.JSON(http.StatusForbidden, LoginResponse{Success: false, Message: "Setup required"})
		return
	}

	setting, err := a.store.Settings.GetSetting(ctx, settingsKeyPassword)
	if err != nil {
		a.log.WithError(err).Error("load admin password")
		c.JSON(http.StatusInternalServerError, LoginResponse{Success: false, Message: "Server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(setting.Value), []byte(req.Password)); err != nil {
		a.log.WithField("client_ip", c.ClientIP()).Warn("failed login")
		c.JSON(http.StatusUnauthorized, LoginResponse{Success: false, Message: "Invalid password"})
		return
	}

	a.issue(c, http.StatusOK, "")
}

func (a *AuthMiddleware) LogoutHandler(c *gin.Context) {
	a.clearAuthCookie(c)
	c.JSON(http.StatusOK, LoginResponse{Success: true, Message: "Logged out"})
}

func (a *AuthMiddleware) StatusHandler(c *gin.Context) {
	ctx := c.Request.Context()
	resp := StatusResponse{Enabled: a.enabled}

	if token := a.getTokenFromRequest(c); token != "" {
		if claims, err := a.validateToken(token); err == nil {
			resp.Authenticated = claims.Authenticated
		}
	}
	if !resp.Authenticated {
		resp.SetupRequired = a.isSetupRequired(ctx)
	}

	c.JSON(http.StatusOK, resp)
}

func (a *AuthMiddleware) ChangePasswordHandler(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	setting, err := a.store.Settings.GetSetting(ctx, settingsKeyPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database_error", "message": "Server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(setting.Value), []byte(req.CurrentPassword)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Current password is incorrect"})
		return
	}

	if err := a.savePassword(ctx, req.NewPassword); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database_error", "message": "Failed to update password"})
		return
	}

	a.issue(c, http.StatusOK, "Password changed")
}

func (a *AuthMiddleware) SetupHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if !a.isSetupRequired(ctx) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "setup_completed", "message": "Setup already completed"})
		return
	}

	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "Password must be at least 6 characters"})
		return
	}

	if err := a.savePassword(ctx, req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database_error", "message": "Failed to save password"})
		return
	}

	a.log.Info("admin password configured")
	a.issue(c, http.StatusOK, "Setup completed")
}

func (a *AuthMiddleware) savePassword(ctx context.Context, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return a.store.Settings.SetSetting(ctx, settingsKeyPassword, string(hashed), false)
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.enabled {
			c.Next()
			return
		}

		token := a.getTokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Authentication required"})
			return
		}

		claims, err := a.validateToken(token)
		if err != nil || !claims.Authenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Invalid or expired token"})
			return
		}

		c.Set("authenticated", true)
		c.Set("claims", claims)
		c.Next()
	}
}
