package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poll-api/internal/service"
)

// UserHandler mantiene dependencias para endpoints de cuentas.
type UserHandler struct {
	logger        *zap.Logger
	userServ      *service.UserService
	publicBaseURL string
}

// NewUserHandler crea una instancia de UserHandler con dependencias necesarias.
func NewUserHandler(logger *zap.Logger, userServ *service.UserService, publicBaseURL string) *UserHandler {
	return &UserHandler{
		logger:        logger,
		userServ:      userServ,
		publicBaseURL: publicBaseURL,
	}
}

// SignUp maneja POST /signup.
func (h *UserHandler) SignUp(c *gin.Context) {
	var req struct {
		FullName        string `json:"Fullname" binding:"required"`
		Email           string `json:"email" binding:"required"`
		PhoneNumber     string `json:"phoneNumber" binding:"required,phone"`
		Password        string `json:"password" binding:"required,min=8,max=20,strongpassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, "signup", err)
		return
	}

	user, err := h.userServ.SignUp(c.Request.Context(), service.SignUpInput{
		FullName:        req.FullName,
		Email:           req.Email,
		PhoneNumber:     req.PhoneNumber,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		BaseURL:         baseURL(c, h.publicBaseURL),
	})
	if err != nil {
		respondError(c, h.logger, "signup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Verify maneja POST /verify/:id con el codigo en userInput.
func (h *UserHandler) Verify(c *gin.Context) {
	var req struct {
		UserInput string `json:"userInput" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, "verify", err)
		return
	}
	h.verify(c, req.UserInput)
}

// VerifyLink maneja GET /verify/:id/:token, el enlace del correo.
func (h *UserHandler) VerifyLink(c *gin.Context) {
	h.verify(c, tokenParam(c, ""))
}

func (h *UserHandler) verify(c *gin.Context, submitted string) {
	user, err := h.userServ.Verify(c.Request.Context(), c.Param("id"), submitted, baseURL(c, h.publicBaseURL))
	if err != nil {
		respondError(c, h.logger, "verify", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully", "user": user})
}

// ResendOTP maneja GET /resend-otp/:id.
func (h *UserHandler) ResendOTP(c *gin.Context) {
	if err := h.userServ.ResendCode(c.Request.Context(), c.Param("id"), baseURL(c, h.publicBaseURL)); err != nil {
		respondError(c, h.logger, "resend otp", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "A new verification has been sent to your email"})
}

// Login maneja POST /login.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, "login", err)
		return
	}

	res, err := h.userServ.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, "login", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Login successful",
		"token":      res.Session.Token,
		"expires_at": res.Session.ExpiresAt,
		"user":       res.User,
	})
}

// SignOut maneja POST /signout. Requiere sesion.
func (h *UserHandler) SignOut(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization denied, invalid token"})
		return
	}
	if err := h.userServ.SignOut(c.Request.Context(), claims); err != nil {
		respondError(c, h.logger, "signout", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Signed out successfully"})
}

// ForgotPassword maneja POST /forgot.
func (h *UserHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, "forgot password", err)
		return
	}
	if err := h.userServ.ForgotPassword(c.Request.Context(), req.Email, baseURL(c, h.publicBaseURL)); err != nil {
		respondError(c, h.logger, "forgot password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "A password reset link has been sent to your email"})
}

// ResetPassword maneja POST /reset-user/:userId. El token puede venir en el body o en ?token=.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
		Token    string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, "reset password", err)
		return
	}
	token := tokenParam(c, req.Token)
	if err := h.userServ.ResetPassword(c.Request.Context(), c.Param("userId"), req.Password, token); err != nil {
		respondError(c, h.logger, "reset password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}
