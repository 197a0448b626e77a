package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bazaar_back_end/internal/handlers"
	"bazaar_back_end/internal/middleware"
	"bazaar_back_end/internal/services"
)

// Handler expose l'inscription, la connexion et les sessions.
type Handler struct {
	users *services.UserService
	otp   *services.OTPService
}

func New(users *services.UserService, otp *services.OTPService) *Handler {
	return &Handler{users: users, otp: otp}
}

// SendMail envoie un code OTP à l'adresse donnée.
func (h *Handler) SendMail(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := handlers.BindJSON(c, &req); err != nil {
		handlers.Error(c, err)
		return
	}
	if err := h.otp.Send(c.Request.Context(), req.Email); err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Code envoyé par email"})
}

// MailVerify valide le code OTP et marque l'email comme vérifié.
func (h *Handler) MailVerify(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := handlers.BindJSON(c, &req); err != nil {
		handlers.Error(c, err)
		return
	}
	if err := h.otp.Verify(c.Request.Context(), req.Email, req.OTP); err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email vérifié"})
}

func (h *Handler) Register(c *gin.Context) {
	var in services.RegisterInput
	if err := handlers.BindJSON(c, &in); err != nil {
		handlers.Error(c, err)
		return
	}
	u, err := h.users.Register(c.Request.Context(), in)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Compte créé", "user": u})
}

// Login accepte l'email ou le nom d'utilisateur.
func (h *Handler) Login(c *gin.Context) {
	var in services.LoginInput
	if err := handlers.BindJSON(c, &in); err != nil {
		handlers.Error(c, err)
		return
	}
	s, err := h.users.Login(c.Request.Context(), in, c.ClientIP())
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Refresh échange un refresh token contre un nouveau token d'accès.
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		UserID       string `json:"userId"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := handlers.BindJSON(c, &req); err != nil {
		handlers.Error(c, err)
		return
	}
	s, err := h.users.Refresh(c.Request.Context(), req.UserID, req.RefreshToken)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.users.Logout(c.Request.Context(), middleware.UserID(c)); err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Déconnecté"})
}

// VerifyToken répond 200 si le token (déjà contrôlé par AuthRequired) est valide.
func (h *Handler) VerifyToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Verified",
		"userId":  middleware.UserID(c),
		"role":    c.GetString(middleware.KeyRole),
	})
}
