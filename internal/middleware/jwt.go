package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/utils"
)

// Clés du contexte gin posées par AuthRequired.
const (
	KeyUserID = "user_id"
	KeyEmail  = "email"
	KeyRole   = "role"
)

// UserLoader recharge l'utilisateur du token; un compte inactif ou supprimé est refusé.
type UserLoader interface {
	Authenticate(ctx context.Context, userID string) (*models.User, error)
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.Status(err), gin.H{"error": apperr.Message(err)})
}

// BearerToken extrait le token du header Authorization.
func BearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", apperr.Unauthenticated("Token manquant")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", apperr.Unauthenticated("Format Authorization invalide")
	}
	return parts[1], nil
}

// AuthRequired vérifie le JWT puis l'état du compte à chaque requête.
// Le rôle posé dans le contexte est celui du compte, pas celui du token.
func AuthRequired(tokens *utils.TokenManager, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := BearerToken(c)
		if err != nil {
			abort(c, err)
			return
		}

		claims, err := tokens.ParseJWT(raw)
		if err != nil {
			zap.S().Debugf("❌ Erreur parsing JWT: %v", err)
			abort(c, apperr.Unauthenticated("Token invalide"))
			return
		}

		user, err := users.Authenticate(c.Request.Context(), claims.UserID)
		if err != nil {
			if apperr.Is(err, apperr.Internal) {
				zap.S().Errorf("❌ Chargement utilisateur %s: %v", claims.UserID, err)
			}
			abort(c, err)
			return
		}

		c.Set(KeyUserID, user.ID)
		c.Set(KeyEmail, user.Email)
		c.Set(KeyRole, string(user.Role))
		c.Next()
	}
}

// UserID renvoie l'utilisateur authentifié, "" hors des routes protégées.
func UserID(c *gin.Context) string {
	return c.GetString(KeyUserID)
}

func IsAdmin(c *gin.Context) bool {
	return c.GetString(KeyRole) == string(models.RoleAdmin)
}

// Actor construit l'auteur d'une action pour l'audit.
func Actor(c *gin.Context) utils.Actor {
	return utils.Actor{UserID: UserID(c), IP: c.ClientIP()}
}
