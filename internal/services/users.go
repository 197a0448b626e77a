package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/cache"
	"bazaar_back_end/internal/config"
	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/repository"
	"bazaar_back_end/internal/utils"
)

const defaultUserPage = 10

type RegisterInput struct {
	FullName    string `json:"fullName"`
	UserName    string `json:"userName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type LoginInput struct {
	Email    string `json:"email"`
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type Session struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	User         models.User `json:"user"`
}

type UserPage struct {
	Users       []models.User `json:"users"`
	CurrentPage int           `json:"currentPage"`
	TotalPages  int           `json:"totalPages"`
	TotalUsers  int           `json:"totalUsers"`
}

type UserService struct {
	store   repository.Store
	cache   cache.Store
	tokens  *utils.TokenManager
	refresh *cache.RefreshTokens
	otp     *OTPService
	audit   *utils.Auditor
	cfg     config.AuthConfig
	now     clock
}

func NewUserService(store repository.Store, c cache.Store, tokens *utils.TokenManager, refresh *cache.RefreshTokens,
	otp *OTPService, audit *utils.Auditor, cfg config.AuthConfig) *UserService {
	return &UserService{store: store, cache: c, tokens: tokens, refresh: refresh, otp: otp, audit: audit, cfg: cfg, now: time.Now}
}

var validate = validator.New()

func validEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

func validPhone(phone string) bool {
	return validate.Var(phone, "len=10,number") == nil
}

// Register crée un compte après vérification de l'email.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.UserName = strings.TrimSpace(in.UserName)
	in.Email = normalizeEmail(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	switch {
	case len([]rune(in.FullName)) < 3:
		return nil, apperr.Invalid("le nom complet doit contenir au moins 3 caractères")
	case len([]rune(in.UserName)) < 3:
		return nil, apperr.Invalid("le nom d'utilisateur doit contenir au moins 3 caractères")
	case !validEmail(in.Email):
		return nil, apperr.Invalid("email invalide")
	case !validPhone(in.PhoneNumber):
		return nil, apperr.Invalid("le numéro de téléphone doit contenir 10 chiffres")
	}
	if err := utils.CheckPasswordStrength(in.Password); err != nil {
		return nil, apperr.Wrap(apperr.Validation, err.Error(), err)
	}

	role := models.RoleUser
	if strings.EqualFold(strings.TrimSpace(in.Role), string(models.RoleAdmin)) {
		if !s.cfg.AllowAdminSignup {
			return nil, apperr.Denied("inscription admin désactivée")
		}
		role = models.RoleAdmin
	}

	if s.cfg.RequireEmailVerification {
		ok, err := s.otp.IsVerified(ctx, in.Email)
		if err != nil {
			return nil, apperr.Internalf(err, "lecture vérification email")
		}
		if !ok {
			return nil, apperr.Invalid("email non vérifié")
		}
	}

	field, err := s.store.Users.Taken(ctx, in.Email, in.PhoneNumber, in.UserName)
	if err != nil {
		return nil, apperr.Internalf(err, "contrôle unicité")
	}
	if field != "" {
		return nil, apperr.Newf(apperr.Conflict, "%s déjà utilisé", field)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internalf(err, "hash mot de passe")
	}

	u := models.User{
		ID:          models.NewID(),
		FullName:    in.FullName,
		UserName:    in.UserName,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Password:    hash,
		Role:        role,
		IsActive:    true,
		CreatedAt:   s.now(),
	}
	if err := s.store.Users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Duplicate("utilisateur déjà existant")
		}
		return nil, apperr.Internalf(err, "création utilisateur")
	}
	if s.cfg.RequireEmailVerification {
		s.otp.ConsumeVerified(ctx, in.Email)
	}

	s.audit.LogAction(Actor{UserID: u.ID}, utils.ACTION_USER_CREATE, utils.RESOURCE_USER, u.ID, nil,
		map[string]string{"userName": u.UserName, "role": string(u.Role)})
	zap.S().Infof("✅ Utilisateur créé: %s", u.UserName)
	return &u, nil
}

// Login authentifie par email ou nom d'utilisateur.
func (s *UserService) Login(ctx context.Context, in LoginInput, ip string) (*Session, error) {
	if in.Password == "" || (in.Email == "" && in.UserName == "") {
		return nil, apperr.Invalid("identifiant et mot de passe requis")
	}
	login := in.Email
	if login == "" {
		login = in.UserName
	}
	actor := Actor{IP: ip}

	var (
		u   *models.User
		err error
	)
	if in.Email != "" {
		u, err = s.store.Users.FindByEmail(ctx, normalizeEmail(in.Email))
	} else {
		u, err = s.store.Users.FindByUserName(ctx, strings.TrimSpace(in.UserName))
	}
	if errors.Is(err, repository.ErrNotFound) {
		s.audit.LogFailedAction(actor, utils.ACTION_LOGIN_FAILED, utils.RESOURCE_AUTH, login, "utilisateur inconnu")
		return nil, apperr.Unauthenticated("identifiants invalides")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "lecture utilisateur")
	}

	ok, err := utils.VerifyPassword(in.Password, u.Password)
	if err != nil || !ok {
		actor.UserID = u.ID
		s.audit.LogFailedAction(actor, utils.ACTION_LOGIN_FAILED, utils.RESOURCE_AUTH, u.ID, "mot de passe invalide")
		return nil, apperr.Unauthenticated("identifiants invalides")
	}
	if !u.IsActive {
		return nil, apperr.Denied("compte désactivé")
	}

	session, err := s.issue(ctx, *u)
	if err != nil {
		return nil, err
	}
	actor.UserID = u.ID
	s.audit.LogAction(actor, utils.ACTION_LOGIN_SUCCESS, utils.RESOURCE_AUTH, u.ID, nil, nil)
	return session, nil
}

func (s *UserService) issue(ctx context.Context, u models.User) (*Session, error) {
	token, err := s.tokens.GenerateJWT(u)
	if err != nil {
		return nil, apperr.Internalf(err, "génération JWT")
	}
	refresh := uuid.NewString()
	if err := s.refresh.Store(ctx, u.ID, refresh); err != nil {
		return nil, apperr.Internalf(err, "stockage refresh token")
	}
	if err := cache.SetUser(ctx, s.cache, u); err != nil {
		zap.S().Warnf("⚠️ Cache utilisateur non mis à jour: %v", err)
	}
	return &Session{Token: token, RefreshToken: refresh, User: u}, nil
}

// Refresh délivre un nouvel access token contre le refresh token enregistré.
func (s *UserService) Refresh(ctx context.Context, userID, refreshToken string) (*Session, error) {
	if userID == "" || refreshToken == "" {
		return nil, apperr.Invalid("userId et refreshToken requis")
	}
	if err := s.refresh.Validate(ctx, userID, refreshToken); err != nil {
		if errors.Is(err, cache.ErrInvalidRefreshToken) {
			return nil, apperr.Unauthenticated("refresh token invalide")
		}
		return nil, apperr.Internalf(err, "lecture refresh token")
	}
	u, err := s.Authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.GenerateJWT(*u)
	if err != nil {
		return nil, apperr.Internalf(err, "génération JWT")
	}
	return &Session{Token: token, User: *u}, nil
}

func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.refresh.Delete(ctx, userID); err != nil {
		return apperr.Internalf(err, "suppression refresh token")
	}
	return nil
}

// Authenticate charge l'utilisateur d'un token, avec cache; un compte inactif est refusé.
func (s *UserService) Authenticate(ctx context.Context, userID string) (*models.User, error) {
	u, err := cache.GetUser(ctx, s.cache, userID)
	if err != nil {
		u, err = s.store.Users.FindByID(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated("utilisateur introuvable")
		}
		if err != nil {
			return nil, apperr.Internalf(err, "lecture utilisateur")
		}
		if err := cache.SetUser(ctx, s.cache, *u); err != nil {
			zap.S().Warnf("⚠️ Cache utilisateur non mis à jour: %v", err)
		}
	}
	if !u.IsActive {
		return nil, apperr.Denied("compte désactivé")
	}
	return u, nil
}

func (s *UserService) ListUsers(ctx context.Context, page, limit, search string) (*UserPage, error) {
	f := models.UserFilter{
		Search: strings.TrimSpace(search),
		Page:   parsePage(page, 1, 0),
		Limit:  parsePage(limit, defaultUserPage, maxPageSize),
	}
	users, total, err := s.store.Users.List(ctx, f)
	if err != nil {
		return nil, apperr.Internalf(err, "liste utilisateurs")
	}
	if users == nil {
		users = []models.User{}
	}
	return &UserPage{Users: users, CurrentPage: f.Page, TotalPages: totalPages(total, f.Limit), TotalUsers: total}, nil
}

// SetActive active ou désactive un compte; un admin ne peut pas se désactiver lui-même.
func (s *UserService) SetActive(ctx context.Context, actor Actor, userID string, active bool) (*models.User, error) {
	if userID == "" {
		return nil, apperr.Invalid("userId requis")
	}
	if userID == actor.UserID && !active {
		return nil, apperr.Denied("impossible de désactiver votre propre compte")
	}
	u, err := s.store.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "utilisateur introuvable", "lecture utilisateur")
	}
	if err := s.store.Users.SetActive(ctx, userID, active); err != nil {
		return nil, storeErr(err, "utilisateur introuvable", "mise à jour statut")
	}

	_ = cache.InvalidateUser(ctx, s.cache, userID)
	if !active {
		_ = s.refresh.Delete(ctx, userID)
	}
	s.audit.LogAction(actor, utils.ACTION_USER_STATUS, utils.RESOURCE_USER, userID,
		map[string]bool{"isActive": u.IsActive}, map[string]bool{"isActive": active})
	u.IsActive = active
	return u, nil
}

// SetRole change le rôle d'un compte; un admin ne peut pas se rétrograder lui-même.
func (s *UserService) SetRole(ctx context.Context, actor Actor, userID, role string) (*models.User, error) {
	if userID == "" {
		return nil, apperr.Invalid("userId requis")
	}
	r := models.Role(strings.ToLower(strings.TrimSpace(role)))
	if r != models.RoleUser && r != models.RoleAdmin {
		return nil, apperr.Invalid("rôle invalide")
	}
	if userID == actor.UserID && r != models.RoleAdmin {
		return nil, apperr.Denied("impossible de retirer votre propre rôle admin")
	}
	u, err := s.store.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "utilisateur introuvable", "lecture utilisateur")
	}
	if err := s.store.Users.SetRole(ctx, userID, r); err != nil {
		return nil, storeErr(err, "utilisateur introuvable", "mise à jour rôle")
	}

	_ = cache.InvalidateUser(ctx, s.cache, userID)
	s.audit.LogAction(actor, utils.ACTION_USER_ROLE, utils.RESOURCE_USER, userID,
		map[string]models.Role{"role": u.Role}, map[string]models.Role{"role": r})
	u.Role = r
	return u, nil
}
