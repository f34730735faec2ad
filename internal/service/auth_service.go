package service

import (
	"crew_assessment_backend/internal/config"
	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/repository"
	"crew_assessment_backend/internal/util"
	"crew_assessment_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles admin and reviewer login. Candidates never log in;
// they act through per-assessment session tokens.
type AuthService struct {
	UserRepo *repository.UserRepository
	JWTCfg   *config.JWTConfig
}

func NewAuthService(userRepo *repository.UserRepository, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{UserRepo: userRepo, JWTCfg: jwtCfg}
}

type LoginResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Login verifies credentials and issues an admin JWT. Invalid email and
// invalid password return the same error kind.
func (s *AuthService) Login(email, password string) (*LoginResult, error) {
	user, err := s.UserRepo.FindByEmail(email)
	if err != nil {
		return nil, util.ErrInvalidCredentials
	}
	if user.Role != model.Admin || !user.IsActive {
		return nil, util.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(user, s.JWTCfg.Secret, s.JWTCfg.ExpireTime)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Admin login", zap.String("email", email))
	return &LoginResult{Token: token, User: user}, nil
}

// HashPassword is used by provisioning tooling when seeding admin accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}
