package service

import (
	"fmt"
	"testing"
	"time"

	"crew_assessment_backend/internal/config"
	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/repository"
	"crew_assessment_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) (*AuthService, *repository.UserRepository) {
	t.Helper()

	db := newServiceTestDB(t)
	userRepo := repository.NewUserRepository(db)
	jwtCfg := &config.JWTConfig{
		Secret:     "test-secret-test-secret-test-secret",
		ExpireTime: time.Hour,
	}
	return NewAuthService(userRepo, jwtCfg), userRepo
}

func seedAdmin(t *testing.T, userRepo *repository.UserRepository, password string) *model.User {
	t.Helper()

	hash, err := HashPassword(password)
	require.NoError(t, err)

	admin := &model.User{
		FirstName: "Rita",
		LastName:  "Okafor",
		Email:     fmt.Sprintf("rita_%s@example.com", t.Name()),
		Role:      model.Admin,
		Password:  hash,
		IsActive:  true,
	}
	require.NoError(t, userRepo.Create(admin))
	return admin
}

func TestLoginSuccess(t *testing.T) {
	svc, userRepo := newAuthService(t)
	admin := seedAdmin(t, userRepo, "correct horse battery")

	result, err := svc.Login(admin.Email, "correct horse battery")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, admin.Email, result.User.Email)

	claims, err := util.ParseJWT(result.Token, "test-secret-test-secret-test-secret")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, claims.UserID)
	assert.Equal(t, model.Admin, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, userRepo := newAuthService(t)
	admin := seedAdmin(t, userRepo, "correct horse battery")

	_, err := svc.Login(admin.Email, "wrong password")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.Login("nobody@example.com", "anything")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)
}

func TestLoginCandidateRejected(t *testing.T) {
	svc, userRepo := newAuthService(t)

	hash, err := HashPassword("some password")
	require.NoError(t, err)
	candidate := &model.User{
		FirstName: "Jon",
		LastName:  "Lim",
		Email:     fmt.Sprintf("jon_%s@example.com", t.Name()),
		Role:      model.Candidate,
		Password:  hash,
		IsActive:  true,
	}
	require.NoError(t, userRepo.Create(candidate))

	_, err = svc.Login(candidate.Email, "some password")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)
}
