package businessflow

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/dto"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/services"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/repository"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/utils"
)

// OperatorCredential is one operator account, loaded from deployment
// configuration rather than a user table. The portal has a handful of
// treasury operators and no self-service signup.
type OperatorCredential struct {
	Username     string
	PasswordHash string // bcrypt
}

// AuthFlow authenticates treasury operators for the admin endpoints
type AuthFlow interface {
	Login(ctx context.Context, req *dto.OperatorLoginRequest, metadata *ClientMetadata) (*dto.OperatorLoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.OperatorLoginResponse, error)
}

// AuthFlowImpl implements the operator authentication flow
type AuthFlowImpl struct {
	operators map[string]OperatorCredential
	tokens    services.TokenService
	auditRepo repository.AuditLogRepository
}

// NewAuthFlow creates a new auth flow instance
func NewAuthFlow(
	operators []OperatorCredential,
	tokens services.TokenService,
	auditRepo repository.AuditLogRepository,
) AuthFlow {
	byName := make(map[string]OperatorCredential, len(operators))
	for _, op := range operators {
		byName[op.Username] = op
	}
	return &AuthFlowImpl{
		operators: byName,
		tokens:    tokens,
		auditRepo: auditRepo,
	}
}

// Login verifies an operator's credentials and issues a token pair
func (f *AuthFlowImpl) Login(ctx context.Context, req *dto.OperatorLoginRequest, metadata *ClientMetadata) (*dto.OperatorLoginResponse, error) {
	if req == nil || req.Username == "" || req.Password == "" {
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", ErrCredentialRequired)
	}

	operator, ok := f.operators[req.Username]
	if !ok {
		f.logAttempt(ctx, req.Username, false, "unknown operator", metadata)
		// Same error as a wrong password; the response must not reveal which
		// usernames exist.
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", ErrIncorrectPassword)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(req.Password)); err != nil {
		f.logAttempt(ctx, req.Username, false, "incorrect password", metadata)
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", ErrIncorrectPassword)
	}

	accessToken, refreshToken, err := f.tokens.GenerateOperatorTokens(operator.Username)
	if err != nil {
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
	}

	f.logAttempt(ctx, operator.Username, true, "operator logged in", metadata)

	return &dto.OperatorLoginResponse{
		Operator:     operator.Username,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh exchanges a valid refresh token for a fresh token pair
func (f *AuthFlowImpl) Refresh(ctx context.Context, refreshToken string) (*dto.OperatorLoginResponse, error) {
	if refreshToken == "" {
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", ErrCredentialRequired)
	}

	claims, err := f.tokens.ValidateOperatorToken(refreshToken)
	if err != nil {
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
	}

	// A rotated-out operator cannot keep a session alive through refresh.
	if _, ok := f.operators[claims.Operator]; !ok {
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", ErrOperatorNotFound)
	}

	accessToken, newRefreshToken, err := f.tokens.RefreshOperatorToken(refreshToken)
	if err != nil {
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
	}

	return &dto.OperatorLoginResponse{
		Operator:     claims.Operator,
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
	}, nil
}

func (f *AuthFlowImpl) logAttempt(ctx context.Context, username string, success bool, detail string, metadata *ClientMetadata) {
	action := models.AuditActionOperatorLogin
	var errMsg *string
	if !success {
		action = models.AuditActionOperatorLoginFailed
		errMsg = &detail
	}

	description := fmt.Sprintf("Operator %s: %s", username, detail)
	ipAddress := ""
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	_ = f.auditRepo.Save(ctx, &models.AuditLog{
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errMsg,
	})
}
