package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordBytes  = 72 // bcrypt 只使用前 72 字节
	forbiddenPassword = "password"

	msgLoggedOut        = "You should be logged in."
	msgIncorrectEmail   = "Incorrect email."
	msgIncorrectPass    = "Incorrect password."
	msgEmailTaken       = "Email is already registered."
	msgInvalidFields    = "Incorrect update fields"
	msgPasswordTooShort = "Password should be at least 8 characters"
	msgPasswordWord     = "Password should not contain string 'password'"
	msgPasswordTooLong  = "Password should be at most 72 bytes"
)

// UserStore 是认证服务依赖的用户存储。
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByIDAndToken(ctx context.Context, id uint, token string) (*model.User, error)
	EmailTaken(ctx context.Context, email string, exceptID uint) (bool, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	AddToken(ctx context.Context, userID uint, token string) error
	RemoveToken(ctx context.Context, userID uint, token string) error
	RemoveAllTokens(ctx context.Context, userID uint) error
}

// SignupInput 注册参数。
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Service 负责凭据校验、会话令牌的签发、解析与吊销。
//
// 令牌没有过期时间：只有仍在用户令牌列表中的令牌才有效，注销即从列表删除。
type Service struct {
	users    UserStore
	secret   []byte
	cost     int
	validate *validator.Validate
	now      func() time.Time
}

// NewService 创建认证服务。cost 非法时使用 bcrypt.DefaultCost。
func NewService(users UserStore, jwtSecret string, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		users:    users,
		secret:   []byte(jwtSecret),
		cost:     cost,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Register 创建用户并签发第一个会话令牌。
func (s *Service) Register(ctx context.Context, in SignupInput) (*model.User, string, error) {
	email := normalizeEmail(in.Email)
	if err := s.checkEmail(email); err != nil {
		return nil, "", err
	}
	password, err := checkPassword(in.Password)
	if err != nil {
		return nil, "", err
	}

	taken, err := s.users.EmailTaken(ctx, email, 0)
	if err != nil {
		return nil, "", apperr.Internal("check email", err)
	}
	if taken {
		return nil, "", apperr.Validation(msgEmailTaken)
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, "", err
	}
	user := &model.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    email,
		Password: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, "", apperr.Validation(msgEmailTaken)
		}
		return nil, "", apperr.Internal("create user", err)
	}

	token, err := s.IssueToken(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Authenticate 校验邮箱与密码，成功后签发新令牌。失败时不会写入任何令牌。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		metrics.AuthFailuresTotal.WithLabelValues("credentials").Inc()
		return nil, "", apperr.Authentication(msgIncorrectEmail)
	}
	if err != nil {
		return nil, "", apperr.Internal("find user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		metrics.AuthFailuresTotal.WithLabelValues("credentials").Inc()
		return nil, "", apperr.Authentication(msgIncorrectPass)
	}

	token, err := s.IssueToken(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// IssueToken 签发绑定用户 ID 的令牌，并追加到用户的令牌列表。
func (s *Service) IssueToken(ctx context.Context, user *model.User) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Subject:  strconv.FormatUint(uint64(user.ID), 10),
		IssuedAt: jwt.NewNumericDate(s.now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", apperr.Internal("sign token", err)
	}
	if err := s.users.AddToken(ctx, user.ID, token); err != nil {
		return "", apperr.Internal("save token", err)
	}
	user.Tokens = append(user.Tokens, model.UserToken{UserID: user.ID, Token: token})
	metrics.SessionsIssuedTotal.Inc()
	return token, nil
}

// ResolveToken 校验签名并确认令牌仍在用户的有效列表中。
//
// 签名有效但已注销的令牌同样被拒绝。
func (s *Service) ResolveToken(ctx context.Context, token string) (*model.User, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		metrics.AuthFailuresTotal.WithLabelValues("token").Inc()
		return nil, apperr.Authentication(msgLoggedOut)
	}

	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		metrics.AuthFailuresTotal.WithLabelValues("token").Inc()
		return nil, apperr.Authentication(msgLoggedOut)
	}

	user, err := s.users.FindByIDAndToken(ctx, uint(uid), token)
	if errors.Is(err, store.ErrNotFound) {
		metrics.AuthFailuresTotal.WithLabelValues("revoked").Inc()
		return nil, apperr.Authentication(msgLoggedOut)
	}
	if err != nil {
		return nil, apperr.Internal("resolve token", err)
	}
	return user, nil
}

// Revoke 从用户的令牌列表中删除一个令牌，不存在时静默成功。
func (s *Service) Revoke(ctx context.Context, user *model.User, token string) error {
	if err := s.users.RemoveToken(ctx, user.ID, token); err != nil {
		return apperr.Internal("revoke token", err)
	}
	for i, t := range user.Tokens {
		if t.Token == token {
			user.Tokens = append(user.Tokens[:i], user.Tokens[i+1:]...)
			break
		}
	}
	return nil
}

// RevokeAll 清空用户的令牌列表。
func (s *Service) RevokeAll(ctx context.Context, user *model.User) error {
	if err := s.users.RemoveAllTokens(ctx, user.ID); err != nil {
		return apperr.Internal("revoke tokens", err)
	}
	user.Tokens = nil
	return nil
}

var profileFields = map[string]bool{"name": true, "email": true, "password": true}

// UpdateProfile 按白名单更新用户资料。
//
// patch 中出现白名单以外的字段时整体拒绝；只有提供了新密码才会重新哈希。
func (s *Service) UpdateProfile(ctx context.Context, user *model.User, patch map[string]json.RawMessage) (*model.User, error) {
	values := make(map[string]string, len(patch))
	for key, raw := range patch {
		if !profileFields[key] {
			return nil, apperr.Validation(msgInvalidFields)
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, apperr.Validation(key + " must be a string")
		}
		values[key] = v
	}

	fields := map[string]interface{}{}
	if name, ok := values["name"]; ok {
		fields["name"] = strings.TrimSpace(name)
	}
	if raw, ok := values["email"]; ok {
		email := normalizeEmail(raw)
		if err := s.checkEmail(email); err != nil {
			return nil, err
		}
		taken, err := s.users.EmailTaken(ctx, email, user.ID)
		if err != nil {
			return nil, apperr.Internal("check email", err)
		}
		if taken {
			return nil, apperr.Validation(msgEmailTaken)
		}
		fields["email"] = email
	}
	if raw, ok := values["password"]; ok {
		password, err := checkPassword(raw)
		if err != nil {
			return nil, err
		}
		hash, err := s.hash(password)
		if err != nil {
			return nil, err
		}
		fields["password"] = hash
	}

	if err := s.users.Update(ctx, user.ID, fields); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Validation(msgEmailTaken)
		}
		return nil, apperr.Internal("update user", err)
	}
	updated, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal("reload user", err)
	}
	return updated, nil
}

func (s *Service) checkEmail(email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return apperr.Validation(msgIncorrectEmail)
	}
	return nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", apperr.Internal("hash password", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkPassword 去除首尾空白后校验密码策略，返回待哈希的值。
func checkPassword(password string) (string, error) {
	password = strings.TrimSpace(password)
	if utf8.RuneCountInString(password) < minPasswordLength {
		return "", apperr.Validation(msgPasswordTooShort)
	}
	if len(password) > maxPasswordBytes {
		return "", apperr.Validation(msgPasswordTooLong)
	}
	if strings.Contains(strings.ToLower(password), forbiddenPassword) {
		return "", apperr.Validation(msgPasswordWord)
	}
	return password, nil
}
