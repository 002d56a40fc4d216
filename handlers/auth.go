package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/ppemonitor/models"
	"github.com/camden-git/ppemonitor/repository"
)

type AuthHandler struct {
	UserRepo repository.UserRepository
	Tokens   *TokenManager
	Validate *validator.Validate
	Logger   *zap.Logger
}

func NewAuthHandler(userRepo repository.UserRepository, tokens *TokenManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{UserRepo: userRepo, Tokens: tokens, Validate: validator.New(), Logger: logger}
}

type SignupPayload struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	Role        models.Role `json:"role"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

type UserResponse struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	Role        models.Role `json:"role"`
	Permissions []string    `json:"permissions"`
	CreatedAt   time.Time   `json:"created_at"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: u.Role.GlobalPermissions(),
		CreatedAt:   u.CreatedAt,
	}
}

// validationDetail flattens validator errors into one readable line.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "email":
			parts = append(parts, field+" must be a valid email address")
		case "min":
			parts = append(parts, field+" must be at least "+fe.Param()+" characters")
		case "max":
			parts = append(parts, field+" must be at most "+fe.Param()+" characters")
		case "oneof":
			parts = append(parts, field+" must be one of: "+fe.Param())
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}

// Signup creates a regular user account. Admin accounts cannot be self-registered.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload SignupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request payload")
		return
	}
	payload.Username = strings.TrimSpace(payload.Username)
	payload.Email = strings.TrimSpace(payload.Email)

	if err := h.Validate.Struct(payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeValidation, validationDetail(err))
		return
	}
	if payload.Role == string(models.RoleAdmin) {
		WriteAPIError(w, http.StatusBadRequest, CodeValidation, "Cannot sign up as admin")
		return
	}

	ctx := r.Context()
	if _, err := h.UserRepo.GetByUsername(ctx, payload.Username); err == nil {
		WriteAPIError(w, http.StatusBadRequest, CodeConflict, "Username already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		h.Logger.Error("failed to check username", zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to create user")
		return
	}
	if _, err := h.UserRepo.GetByEmail(ctx, payload.Email); err == nil {
		WriteAPIError(w, http.StatusBadRequest, CodeConflict, "Email already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		h.Logger.Error("failed to check email", zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to create user")
		return
	}

	user := &models.User{Username: payload.Username, Email: payload.Email, Role: models.RoleUser}
	if err := user.SetPassword(payload.Password); err != nil {
		h.Logger.Error("failed to hash password", zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to create user")
		return
	}
	if err := h.UserRepo.Create(ctx, user); err != nil {
		h.Logger.Error("failed to create user", zap.String("username", user.Username), zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to create user")
		return
	}

	h.Logger.Info("user signed up", zap.String("user_id", user.ID), zap.String("username", user.Username))
	writeJSON(w, http.StatusCreated, map[string]string{"detail": "User created successfully", "user": user.Username})
}

func readLoginPayload(r *http.Request) (LoginPayload, error) {
	var payload LoginPayload
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&payload)
		return payload, err
	}
	if err := r.ParseForm(); err != nil {
		return payload, err
	}
	payload.Username = r.PostForm.Get("username")
	payload.Password = r.PostForm.Get("password")
	return payload, nil
}

// Login accepts a JSON or form body; the username field may hold a username or an email.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	payload, err := readLoginPayload(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request payload")
		return
	}
	if strings.TrimSpace(payload.Username) == "" || payload.Password == "" {
		WriteAPIError(w, http.StatusBadRequest, CodeValidation, "username and password are required")
		return
	}

	user, err := h.UserRepo.GetByUsernameOrEmail(r.Context(), payload.Username)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.Logger.Error("failed to look up user", zap.Error(err))
		}
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Incorrect username/email or password")
		return
	}
	if !user.CheckPassword(payload.Password) {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Incorrect username/email or password")
		return
	}

	token, expiresAt, err := h.Tokens.Issue(user)
	if err != nil {
		h.Logger.Error("failed to issue token", zap.String("user_id", user.ID), zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        user.Role,
		ExpiresAt:   expiresAt,
	})
}

// CurrentUser returns the authenticated account.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
