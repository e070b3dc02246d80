package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"mural-api/domain"
	"mural-api/storage"
)

const defaultMinPasswordLen = 6

type registerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Login      string `json:"login"`
	Password   string `json:"password"`
	Department string `json:"department"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func postRegister(accounts Accounts, cfg AccountConfig) echo.HandlerFunc {
	minLen := cfg.MinPasswordLen
	if minLen <= 0 {
		minLen = defaultMinPasswordLen
	}
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		lr := io.LimitReader(c.Request().Body, postBodyMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req registerRequest
		if err := dec.Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		req.Login = strings.TrimSpace(req.Login)
		req.Department = strings.TrimSpace(req.Department)

		if req.Name == "" || req.Email == "" || req.Login == "" || req.Password == "" || req.Department == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "all fields are required"})
		}
		if cfg.EmailDomain != "" && !strings.HasSuffix(req.Email, "@"+cfg.EmailDomain) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email must belong to " + cfg.EmailDomain})
		}
		if len(req.Password) < minLen {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "password too short"})
		}

		if _, err := accounts.FetchUserByEmail(ctx, req.Email); err == nil {
			return c.JSON(http.StatusConflict, errorResponse{Error: "email already registered"})
		} else if !errors.Is(err, storage.ErrNotFound) {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		if _, err := accounts.FetchUserByLogin(ctx, req.Login); err == nil {
			return c.JSON(http.StatusConflict, errorResponse{Error: "login already taken"})
		} else if !errors.Is(err, storage.ErrNotFound) {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}

		user, err := accounts.InsertUser(ctx, domain.User{
			Name:         req.Name,
			Email:        req.Email,
			Login:        req.Login,
			Department:   req.Department,
			PasswordHash: string(hash),
		})
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create user"})
		}
		return c.JSON(http.StatusCreated, user)
	}
}

func postLogin(accounts Accounts, auth Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		lr := io.LimitReader(c.Request().Body, postBodyMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req loginRequest
		if err := dec.Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		req.Login = strings.TrimSpace(req.Login)
		if req.Login == "" || req.Password == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "login and password are required"})
		}

		user, err := accounts.FetchUserByLogin(ctx, req.Login)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		}

		token, err := auth.IssueSession(user)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to issue session"})
		}
		return c.JSON(http.StatusOK, loginResponse{Token: token, User: user})
	}
}

func getUser(accounts Accounts, auth Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identity, err := auth.IdentityFromHeader(c.Request().Header)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		user, err := accounts.FetchUser(ctx, identity.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: "user not found"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return c.JSON(http.StatusOK, user)
	}
}
