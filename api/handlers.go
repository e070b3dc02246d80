package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"

	"mural-api/board"
	"mural-api/domain"
	"mural-api/storage"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, boards Boards, accounts Accounts, auth Sessions, deduper Deduper, logger *log.Logger, cfg AccountConfig) {
	e.POST("/api/auth/register", postRegister(accounts, cfg))
	e.POST("/api/auth/login", postLogin(accounts, auth))
	e.GET("/api/auth/user", getUser(accounts, auth))

	e.GET("/api/board", getBoard(boards, auth, logger))
	e.POST("/api/cards", postCard(boards, auth, deduper))
	e.PATCH("/api/cards/:id", patchCard(boards, auth))
	e.DELETE("/api/cards/:id", deleteCard(boards, auth))
	e.POST("/api/gestures", postGestures(boards, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(boards Boards, auth Sessions, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newBoardRequestMetrics(ctx, logger)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		identity, authErr := auth.IdentityFromHeader(c.Request().Header)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		scopeTag := strings.TrimSpace(c.QueryParam("tag"))
		if scopeTag == "" {
			scopeTag = identity.Department
		}
		if scopeTag == "" {
			metrics.SetErrorStage("missing_scope_tag")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "missing board tag"})
			return err
		}
		metrics.SetScopeTag(scopeTag)

		fetchStart := time.Now()
		columns, fetchErr := boards.Board(ctx, scopeTag)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load board"})
			return err
		}

		cards := 0
		for i := range columns {
			cards += len(columns[i].Cards)
		}
		metrics.SetBoardSize(len(columns), cards)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, boardResponse{ScopeTag: scopeTag, Columns: columns})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type postCardRequest struct {
	ColumnID string `json:"columnId"`
	Content  string `json:"content"`
	ScopeTag string `json:"scopeTag,omitempty"`
}

func postCard(boards Boards, auth Sessions, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identity, err := auth.IdentityFromHeader(c.Request().Header)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		lr := io.LimitReader(c.Request().Body, postBodyMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req postCardRequest
		if err := dec.Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		scopeTag := scopeTagFor(req.ScopeTag, identity)
		if scopeTag == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing board tag"})
		}

		idemKey := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
		if idemKey != "" && deduper != nil {
			added, dedupeErr := deduper.Add(ctx, identity.UserID, idemKey)
			if dedupeErr != nil {
				c.Logger().Error(dedupeErr)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to record submission"})
			}
			if !added {
				return c.NoContent(http.StatusAccepted)
			}
		}

		card, err := boards.AddCard(ctx, scopeTag, req.ColumnID, req.Content)
		if err != nil {
			if idemKey != "" && deduper != nil {
				if removeErr := deduper.Remove(ctx, identity.UserID, idemKey); removeErr != nil {
					c.Logger().Error(removeErr)
				}
			}
			return writeBoardError(c, err)
		}
		return c.JSON(http.StatusCreated, card)
	}
}

type patchCardRequest struct {
	ColumnID string `json:"columnId"`
	Content  string `json:"content"`
	ScopeTag string `json:"scopeTag,omitempty"`
}

func patchCard(boards Boards, auth Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identity, err := auth.IdentityFromHeader(c.Request().Header)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		cardID := c.Param("id")
		if cardID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing card id"})
		}

		lr := io.LimitReader(c.Request().Body, postBodyMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req patchCardRequest
		if err := dec.Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		scopeTag := scopeTagFor(req.ScopeTag, identity)
		if scopeTag == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing board tag"})
		}

		if err := boards.EditCard(ctx, scopeTag, cardID, req.ColumnID, req.Content); err != nil {
			return writeBoardError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteCard(boards Boards, auth Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identity, err := auth.IdentityFromHeader(c.Request().Header)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		cardID := c.Param("id")
		if cardID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing card id"})
		}

		scopeTag := scopeTagFor(c.QueryParam("tag"), identity)
		if scopeTag == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing board tag"})
		}

		columnID := c.QueryParam("columnId")
		if err := boards.DeleteCard(ctx, scopeTag, cardID, columnID); err != nil {
			return writeBoardError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postGestures(boards Boards, auth Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identity, err := auth.IdentityFromHeader(c.Request().Header)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		scopeTag := scopeTagFor(c.QueryParam("tag"), identity)
		if scopeTag == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing board tag"})
		}

		lr := io.LimitReader(c.Request().Body, postBodyMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		gestures := make([]domain.Gesture, 0, 4)
		if err := dec.Decode(&gestures); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if len(gestures) == 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "empty gesture batch"})
		}

		if err := boards.ApplyGestures(ctx, scopeTag, gestures); err != nil {
			return writeBoardError(c, err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func scopeTagFor(requested string, identity Identity) string {
	if tag := strings.TrimSpace(requested); tag != "" {
		return tag
	}
	return identity.Department
}

func writeBoardError(c echo.Context, err error) error {
	var validationErr board.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: validationErr.Error()})
	}
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
