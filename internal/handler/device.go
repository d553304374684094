package handler

import (
	"context"  // provides context with cancellation for store calls
	"errors"   // sentinel matching
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities
	"time"     // token expiry values

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/parking-ticket-tracker/internal/clock"      // source of token issue time
	"github.com/iliyamo/parking-ticket-tracker/internal/config"     // app configuration
	"github.com/iliyamo/parking-ticket-tracker/internal/repository" // device persistence
	"github.com/iliyamo/parking-ticket-tracker/internal/utils"      // hashing and token issuing
)

// minPasscodeLen is the shortest passcode a device may register with.
const minPasscodeLen = 4

// DeviceHandler registers devices and issues their access tokens.
type DeviceHandler struct {
	Cfg     config.Config
	Devices *repository.DeviceRepo
	Clock   clock.Clock
}

func NewDeviceHandler(cfg config.Config, d *repository.DeviceRepo, clk clock.Clock) *DeviceHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &DeviceHandler{Cfg: cfg, Devices: d, Clock: clk}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Passcode string `json:"passcode"`
}
type loginReq struct {
	DeviceID string `json:"deviceId"`
	Passcode string `json:"passcode"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type devicePart struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
type deviceResp struct {
	Device devicePart `json:"device"`
	Access tokenPart  `json:"access"`
}

// Register: create a device and return its token immediately.
func (h *DeviceHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(strings.TrimSpace(req.Passcode)) < minPasscodeLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "passcode must have at least 4 characters"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()

	d, err := h.Devices.Create(ctx, req.Name, req.Passcode, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create device failed"})
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, d.ID, h.Cfg.AccessTTLMin, h.Clock.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(http.StatusCreated, deviceResp{
		Device: devicePart{ID: d.ID, Name: d.Name},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Login: verify the passcode and return a fresh token.
func (h *DeviceHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" || req.Passcode == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "deviceId/passcode required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()

	d, err := h.Devices.GetByID(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(d.PasscodeHash, req.Passcode) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, d.ID, h.Cfg.AccessTTLMin, h.Clock.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(http.StatusOK, deviceResp{
		Device: devicePart{ID: d.ID, Name: d.Name},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}
