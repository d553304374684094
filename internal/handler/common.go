package handler // handler defines http handlers

import (
	"errors" // errors.New for the missing-device sentinel

	"github.com/labstack/echo/v4" // echo defines request context types
)

// errNoDevice is returned when a protected route runs without the device id
// that DeviceAuth stores in the context.
var errNoDevice = errors.New("missing device id in context")

// getDeviceID extracts the device_id placed in the echo.Context by the
// DeviceAuth middleware.
func getDeviceID(c echo.Context) (string, error) {
	if v, ok := c.Get("device_id").(string); ok && v != "" {
		return v, nil
	}
	return "", errNoDevice
}
