package middleware

// identity.go holds the device lookup shared by the rate limiter and the
// response cache.

import "github.com/labstack/echo/v4"

// currentDevice returns the device id set by DeviceAuth, or "anon" on
// routes that run before authentication.
func currentDevice(c echo.Context) string {
	if v, ok := c.Get("device_id").(string); ok && v != "" {
		return v
	}
	return "anon"
}
