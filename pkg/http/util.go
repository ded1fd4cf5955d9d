package http

import (
	"time"

	xutil "SignalGate/pkg/util"

	"github.com/labstack/echo/v4"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }

// QueryLimit reads ?limit= bounded to [1, upper], falling back to def.
func QueryLimit(c echo.Context, def, upper int) int {
	n := ParseIntDefault(c.QueryParam("limit"), def)
	if n < 1 {
		return def
	}
	if n > upper {
		return upper
	}
	return n
}
