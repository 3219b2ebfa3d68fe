package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// NewContext creates a new context carrying the logger
func NewContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// FromContext retrieves the logger from context, or a disabled logger if none is set
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// TradeContext creates a logger for trade operations
func TradeContext(l zerolog.Logger, botLabel, symbol, side string, quantity, price float64) zerolog.Logger {
	return l.With().
		Str("component", "trade").
		Str("bot", botLabel).
		Str("symbol", symbol).
		Str("side", side).
		Float64("quantity", quantity).
		Float64("price", price).
		Logger()
}

// SignalContext creates a logger for trading signals
func SignalContext(l zerolog.Logger, symbol, side string, confidence float64) zerolog.Logger {
	return l.With().
		Str("component", "signal").
		Str("symbol", symbol).
		Str("side", side).
		Float64("confidence", confidence).
		Logger()
}

// AnalysisContext creates a logger for an analysis run
func AnalysisContext(l zerolog.Logger, symbol, timeframe string) zerolog.Logger {
	return l.With().
		Str("component", "analysis").
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Logger()
}

// GinMiddleware logs every request with a trace ID and stores the request logger in the context
func GinMiddleware(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := base.With().
			Str("component", "http").
			Str("trace_id", traceID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Logger()

		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), l))
		c.Header("X-Trace-ID", traceID)

		c.Next()

		l.Info().
			Int("status_code", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	}
}
