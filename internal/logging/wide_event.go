package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blagoySimandov/trainer/internal/logger"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const (
	contextKeyWideEvent contextKey = "wide_event"
	contextKeyTraceID   contextKey = "trace_id"
)

// WideEvent is one structured log entry covering a whole request. Components
// enrich it as the request flows through them; it is emitted once at the end.
type WideEvent struct {
	mu sync.Mutex

	// Core identifiers
	TraceID   string    `json:"trace_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`

	// Request metadata
	HTTPMethod     string `json:"http_method,omitempty"`
	HTTPPath       string `json:"http_path,omitempty"`
	HTTPStatusCode int    `json:"http_status_code,omitempty"`
	HTTPDurationMs int64  `json:"http_duration_ms,omitempty"`

	// User context
	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`

	// Model context
	ModelName string `json:"model_name,omitempty"`
	ModelType string `json:"model_type,omitempty"`

	// Metering
	TokensCharged  int64 `json:"tokens_charged,omitempty"`
	TokensRefunded int64 `json:"tokens_refunded,omitempty"`

	// Error tracking
	Error          string `json:"error,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty"`
	PanicRecovered bool   `json:"panic_recovered,omitempty"`

	// Additional metadata
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewWideEvent creates a new WideEvent with a trace ID and timestamp
func NewWideEvent(eventType string) *WideEvent {
	return &WideEvent{
		TraceID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// WithContext attaches a WideEvent to a context
func WithContext(ctx context.Context, event *WideEvent) context.Context {
	ctx = context.WithValue(ctx, contextKeyWideEvent, event)
	ctx = context.WithValue(ctx, contextKeyTraceID, event.TraceID)
	return ctx
}

// FromContext retrieves the WideEvent from a context
func FromContext(ctx context.Context) *WideEvent {
	if event, ok := ctx.Value(contextKeyWideEvent).(*WideEvent); ok {
		return event
	}
	return nil
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(contextKeyTraceID).(string); ok {
		return traceID
	}
	return ""
}

func enrich(ctx context.Context, fn func(e *WideEvent)) {
	if event := FromContext(ctx); event != nil {
		event.mu.Lock()
		defer event.mu.Unlock()
		fn(event)
	}
}

func EnrichHTTP(ctx context.Context, method, path string) {
	enrich(ctx, func(e *WideEvent) {
		e.HTTPMethod = method
		e.HTTPPath = path
	})
}

func EnrichHTTPStatus(ctx context.Context, statusCode int) {
	enrich(ctx, func(e *WideEvent) { e.HTTPStatusCode = statusCode })
}

func EnrichHTTPDuration(ctx context.Context, duration time.Duration) {
	enrich(ctx, func(e *WideEvent) { e.HTTPDurationMs = duration.Milliseconds() })
}

func EnrichUser(ctx context.Context, userID, email string) {
	enrich(ctx, func(e *WideEvent) {
		e.UserID = userID
		e.UserEmail = email
	})
}

func EnrichModel(ctx context.Context, name, modelType string) {
	enrich(ctx, func(e *WideEvent) {
		if name != "" {
			e.ModelName = name
		}
		if modelType != "" {
			e.ModelType = modelType
		}
	})
}

func EnrichTokensCharged(ctx context.Context, amount int64) {
	enrich(ctx, func(e *WideEvent) { e.TokensCharged += amount })
}

func EnrichTokensRefunded(ctx context.Context, amount int64) {
	enrich(ctx, func(e *WideEvent) { e.TokensRefunded += amount })
}

func EnrichError(ctx context.Context, err error, kind string) {
	if err == nil {
		return
	}
	enrich(ctx, func(e *WideEvent) {
		e.Error = err.Error()
		e.ErrorKind = kind
	})
}

func EnrichPanic(ctx context.Context) {
	enrich(ctx, func(e *WideEvent) { e.PanicRecovered = true })
}

func EnrichMetadata(ctx context.Context, key string, value any) {
	enrich(ctx, func(e *WideEvent) { e.Metadata[key] = value })
}

// Emit outputs the WideEvent as a structured log
func Emit(ctx context.Context) {
	event := FromContext(ctx)
	if event == nil {
		return
	}
	event.mu.Lock()
	defer event.mu.Unlock()

	attrs := []slog.Attr{
		slog.String("trace_id", event.TraceID),
		slog.String("event_type", event.EventType),
		slog.Time("timestamp", event.Timestamp),
	}

	// HTTP metadata
	if event.HTTPMethod != "" {
		attrs = append(attrs, slog.String("http_method", event.HTTPMethod))
	}
	if event.HTTPPath != "" {
		attrs = append(attrs, slog.String("http_path", event.HTTPPath))
	}
	if event.HTTPStatusCode != 0 {
		attrs = append(attrs, slog.Int("http_status_code", event.HTTPStatusCode))
	}
	attrs = append(attrs, slog.Int64("http_duration_ms", event.HTTPDurationMs))

	// User context
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.UserEmail != "" {
		attrs = append(attrs, slog.String("user_email", event.UserEmail))
	}

	// Model context
	if event.ModelName != "" {
		attrs = append(attrs, slog.String("model_name", event.ModelName))
	}
	if event.ModelType != "" {
		attrs = append(attrs, slog.String("model_type", event.ModelType))
	}

	// Metering
	if event.TokensCharged != 0 {
		attrs = append(attrs, slog.Int64("tokens_charged", event.TokensCharged))
	}
	if event.TokensRefunded != 0 {
		attrs = append(attrs, slog.Int64("tokens_refunded", event.TokensRefunded))
	}

	// Error tracking
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.ErrorKind != "" {
		attrs = append(attrs, slog.String("error_kind", event.ErrorKind))
	}
	if event.PanicRecovered {
		attrs = append(attrs, slog.Bool("panic_recovered", event.PanicRecovered))
	}

	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	level := slog.LevelInfo
	if event.PanicRecovered || event.HTTPStatusCode >= 500 {
		level = slog.LevelError
	} else if event.Error != "" {
		level = slog.LevelWarn
	}

	logger.Log.LogAttrs(ctx, level, "wide_event", attrs...)
}
