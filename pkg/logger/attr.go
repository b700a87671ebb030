package logger

import (
	"fmt"
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id fmt.Stringer) slog.Attr {
	return stringer("user_id", id)
}

// SessionID records the reading session identifier under the key "session_id".
func SessionID(id fmt.Stringer) slog.Attr {
	return stringer("session_id", id)
}

// BookID records the book identifier under the key "book_id".
func BookID(id fmt.Stringer) slog.Attr {
	return stringer("book_id", id)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Count records a number of affected items under the key "count".
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Policy records a sweep policy name under the key "policy".
func Policy(name string) slog.Attr {
	return slog.String("policy", name)
}

func stringer(key string, v fmt.Stringer) slog.Attr {
	if v == nil {
		return slog.Attr{}
	}
	return slog.String(key, v.String())
}
