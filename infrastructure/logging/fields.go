package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/event"
	"github.com/felixgeelhaar/offline-agent/domain/request"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for agent logging.

// Method adds the request method.
func Method(m string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("method", m)
	}
}

// URL adds the request URL.
func URL(u string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("url", u)
	}
}

// Category adds the request classification.
func Category(c request.Category) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("category", string(c))
	}
}

// Strategy adds the strategy name.
func Strategy(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("strategy", name)
	}
}

// Source adds where a response came from.
func Source(s string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("source", s)
	}
}

// Store adds a cache store name.
func Store(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("store", name)
	}
}

// Version adds a cache version tag.
func Version(tag cache.VersionTag) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("version", string(tag))
	}
}

// FromVersion adds the previously active version for activations.
func FromVersion(tag cache.VersionTag) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_version", string(tag))
	}
}

// Key adds a cache key.
func Key(k string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("key", k)
	}
}

// EventKind adds the event kind.
func EventKind(k event.Kind) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("event", string(k))
	}
}

// Sequence adds a deferred operation sequence number.
func Sequence(seq uint64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("sequence", int64(seq))
	}
}

// Status adds an HTTP status code.
func Status(code int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("status", code)
	}
}

// Count adds a named count.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// Cached adds a cached field.
func Cached(cached bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool("cached", cached)
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Bool adds a boolean field with custom key.
func Bool(key string, value bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool(key, value)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
