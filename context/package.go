// Package context contains helpers for threading request metadata through
// a context.Context, mostly so that log entries carry it.
package context

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

type contextKey int

const (
	uuidKey contextKey = iota
	componentKey
)

// FromUUID returns a context with the given request UUID attached.
func FromUUID(ctx context.Context, uuid string) context.Context {
	return context.WithValue(ctx, uuidKey, uuid)
}

// FromComponent returns a context with the given component name attached.
func FromComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

func UUIDFromContext(ctx context.Context) (string, bool) {
	uuid, ok := ctx.Value(uuidKey).(string)
	return uuid, ok
}

func ComponentFromContext(ctx context.Context) (string, bool) {
	component, ok := ctx.Value(componentKey).(string)
	return component, ok
}

// LoggerFromContext returns a logrus.Entry with fields pulled from the
// given context, plus the current process pid.
func LoggerFromContext(ctx context.Context) *logrus.Entry {
	entry := logrus.WithField("pid", os.Getpid())

	if uuid, ok := UUIDFromContext(ctx); ok {
		entry = entry.WithField("uuid", uuid)
	}

	if component, ok := ComponentFromContext(ctx); ok {
		entry = entry.WithField("component", component)
	}

	return entry
}
