package observability

import (
	"time"

	"go.uber.org/zap"
)

// Field aliases keep call sites free of a direct zap import.

// String builds a string log field.
func String(key, value string) zap.Field { return zap.String(key, value) }

// Int builds an integer log field.
func Int(key string, value int) zap.Field { return zap.Int(key, value) }

// Duration builds a duration log field.
func Duration(key string, value time.Duration) zap.Field { return zap.Duration(key, value) }

// Error builds the standard "error" log field.
func Error(err error) zap.Field { return zap.Error(err) }
