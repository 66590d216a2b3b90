package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// normaliseCode trims and upper-cases a raw invitation code.
func normaliseCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// fileExtension returns the lower-case extension of name without the dot.
func fileExtension(name string) string {
	ext := filepath.Ext(strings.TrimSpace(name))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// setLockTimeout bounds row-lock waits inside the current transaction on
// postgres. Other dialects rely on the transaction context deadline.
func setLockTimeout(tx *gorm.DB, timeout time.Duration) error {
	if timeout <= 0 || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = %d", timeout.Milliseconds())).Error
}
