package services

import (
	"context"
	"time"

	aws_pkg "github.com/KaranSingh0790/Cupid-s-Arrow/pkg/aws"
)

// recordCount publishes a counter in the background. A nil or disabled recorder is a no-op.
func recordCount(m aws_pkg.MetricsRecorder, name string, dims map[string]string) {
	if m == nil || !m.IsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.RecordCount(ctx, name, dims)
	}()
}
