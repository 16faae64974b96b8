package extract

import (
	"log/slog"
	"strings"
	"time"
)

func logExtraction(chain string, res Result, took time.Duration) {
	slog.Info("extraction finished",
		"chain", chain,
		"backend", res.Backend,
		"chars", len(strings.TrimSpace(res.Text)),
		"duration_ms", took.Milliseconds(),
	)
}
