package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/opflow/pkg/persistence"
	"github.com/dukex/opflow/pkg/persistence/file"
	"github.com/dukex/opflow/pkg/persistence/postgresql"
	"github.com/dukex/opflow/pkg/persistence/redis"
)

// NewPersistence opens the backend selected by the URL scheme. A URL without
// a scheme is a directory for the file backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	logger.InfoContext(ctx, "Opening persistence", "provider", provider)

	switch provider {
	case "file":
		return file.NewPersistence(databaseURL), nil
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger.With("module", "postgresql"), databaseURL)
	case "redis", "rediss":
		return redis.NewPersistence(ctx, logger.With("module", "redis"), databaseURL)
	default:
		return nil, fmt.Errorf("%w: %s", persistence.ErrUnsupportedScheme, provider)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return strings.ToLower(provider)
}
