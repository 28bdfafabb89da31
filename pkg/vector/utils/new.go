package vectorutils

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/papercomputeco/sway/pkg/vector"
	"github.com/papercomputeco/sway/pkg/vector/chroma"
	"github.com/papercomputeco/sway/pkg/vector/inmemory"
	"github.com/papercomputeco/sway/pkg/vector/qdrantvec"
	"github.com/papercomputeco/sway/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	// ProviderType is one of memory, sqlite, qdrant or chroma.
	ProviderType string

	// Target is the sqlite database path, the qdrant host:port or the
	// chroma URL.
	Target string

	Collection string
	APIKey     string
	Dimensions uint
	Metric     string
	Logger     *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	metric, err := vector.ParseMetric(o.Metric)
	if err != nil {
		return nil, err
	}

	switch o.ProviderType {
	case "memory", "inmemory", "":
		return inmemory.NewDriver(int(o.Dimensions), metric)

	case "sqlite":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
			Metric:     metric,
		}, o.Logger)

	case "qdrant":
		host, port, err := splitTarget(o.Target)
		if err != nil {
			return nil, err
		}
		return qdrantvec.NewDriver(ctx, qdrantvec.Config{
			Host:       host,
			Port:       port,
			APIKey:     o.APIKey,
			UseTLS:     strings.HasPrefix(o.Target, "https://"),
			Collection: o.Collection,
			Dimensions: o.Dimensions,
			Metric:     metric,
		}, o.Logger)

	case "chroma":
		url := o.Target
		if url == "" {
			url = "http://localhost:8000"
		}
		if !strings.Contains(url, "://") {
			url = "http://" + url
		}
		return chroma.NewDriver(ctx, chroma.Config{
			URL:        url,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
			Metric:     metric,
		}, o.Logger)

	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// splitTarget accepts host, host:port and an optional http(s):// scheme.
func splitTarget(target string) (string, int, error) {
	target = strings.TrimPrefix(strings.TrimPrefix(target, "https://"), "http://")
	if target == "" {
		return "localhost", 0, nil
	}
	if !strings.Contains(target, ":") {
		return target, 0, nil
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}
