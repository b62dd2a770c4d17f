package graph

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"cdd/internal/imports"
)

// Resolver maps a specifier written in baseFile to a file path.
type Resolver interface {
	Resolve(baseFile, specifier string) (string, bool)
}

// Build extracts imports from files on a bounded worker pool, then inserts
// nodes and edges on the calling goroutine in file order and record order.
// Files that fail to extract contribute no edges. Only cancellation of ctx
// makes Build fail.
func Build(ctx context.Context, files []string, extractor imports.Extractor, resolver Resolver, workers int, logger *slog.Logger) (*Graph, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	records := make([][]imports.Record, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, file := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			recs, err := extractor.Extract(egCtx, file)
			if err != nil {
				if ctxErr := egCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("Skipping file", "path", file, "error", err)
				return nil
			}
			records[i] = recs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g := NewGraph()
	for _, file := range files {
		g.AddNode(file)
	}

	unresolved, external := 0, 0
	for i, file := range files {
		from := g.nodeIdx[file]
		for _, rec := range records[i] {
			target, ok := resolver.Resolve(file, rec.Source)
			if !ok {
				unresolved++
				continue
			}
			to, ok := g.nodeIdx[target]
			if !ok {
				external++
				logger.Debug("Import target outside analyzed files", "from", file, "specifier", rec.Source, "target", target)
				continue
			}
			g.AddEdge(from, to, rec)
		}
	}

	logger.Debug("Built dependency graph",
		"nodes", g.NumNodes(),
		"edges", g.NumEdges(),
		"unresolved", unresolved,
		"external", external,
	)
	return g, nil
}
