package export

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pickup-cli/internal/pipeline"
)

// MultiSink fans a dataset out to several sinks. Every sink is tried; the
// first failure is returned.
type MultiSink []pipeline.Sink

// Write implements pipeline.Sink.
func (m MultiSink) Write(ctx context.Context, ds *pipeline.Dataset) error {
	var first error
	for _, s := range m {
		if err := s.Write(ctx, ds); err != nil && first == nil {
			first = err
		}
	}
	return eris.Wrapf(first, "export: region %s", ds.Region.Slug)
}
