package provider

import (
	"context"

	"github.com/sells-group/pickup-cli/internal/geodesy"
	"github.com/sells-group/pickup-cli/internal/location"
	"github.com/sells-group/pickup-cli/pkg/postnl"
)

// PostNL is the box provider backed by the PostNL location widget.
type PostNL struct {
	adapter
	client *postnl.Client
}

// NewPostNL wraps client.
func NewPostNL(client *postnl.Client, opts ...Option) *PostNL {
	return &PostNL{adapter: newAdapter("PostNL", opts), client: client}
}

// Name implements Provider.
func (p *PostNL) Name() string { return p.name }

// Kind implements Provider.
func (p *PostNL) Kind() Kind { return KindBBox }

// SearchBBox implements BBoxSearcher.
func (p *PostNL) SearchBBox(ctx context.Context, bbox geodesy.BBox) ([]location.Record, error) {
	recs, _, err := p.call(ctx, "by_box", func(ctx context.Context) ([]map[string]any, error) {
		return p.client.ByBox(ctx, bbox)
	})
	return recs, err
}
