// Package embed defines the embedding collaborator consumed by ingest and
// retrieval, plus a deterministic fallback implementation usable without a
// model runtime. The production model backend (whatever turns text into a
// vector, e.g. a local inference server) is an external collaborator: the
// core is written only against this interface.
package embed

import "context"

// Embedder turns text into a unit-normalized vector. is_query distinguishes
// asymmetric encoders that embed queries and documents differently; a
// symmetric embedder may ignore it.
type Embedder interface {
	Embed(ctx context.Context, text string, isQuery bool) ([]float32, error)
	Dimensions() int
	Close() error
}
