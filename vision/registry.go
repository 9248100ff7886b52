package vision

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ModelRegistry owns the process-wide model handles. Segmentation and
// inpainting backends are expensive to initialize, so one registry is built
// per process and shared across every wrapper instance; the wrappers issue
// stateless query calls only and never mutate the models.
type ModelRegistry struct {
	mu        sync.RWMutex
	segmenter Segmenter
	inpainter Inpainter
}

// NewModelRegistry builds a registry from already-constructed model handles.
// Handles are injected rather than discovered, so tests can substitute fakes.
func NewModelRegistry(seg Segmenter, inp Inpainter) (*ModelRegistry, error) {
	if seg == nil {
		return nil, errors.New("model registry needs a segmenter")
	}
	if inp == nil {
		return nil, errors.New("model registry needs an inpainter")
	}
	return &ModelRegistry{segmenter: seg, inpainter: inp}, nil
}

// Segmenter returns the shared segmentation handle.
func (r *ModelRegistry) Segmenter() Segmenter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.segmenter
}

// Inpainter returns the shared inpainting handle.
func (r *ModelRegistry) Inpainter() Inpainter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inpainter
}

// Close releases any model handle that is closeable.
func (r *ModelRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if c, ok := r.segmenter.(io.Closer); ok {
		err = multierr.Combine(err, c.Close())
	}
	if c, ok := r.inpainter.(io.Closer); ok {
		err = multierr.Combine(err, c.Close())
	}
	r.segmenter = nil
	r.inpainter = nil
	return err
}
