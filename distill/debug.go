package distill

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/robodistill/cgvd/rmask"
)

// debugWriter emits per-frame diagnostic panels and a text decision log. A
// nil writer is valid and does nothing, so call sites never guard.
type debugWriter struct {
	dir     string
	logger  golog.Logger
	logFile *os.File
	frame   int
}

func newDebugWriter(dir string, logger golog.Logger) (*debugWriter, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "cannot create debug directory %q", dir)
	}
	f, err := os.Create(filepath.Join(dir, "decisions.log"))
	if err != nil {
		return nil, errors.Wrap(err, "cannot create debug decision log")
	}
	return &debugWriter{dir: dir, logger: logger, logFile: f}, nil
}

// logf appends one line to the decision log.
func (d *debugWriter) logf(format string, args ...interface{}) {
	if d == nil {
		return
	}
	if _, err := fmt.Fprintf(d.logFile, format+"\n", args...); err != nil {
		d.logger.Warnw("debug decision log write failed", "error", err)
	}
}

// writePanel renders the four-up diagnostic image for one frame: original,
// distractor mask, safe-set mask, composited output.
func (d *debugWriter) writePanel(original image.Image, distractor, safe *rmask.Mask, output image.Image) {
	if d == nil {
		return
	}
	b := original.Bounds()
	w, h := b.Dx(), b.Dy()
	const label = 16
	dc := gg.NewContext(2*w, 2*(h+label))

	dc.SetRGB(0, 0, 0)
	dc.Clear()
	panels := []struct {
		name string
		img  image.Image
		x, y int
	}{
		{"original", original, 0, 0},
		{"distractor", distractor.ToGray(), w, 0},
		{"safe set", safe.ToGray(), 0, h + label},
		{"output", output, w, h + label},
	}
	dc.SetRGB(1, 1, 1)
	for _, p := range panels {
		dc.DrawImage(p.img, p.x, p.y)
		dc.DrawString(p.name, float64(p.x)+2, float64(p.y+h)+12)
	}

	path := filepath.Join(d.dir, fmt.Sprintf("frame_%05d.png", d.frame))
	d.frame++
	if err := dc.SavePNG(path); err != nil {
		d.logger.Warnw("debug panel write failed", "path", path, "error", err)
	}
}

// Close flushes and closes the decision log.
func (d *debugWriter) Close() error {
	if d == nil || d.logFile == nil {
		return nil
	}
	return multierr.Combine(d.logFile.Sync(), d.logFile.Close())
}
