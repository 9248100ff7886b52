package distill

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
)

func TestTelemetry(t *testing.T) {
	mock := clock.NewMock()
	tel := newTelemetry(mock)

	err := tel.time(StageSegmentation, func() error {
		mock.Add(10 * time.Millisecond)
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	err = tel.time(StageSegmentation, func() error {
		mock.Add(30 * time.Millisecond)
		return nil
	})
	test.That(t, err, test.ShouldBeNil)

	snap := tel.snapshot()
	seg := snap[StageSegmentation]
	test.That(t, seg.Count, test.ShouldEqual, 2)
	test.That(t, seg.Last, test.ShouldEqual, 30*time.Millisecond)
	test.That(t, seg.Total, test.ShouldEqual, 40*time.Millisecond)
	test.That(t, seg.Average, test.ShouldEqual, 20*time.Millisecond)

	tel.reset()
	test.That(t, len(tel.snapshot()), test.ShouldEqual, 0)
}
