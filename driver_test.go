package statechartx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comalice/scxmlrt/internal/model"
	"github.com/comalice/scxmlrt/internal/queue"
	"github.com/comalice/scxmlrt/internal/scheduler"
	"github.com/comalice/scxmlrt/internal/value"
)

// buildS1Graph reproduces spec.md §8.4 scenario S1: state a (onentry
// assign x=1) --go[assign x=2]--> state b (final, onentry assign x=3).
func buildS1Graph(t *testing.T) *model.Graph {
	t.Helper()
	b := model.NewBuilder("root")
	b.Initial("a")
	b.Leaf("a", model.Atomic).
		In("a", func(b *model.Builder) {
			b.Entry(model.Assign("x", "1"))
			b.On("go", "", []model.ActionSpec{model.Assign("x", "2")}, "b")
		})
	b.Leaf("b", model.Final).
		In("b", func(b *model.Builder) {
			b.Entry(model.Assign("x", "3"))
		})
	g, err := b.Finalize()
	require.NoError(t, err)
	return g
}

// TestSCXML_S1_SimpleTransition exercises the full host-facing driver API
// end to end: create, start, push_event, run to termination.
func TestSCXML_S1_SimpleTransition(t *testing.T) {
	d := NewDriver()
	g := buildS1Graph(t)

	sess, err := d.Create("s1", g, Options{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sess.Start(ctx))
	require.Equal(t, []string{"root", "a"}, sess.Configuration())

	require.NoError(t, sess.PushEvent(queue.Event{Name: "go"}))
	require.NoError(t, sess.RunUntilIdle(ctx))

	require.True(t, sess.IsTerminated())
	require.Equal(t, []string{"root", "b"}, sess.Configuration())

	snap := sess.Snapshot()
	x, ok := snap.Variables["x"]
	require.True(t, ok)
	require.Equal(t, float64(3), x.ToNumber())
}

// TestDriverSnapshotRestore round-trips configuration, variables, and a
// pending delayed send through Snapshot/Restore (spec.md §6.2/§6.6),
// using Manual scheduler mode for deterministic remaining-delay math.
func TestDriverSnapshotRestore(t *testing.T) {
	d := NewDriver()
	d.scheduler.SetMode(scheduler.Manual)
	d.scheduler.SetLogicalTime(time.Unix(0, 0))

	b := model.NewBuilder("root")
	b.Initial("a")
	b.Leaf("a", model.Atomic).
		In("a", func(b *model.Builder) {
			b.Entry(
				model.Assign("x", "42"),
				model.Send(model.SendSpec{Event: "later", Delay: "10s"}),
			)
		})
	g, err := b.Finalize()
	require.NoError(t, err)

	sess, err := d.Create("orig", g, Options{})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, sess.Start(ctx))

	snap := sess.Snapshot()
	require.Equal(t, []string{"root", "a"}, snap.Configuration)
	require.Len(t, snap.ScheduledSends, 1)
	require.Equal(t, int64(10000), snap.ScheduledSends[0].RemainingMS)

	restored, err := d.Create("restored", g, Options{})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snap))

	require.Equal(t, []string{"root", "a"}, restored.Configuration())
	rv, ok := restored.Snapshot().Variables["x"]
	require.True(t, ok)
	require.Equal(t, value.FromInt(42).ToNumber(), rv.ToNumber())
}
