package playout

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/blueprint"
	"github.com/bbernstein/sofie-playout-go/internal/services/pubsub"
	"github.com/bbernstein/sofie-playout-go/internal/services/testutil"
	"github.com/bbernstein/sofie-playout-go/internal/store"
)

const (
	studioID   models.StudioID   = "studio0"
	playlistID models.PlaylistID = "playlist0"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *clock) Ms() int64 {
	return c.Now().UnixMilli()
}

// recorder is a blueprint that records its calls.
type recorder struct {
	blueprint.Base

	mu       sync.Mutex
	calls    []string
	endState map[string]any
	endErr   error
	postErr  error
	preTake  func()
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (r *recorder) GetEndStateForPart(context.Context, *blueprint.Context, blueprint.EndStateInput) (map[string]any, error) {
	r.record("getEndStateForPart")
	return r.endState, r.endErr
}

func (r *recorder) OnPreTake(context.Context, *blueprint.Context) error {
	r.record("onPreTake")
	if r.preTake != nil {
		r.preTake()
	}
	return nil
}

func (r *recorder) OnPostTake(context.Context, *blueprint.Context) error {
	r.record("onPostTake")
	return r.postErr
}

func (r *recorder) OnRundownFirstTake(context.Context, *blueprint.Context) error {
	r.record("onRundownFirstTake")
	return nil
}

func (r *recorder) OnRundownActivate(context.Context, *blueprint.Context) error {
	r.record("onRundownActivate")
	return nil
}

func (r *recorder) OnRundownDeActivate(context.Context, *blueprint.Context) error {
	r.record("onRundownDeActivate")
	return nil
}

type fixture struct {
	svc   *Service
	st    *store.Store
	clock *clock
	bp    *recorder
	ps    *pubsub.PubSub
}

// defaultRundown builds rd0 with segment s0 (p0, p1, p2) and s1 (p3, p4).
// p0 starts a rundown-end infinite on the infinite layer.
func defaultRundown(b *testutil.Builder) {
	b.AddRundown("rd0").AddSegment("s0").
		AddPart("p0").
		AddPiece("cam0", testutil.LayerCam, models.LifespanWithinPart).
		AddPiece("inf", testutil.LayerInf, models.LifespanOutOnRundownEnd).
		AddPart("p1").
		AddPiece("cam1", testutil.LayerCam, models.LifespanWithinPart).
		AddPart("p2").
		AddPiece("cam2", testutil.LayerCam, models.LifespanWithinPart).
		AddSegment("s1").
		AddPart("p3").
		AddPiece("cam3", testutil.LayerCam, models.LifespanWithinPart).
		AddPart("p4").
		AddPiece("cam4", testutil.LayerCam, models.LifespanWithinPart)
}

func newFixture(t *testing.T, build func(b *testutil.Builder), opts ...func(*Options)) *fixture {
	t.Helper()
	testDB, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	b := testutil.NewBuilder(studioID, playlistID)
	build(b)
	b.Save(t, testDB.Store)

	f := &fixture{
		st:    testDB.Store,
		clock: &clock{t: time.UnixMilli(1_700_000_000_000)},
		bp:    &recorder{},
		ps:    pubsub.New(),
	}
	registry := blueprint.NewRegistry(nil)
	registry.Register("test", f.bp)

	var counter atomic.Int64
	o := Options{
		PubSub:     f.ps,
		Blueprints: registry,
		Now:        f.clock.Now,
		NewID: func() string {
			return fmt.Sprintf("id%04d", counter.Add(1))
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	f.svc = NewService(testDB.Store, o)
	return f
}

func (f *fixture) playlist(t *testing.T) models.RundownPlaylist {
	t.Helper()
	p, err := f.st.Playlists.FindByID(context.Background(), string(playlistID))
	require.NoError(t, err)
	require.NotNil(t, p)
	return *p
}

func (f *fixture) partInstance(t *testing.T, id models.PartInstanceID) models.PartInstance {
	t.Helper()
	pi, err := f.st.PartInstances.FindByID(context.Background(), string(id))
	require.NoError(t, err)
	require.NotNil(t, pi, "part instance %s", id)
	return *pi
}

func (f *fixture) pieceInstances(t *testing.T, id models.PartInstanceID) []models.PieceInstance {
	t.Helper()
	out, err := f.st.PieceInstances.Find(context.Background(), store.Where(
		store.Eq("part_instance_id", string(id)),
		store.Eq("reset", false),
	))
	require.NoError(t, err)
	return out
}

func findPiece(pieces []models.PieceInstance, id models.PieceID) (models.PieceInstance, bool) {
	for _, pi := range pieces {
		if pi.PieceID == id {
			return pi, true
		}
	}
	return models.PieceInstance{}, false
}

// currentPart returns the part id on air, or "".
func (f *fixture) currentPart(t *testing.T) models.PartID {
	t.Helper()
	p := f.playlist(t)
	if p.CurrentPartInstanceID == "" {
		return ""
	}
	return f.partInstance(t, p.CurrentPartInstanceID).PartID
}

// nextPart returns the part id that is next, or "".
func (f *fixture) nextPart(t *testing.T) models.PartID {
	t.Helper()
	p := f.playlist(t)
	if p.NextPartInstanceID == "" {
		return ""
	}
	return f.partInstance(t, p.NextPartInstanceID).PartID
}

func (f *fixture) activate(t *testing.T) {
	t.Helper()
	require.NoError(t, f.svc.Activate(context.Background(), playlistID, false))
}

func (f *fixture) take(t *testing.T) {
	t.Helper()
	require.NoError(t, f.svc.Take(context.Background(), playlistID))
}
