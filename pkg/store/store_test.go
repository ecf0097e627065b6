package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/pokedexos/dexcache/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type countingFetcher struct {
	calls atomic.Int32
	data  []byte
	err   error
	delay time.Duration
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, f *countingFetcher) *Store {
	t.Helper()
	dir := t.TempDir()
	clock := &stepClock{t: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}
	cfg := Config{
		DBPath:   filepath.Join(dir, "database", "pokemon.db"),
		AssetDir: filepath.Join(dir, "database", "sprites"),
		Now:      clock.Now,
	}
	if f != nil {
		cfg.Fetcher = f
	}
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func payload(id int, name string, types ...string) *record.Payload {
	url := fmt.Sprintf("https://sprites.example.test/pokemon/%d.png", id)
	p := &record.Payload{ID: id, Name: name, Height: 7, Weight: 69, Sprites: record.Sprites{FrontDefault: &url}}
	for _, ty := range types {
		p.Types = append(p.Types, record.TypeWrapper{Type: record.NamedRef{Name: ty}})
	}
	return p
}

func TestStore_BulbasaurScenario(t *testing.T) {
	ctx := context.Background()
	f := &countingFetcher{data: pngBytes}
	s := newTestStore(t, f)

	require.NoError(t, s.Store(ctx, payload(1, "bulbasaur", "grass", "poison")))

	rec, err := s.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "bulbasaur", rec.Name)
	assert.Equal(t, []string{"grass", "poison"}, rec.Categories)
	assert.InDelta(t, 0.7, rec.Height, 1e-9)
	assert.InDelta(t, 6.9, rec.Weight, 1e-9)
	assert.Equal(t, s.AssetPath(1), rec.AssetPath)
	assert.FileExists(t, rec.AssetPath)
	assert.False(t, rec.LastUpdated.IsZero())
}

func TestStore_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := &countingFetcher{data: pngBytes}
	s := newTestStore(t, f)
	p := payload(1, "bulbasaur", "grass", "poison")

	require.NoError(t, s.Store(ctx, p))
	first, err := s.GetByID(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, s.Store(ctx, p))
	second, err := s.GetByID(ctx, 1)
	require.NoError(t, err)

	list, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.False(t, second.LastUpdated.Before(first.LastUpdated))
	assert.Equal(t, int32(1), f.calls.Load(), "sprite must be downloaded once")
}

func TestStore_UpsertReplacesFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &countingFetcher{data: pngBytes})

	require.NoError(t, s.Store(ctx, payload(25, "pikachu", "electric")))

	replacement := payload(25, "raichu", "electric", "psychic")
	replacement.Height, replacement.Weight = 8, 300
	require.NoError(t, s.Store(ctx, replacement))

	rec, err := s.GetByID(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, rec.ID)
	assert.Equal(t, "raichu", rec.Name)
	assert.Equal(t, []string{"electric", "psychic"}, rec.Categories)
	assert.InDelta(t, 0.8, rec.Height, 1e-9)
	assert.InDelta(t, 30.0, rec.Weight, 1e-9)

	gone, err := s.Lookup(ctx, "pikachu")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStore_GetResolution(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &countingFetcher{data: pngBytes})
	require.NoError(t, s.Store(ctx, payload(25, "pikachu", "electric")))

	byString, err := s.Lookup(ctx, "25")
	require.NoError(t, err)
	byInt, err := s.GetByID(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, byInt, byString)

	upper, err := s.Lookup(ctx, "Pikachu")
	require.NoError(t, err)
	lower, err := s.Lookup(ctx, "pikachu")
	require.NoError(t, err)
	require.NotNil(t, upper)
	assert.Equal(t, lower, upper)
	assert.Equal(t, byInt, upper)

	ok, err := s.Exists(ctx, record.ByName("PIKACHU"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, record.ByID(26))
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := s.Lookup(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEnsureAsset_DownloadsOnce(t *testing.T) {
	ctx := context.Background()
	f := &countingFetcher{data: pngBytes}
	s := newTestStore(t, f)

	p1, err := s.EnsureAsset(ctx, 4, "https://sprites.example.test/4.png")
	require.NoError(t, err)
	p2, err := s.EnsureAsset(ctx, 4, "https://sprites.example.test/4.png")
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, filepath.Join(s.AssetDir(), "4.png"), p1)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestEnsureAsset_ConcurrentCallsShareDownload(t *testing.T) {
	ctx := context.Background()
	f := &countingFetcher{data: pngBytes, delay: 50 * time.Millisecond}
	s := newTestStore(t, f)

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], _ = s.EnsureAsset(ctx, 7, "https://sprites.example.test/7.png")
		}(i)
	}
	wg.Wait()

	for _, p := range paths {
		assert.Equal(t, s.AssetPath(7), p)
	}
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestEnsureAsset_FailureMeansNoAsset(t *testing.T) {
	ctx := context.Background()
	f := &countingFetcher{err: errors.Mark(fmt.Errorf("timeout"), errors.ErrTransport, "fetch")}
	s := newTestStore(t, f)

	path, err := s.EnsureAsset(ctx, 4, "https://sprites.example.test/4.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoAsset))
	assert.Empty(t, path)
	assert.NoFileExists(t, s.AssetPath(4))

	entries, err := os.ReadDir(s.AssetDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial files may be left behind")
}

func TestEnsureAsset_RejectsNonImage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &countingFetcher{data: []byte("<html>captive portal</html>")})

	_, err := s.EnsureAsset(ctx, 4, "https://sprites.example.test/4.png")
	assert.True(t, errors.Is(err, errors.ErrNoAsset))
	assert.NoFileExists(t, s.AssetPath(4))
}

func TestStore_AssetFailureStillPersistsRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &countingFetcher{err: fmt.Errorf("connection refused")})

	require.NoError(t, s.Store(ctx, payload(6, "charizard", "fire", "flying")))

	rec, err := s.GetByID(ctx, 6)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.HasAsset())
}

func TestStore_KeepsExistingAssetWhenPayloadHasNone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &countingFetcher{data: pngBytes})
	require.NoError(t, s.Store(ctx, payload(9, "blastoise", "water")))

	p := payload(9, "blastoise", "water")
	p.Sprites.FrontDefault = nil
	require.NoError(t, s.Store(ctx, p))

	rec, err := s.GetByID(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, s.AssetPath(9), rec.AssetPath)
}

func TestStore_StoreRawRejectsInvalid(t *testing.T) {
	s := newTestStore(t, nil)
	err := s.StoreRaw(context.Background(), []byte(`{"id": 0}`))
	assert.True(t, errors.Is(err, errors.ErrInvalidPayload))
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &countingFetcher{data: pngBytes})

	for i, name := range []string{"bulbasaur", "ivysaur", "venusaur"} {
		require.NoError(t, s.Store(ctx, payload(i+1, name, "grass")))
	}
	require.NoError(t, s.Repository().PutDescription(ctx, record.Description{RecordID: 1, Language: "en", Text: "seed"}))
	assets := []string{s.AssetPath(1), s.AssetPath(2), s.AssetPath(3)}
	for _, a := range assets {
		require.FileExists(t, a)
	}

	require.NoError(t, s.Clear(ctx))

	list, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	for _, a := range assets {
		assert.NoFileExists(t, a)
	}
	assert.DirExists(t, s.AssetDir())

	descs, err := s.Repository().Descriptions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, descs)

	// Clearing an empty store is fine.
	require.NoError(t, s.Clear(ctx))
}

func TestOpen_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{DBPath: filepath.Join(dir, "db", "pokemon.db"), AssetDir: filepath.Join(dir, "sprites")}

	s1, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s2.Close())

	_, err = Open(Config{})
	assert.Error(t, err)
}

func TestStore_LastUpdatedNeverGoesBackwards(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	times := []time.Time{
		time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), // clock stepped back
	}
	i := 0
	s, err := Open(Config{
		DBPath:   filepath.Join(dir, "pokemon.db"),
		AssetDir: filepath.Join(dir, "sprites"),
		Now: func() time.Time {
			ts := times[i]
			i++
			return ts
		},
	})
	require.NoError(t, err)
	defer s.Close()

	p := payload(4, "charmander", "fire")
	p.Sprites.FrontDefault = nil

	require.NoError(t, s.Store(ctx, p))
	first, err := s.GetByID(ctx, 4)
	require.NoError(t, err)

	require.NoError(t, s.Store(ctx, p))
	second, err := s.GetByID(ctx, 4)
	require.NoError(t, err)

	assert.False(t, second.LastUpdated.Before(first.LastUpdated))
}

func TestStore_NeighborOf(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &countingFetcher{data: pngBytes})
	for _, p := range []*record.Payload{
		payload(1, "bulbasaur", "grass"),
		payload(4, "charmander", "fire"),
		payload(7, "squirtle", "water"),
	} {
		require.NoError(t, s.Store(ctx, p))
	}

	next, err := s.NeighborOf(ctx, record.ByName("Charmander"), true)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, 7, next.ID)

	prev, err := s.NeighborOf(ctx, record.ByID(4), false)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, 1, prev.ID)

	// Uncached ids still have neighbors.
	gap, err := s.NeighborOf(ctx, record.ByID(5), true)
	require.NoError(t, err)
	require.NotNil(t, gap)
	assert.Equal(t, 7, gap.ID)

	end, err := s.NeighborOf(ctx, record.ByID(7), true)
	require.NoError(t, err)
	assert.Nil(t, end)

	unknown, err := s.NeighborOf(ctx, record.ByName("mew"), false)
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestStore_ClearKeepsForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(Config{
		DBPath:   filepath.Join(dir, "pokemon.db"),
		AssetDir: dir,
		Fetcher:  &countingFetcher{data: pngBytes},
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Store(ctx, payload(1, "bulbasaur", "grass")))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("keep"), 0o644))
	stale := filepath.Join(dir, assetTempPrefix+"123")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))

	require.NoError(t, s.Clear(ctx))

	assert.NoFileExists(t, s.AssetPath(1))
	assert.NoFileExists(t, stale)
	assert.FileExists(t, notes)
	assert.FileExists(t, filepath.Join(dir, "pokemon.db"))

	require.NoError(t, s.Store(ctx, payload(2, "ivysaur", "grass")))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
