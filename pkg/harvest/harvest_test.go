package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/iziplay/csw-harvester/pkg/csw"
	"github.com/iziplay/csw-harvester/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueRow struct {
	req   csw.PageRequest
	state string
}

// memoryStore keeps instances and queues in memory
type memoryStore struct {
	mu        sync.Mutex
	instances []database.Instance
	queues    map[string]map[uint]*queueRow
	nextID    uint
	records   map[string]map[string]bool
	harvests  []database.Harvest
	processed int
	broken    map[string]bool // record ids that fail to store
}

func newMemoryStore(instances ...database.Instance) *memoryStore {
	return &memoryStore{
		instances: instances,
		queues:    make(map[string]map[uint]*queueRow),
		records:   make(map[string]map[string]bool),
	}
}

func (s *memoryStore) GetInstance(_ context.Context, identifier string) (*database.Instance, error) {
	for i := range s.instances {
		if s.instances[i].Prefix == identifier || strconv.Itoa(int(s.instances[i].ID)) == identifier {
			inst := s.instances[i]
			return &inst, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", database.ErrInstanceNotFound, identifier)
}

func (s *memoryStore) ActiveInstances(context.Context) ([]database.Instance, error) {
	var out []database.Instance
	for _, inst := range s.instances {
		if inst.Active {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *memoryStore) InsertQueue(_ context.Context, prefix string, pages []csw.PageRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := make(map[uint]*queueRow)
	for _, p := range pages {
		s.nextID++
		q[s.nextID] = &queueRow{req: p, state: database.QueueNew}
	}
	s.queues[prefix] = q
	return nil
}

func (s *memoryStore) NextPackage(_ context.Context, prefix string) (uint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0)
	for id, row := range s.queues[prefix] {
		if row.state == database.QueueNew {
			ids = append(ids, int(id))
		}
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	sort.Ints(ids)
	id := uint(ids[0])
	s.queues[prefix][id].state = database.QueueDownloading
	return id, true, nil
}

func (s *memoryStore) QueueItem(_ context.Context, prefix string, id uint) (csw.PageRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.queues[prefix][id]
	if !ok {
		return csw.PageRequest{}, database.ErrQueueItemMissing
	}
	return row.req, nil
}

func (s *memoryStore) RemoveFromQueue(_ context.Context, prefix string, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues[prefix], id)
	return nil
}

func (s *memoryStore) SetQueueFailed(_ context.Context, prefix string, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[prefix][id].state = database.QueueFailed
	return nil
}

func (s *memoryStore) ProcessRecords(_ context.Context, prefix string, records []csw.Record) (database.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed++
	if s.records[prefix] == nil {
		s.records[prefix] = make(map[string]bool)
	}

	var out database.Outcome
	var failures []error
	for _, r := range records {
		if s.broken[r.ID] {
			failures = append(failures, fmt.Errorf("failed to process record %s", r.ID))
			continue
		}
		if s.records[prefix][r.ID] {
			out.Ignored++
			continue
		}
		s.records[prefix][r.ID] = true
		out.New++
	}
	return out, errors.Join(failures...)
}

func (s *memoryStore) LastHarvest(context.Context) (*database.Harvest, error) {
	if len(s.harvests) == 0 {
		return nil, nil
	}
	h := s.harvests[len(s.harvests)-1]
	return &h, nil
}

func (s *memoryStore) SaveHarvest(_ context.Context, h *database.Harvest) error {
	s.harvests = append(s.harvests, *h)
	return nil
}

func (s *memoryStore) states(prefix string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int)
	for _, row := range s.queues[prefix] {
		out[row.state]++
	}
	return out
}

// catalogueServer answers GetRecords with total records, pageSize per page.
// Pages listed in failing answer with an exception report.
func catalogueServer(t *testing.T, total int, failing ...int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, _ := strconv.Atoi(q.Get("startPosition"))
		max, _ := strconv.Atoi(q.Get("MAXRECORDS"))

		for _, f := range failing {
			if f == start {
				io.WriteString(w, `<ows:ExceptionReport xmlns:ows="http://www.opengis.net/ows"><ows:Exception exceptionCode="NoApplicableCode"/></ows:ExceptionReport>`)
				return
			}
		}

		io.WriteString(w, `<csw:GetRecordsResponse xmlns:csw="http://www.opengis.net/cat/csw/2.0.2" xmlns:gmd="http://www.isotc211.org/2005/gmd" xmlns:gco="http://www.isotc211.org/2005/gco">`)
		fmt.Fprintf(w, `<csw:SearchResults numberOfRecordsMatched="%d">`, total)
		if max > 1 {
			for i := start; i < start+max && i <= total; i++ {
				fmt.Fprintf(w, `<gmd:MD_Metadata><gmd:fileIdentifier><gco:CharacterString>rec-%d</gco:CharacterString></gmd:fileIdentifier></gmd:MD_Metadata>`, i)
			}
		}
		io.WriteString(w, `</csw:SearchResults></csw:GetRecordsResponse>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func instance(prefix, url string) database.Instance {
	return database.Instance{ID: 1, URL: url, PageLimit: 10, Version: "2.0.2", Type: "get", Prefix: prefix, Active: true}
}

func TestProcessInstance(t *testing.T) {
	srv := catalogueServer(t, 35)
	store := newMemoryStore(instance("csw_de", srv.URL))
	h := New(store, csw.NewClient(csw.ClientOptions{}), Options{Workers: 2})

	res, err := h.ProcessInstance(context.Background(), "csw_de")
	require.NoError(t, err)

	assert.Equal(t, 4, res.Pages)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 35, res.New)
	assert.Len(t, store.records["csw_de"], 35)
	assert.Empty(t, store.states("csw_de"))

	p, ok := h.Stats().Get("csw_de")
	require.True(t, ok)
	assert.False(t, p.IsRunning)
	assert.NotNil(t, p.Finished)
	assert.Equal(t, 4, p.Pages)
	assert.Equal(t, 4, p.Processed)
	assert.Equal(t, 35, p.New)

	res, err = h.ProcessInstance(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 35, res.Ignored)
	assert.Zero(t, res.New)
}

func TestProcessInstanceMarksFailedPages(t *testing.T) {
	srv := catalogueServer(t, 30, 11)
	store := newMemoryStore(instance("csw_fr", srv.URL))
	h := New(store, csw.NewClient(csw.ClientOptions{}), Options{})

	res, err := h.ProcessInstance(context.Background(), "csw_fr")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 20, res.New)
	assert.Equal(t, map[string]int{database.QueueFailed: 1}, store.states("csw_fr"))
}

func TestProcessInstanceKeepsRecordsOfFailedPage(t *testing.T) {
	srv := catalogueServer(t, 10)
	store := newMemoryStore(instance("csw_be", srv.URL))
	store.broken = map[string]bool{"rec-3": true}
	h := New(store, csw.NewClient(csw.ClientOptions{}), Options{})

	res, err := h.ProcessInstance(context.Background(), "csw_be")
	require.NoError(t, err)

	assert.Zero(t, res.Pages)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 9, res.New)
	assert.Len(t, store.records["csw_be"], 9)
	assert.Equal(t, map[string]int{database.QueueFailed: 1}, store.states("csw_be"))

	p, ok := h.Stats().Get("csw_be")
	require.True(t, ok)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 9, p.New)
}

func TestProcessInstanceNotFound(t *testing.T) {
	h := New(newMemoryStore(), csw.NewClient(csw.ClientOptions{}), Options{})
	_, err := h.ProcessInstance(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrInstanceNotFound)
}

func TestProcessInstanceListFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	store := newMemoryStore(instance("csw_it", srv.URL))
	h := New(store, csw.NewClient(csw.ClientOptions{}), Options{})

	_, err := h.ProcessInstance(context.Background(), "csw_it")
	var statusErr *csw.StatusError
	assert.True(t, errors.As(err, &statusErr))
	_, ok := h.Stats().Get("csw_it")
	assert.False(t, ok)
}

func TestClaimAndContinue(t *testing.T) {
	srv := catalogueServer(t, 25)
	store := newMemoryStore(instance("csw_nl", srv.URL))
	h := New(store, csw.NewClient(csw.ClientOptions{}), Options{})
	ctx := context.Background()

	inst, err := h.Instance(ctx, "csw_nl")
	require.NoError(t, err)

	_, ok, err := h.Claim(ctx, inst)
	require.NoError(t, err)
	assert.False(t, ok, "nothing queued yet")

	pages, err := h.Queue(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, 3, pages)

	id, ok, err := h.Claim(ctx, inst)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := h.Continue(ctx, inst, id)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 25, res.New)
}

func TestParallelism(t *testing.T) {
	h := New(newMemoryStore(), nil, Options{Workers: 2})
	assert.Equal(t, 6, h.Parallelism(&database.Instance{}))

	limit := 4
	assert.Equal(t, 4, h.Parallelism(&database.Instance{RateLimit: &limit}))

	zero := 0
	assert.Equal(t, 6, h.Parallelism(&database.Instance{RateLimit: &zero}))
}

func TestSourceOf(t *testing.T) {
	params, limit := "lang=ger", 2
	src := SourceOf(&database.Instance{URL: "http://x", PageLimit: 50, Version: "2.0.2", Type: "post", SpecialParams: &params, RateLimit: &limit})
	assert.Equal(t, csw.Source{URL: "http://x", Limit: 50, Version: "2.0.2", Method: csw.MethodPost, SpecialParams: "lang=ger"}, src)
}

func TestProcessAll(t *testing.T) {
	a := catalogueServer(t, 12)
	b := catalogueServer(t, 5)

	inactive := instance("csw_off", a.URL)
	inactive.Active = false
	broken := instance("csw_broken", "http://127.0.0.1:1")

	store := newMemoryStore(instance("csw_a", a.URL), instance("csw_b", b.URL), inactive, broken)
	h := New(store, csw.NewClient(csw.ClientOptions{}), Options{})

	run, err := h.ProcessAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, run.Instances)
	assert.Equal(t, 3, run.Pages)
	assert.Equal(t, 17, run.New)
	assert.False(t, run.Complete)
	require.Len(t, store.harvests, 1)
	assert.Equal(t, *run, store.harvests[0])
	assert.NotContains(t, store.records, "csw_off")
}

func TestNextRun(t *testing.T) {
	store := newMemoryStore()
	h := New(store, nil, Options{})
	ctx := context.Background()

	wait, err := h.NextRun(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, wait)

	store.harvests = append(store.harvests, database.Harvest{Date: time.Now().Add(-30 * time.Minute)})
	wait, err = h.NextRun(ctx, time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, float64(30*time.Minute), float64(wait), float64(time.Minute))

	store.harvests = append(store.harvests, database.Harvest{Date: time.Now().Add(-2 * time.Hour)})
	wait, err = h.NextRun(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestScheduleStopsWithContext(t *testing.T) {
	store := newMemoryStore()
	store.harvests = append(store.harvests, database.Harvest{Date: time.Now()})
	h := New(store, nil, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Schedule(ctx, time.Hour), context.DeadlineExceeded)
}

func TestStats(t *testing.T) {
	s := NewStats()
	assert.False(t, s.IsRunning())

	s.StartInstance("b", 2)
	s.StartInstance("a", 1)
	assert.True(t, s.IsRunning())

	s.PageDone("a", database.Outcome{New: 3}, false)
	s.PageDone("a", database.Outcome{}, true)
	s.EndInstance("a")

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Prefix)
	assert.Equal(t, 1, snap[0].Processed)
	assert.Equal(t, 1, snap[0].Failed)
	assert.Equal(t, 3, snap[0].New)
	assert.False(t, snap[0].IsRunning)
	assert.True(t, snap[1].IsRunning)

	s.PageDone("single", database.Outcome{Updated: 1}, false)
	p, ok := s.Get("single")
	require.True(t, ok)
	assert.Equal(t, 1, p.Updated)
}
