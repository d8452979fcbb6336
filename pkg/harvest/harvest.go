package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iziplay/csw-harvester/pkg/csw"
	"github.com/iziplay/csw-harvester/pkg/database"
	"github.com/iziplay/csw-harvester/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Store is the part of the database gateway used while harvesting
type Store interface {
	GetInstance(ctx context.Context, identifier string) (*database.Instance, error)
	ActiveInstances(ctx context.Context) ([]database.Instance, error)
	InsertQueue(ctx context.Context, prefix string, pages []csw.PageRequest) error
	NextPackage(ctx context.Context, prefix string) (uint, bool, error)
	QueueItem(ctx context.Context, prefix string, id uint) (csw.PageRequest, error)
	RemoveFromQueue(ctx context.Context, prefix string, id uint) error
	SetQueueFailed(ctx context.Context, prefix string, id uint) error
	ProcessRecords(ctx context.Context, prefix string, records []csw.Record) (database.Outcome, error)
	LastHarvest(ctx context.Context) (*database.Harvest, error)
	SaveHarvest(ctx context.Context, h *database.Harvest) error
}

// Catalogue is a CSW client
type Catalogue interface {
	ListPages(ctx context.Context, src csw.Source) ([]csw.PageRequest, error)
	FetchPage(ctx context.Context, req csw.PageRequest) ([]csw.Record, error)
}

// Result sums up the pages handled for one or more instances
type Result struct {
	Pages  int `json:"pages"`
	Failed int `json:"failed"`
	database.Outcome
}

func (r *Result) Add(other Result) {
	r.Pages += other.Pages
	r.Failed += other.Failed
	r.Outcome.Add(other.Outcome)
}

type Options struct {
	// Workers scales the number of package chains run per instance
	Workers int
}

// Harvester fills the page queue of instances and works it off
type Harvester struct {
	store   Store
	client  Catalogue
	workers int
	stats   *Stats
}

func New(store Store, client Catalogue, opts Options) *Harvester {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Harvester{
		store:   store,
		client:  client,
		workers: opts.Workers,
		stats:   NewStats(),
	}
}

// Stats returns the live progress of the harvester
func (h *Harvester) Stats() *Stats {
	return h.stats
}

// Instance resolves an instance by numeric id or prefix
func (h *Harvester) Instance(ctx context.Context, identifier string) (*database.Instance, error) {
	return h.store.GetInstance(ctx, identifier)
}

// Parallelism returns how many package chains run at once for an instance
func (h *Harvester) Parallelism(inst *database.Instance) int {
	if inst.RateLimit != nil && *inst.RateLimit > 0 {
		return *inst.RateLimit
	}
	return 3 * h.workers
}

// SourceOf converts a stored instance into a CSW source
func SourceOf(inst *database.Instance) csw.Source {
	src := csw.Source{
		URL:     inst.URL,
		Limit:   inst.PageLimit,
		Version: inst.Version,
		Method:  csw.Method(inst.Type),
	}
	if inst.SpecialParams != nil {
		src.SpecialParams = *inst.SpecialParams
	}
	return src
}

// ProcessInstance queues every page of an instance and processes the queue
func (h *Harvester) ProcessInstance(ctx context.Context, identifier string) (Result, error) {
	inst, err := h.store.GetInstance(ctx, identifier)
	if err != nil {
		return Result{}, err
	}
	if _, err := h.Queue(ctx, inst); err != nil {
		return Result{}, err
	}
	return h.Drain(ctx, inst)
}

// Queue lists the pages of an instance and replaces its queue with them
func (h *Harvester) Queue(ctx context.Context, inst *database.Instance) (int, error) {
	pages, err := h.client.ListPages(ctx, SourceOf(inst))
	if err != nil {
		return 0, fmt.Errorf("failed to list pages of %s: %w", inst.Prefix, err)
	}
	if err := h.store.InsertQueue(ctx, inst.Prefix, pages); err != nil {
		return 0, err
	}

	h.stats.StartInstance(inst.Prefix, len(pages))
	slog.Info("Queue created", "prefix", inst.Prefix, "pages", len(pages))
	return len(pages), nil
}

// Drain runs package chains in parallel until the queue holds no new row
func (h *Harvester) Drain(ctx context.Context, inst *database.Instance) (Result, error) {
	var (
		mu    sync.Mutex
		total Result
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < h.Parallelism(inst); i++ {
		g.Go(func() error {
			res, err := h.chain(gctx, inst)
			mu.Lock()
			total.Add(res)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()

	h.stats.EndInstance(inst.Prefix)
	slog.Info("Instance processed",
		"prefix", inst.Prefix,
		"pages", total.Pages,
		"failed", total.Failed,
		"new", total.New,
		"updated", total.Updated,
		"ignored", total.Ignored,
	)
	return total, err
}

// Claim reserves the next new queue row of an instance
func (h *Harvester) Claim(ctx context.Context, inst *database.Instance) (uint, bool, error) {
	id, ok, err := h.store.NextPackage(ctx, inst.Prefix)
	if err != nil {
		return 0, false, err
	}
	if ok {
		metrics.QueueClaims.WithLabelValues(inst.Prefix).Inc()
	}
	return id, ok, nil
}

// Continue processes an already claimed row, then keeps claiming rows until
// the queue is empty
func (h *Harvester) Continue(ctx context.Context, inst *database.Instance, id uint) (Result, error) {
	res, err := h.ProcessPackage(ctx, inst, id)
	if err != nil {
		return res, err
	}
	next, err := h.chain(ctx, inst)
	res.Add(next)
	return res, err
}

func (h *Harvester) chain(ctx context.Context, inst *database.Instance) (Result, error) {
	var total Result
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		id, ok, err := h.Claim(ctx, inst)
		if err != nil {
			return total, err
		}
		if !ok {
			return total, nil
		}

		res, err := h.ProcessPackage(ctx, inst, id)
		total.Add(res)
		if err != nil {
			return total, err
		}
	}
}

// ProcessPackage fetches and stores the page of a claimed queue row. A page
// that cannot be fetched or stored marks the row failed and is not retried;
// only errors of the queue itself are returned.
func (h *Harvester) ProcessPackage(ctx context.Context, inst *database.Instance, id uint) (Result, error) {
	start := time.Now()

	out, err := h.fetchAndStore(ctx, inst.Prefix, id)
	metrics.PageDuration.WithLabelValues(inst.Prefix).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		slog.Warn("Package failed", "prefix", inst.Prefix, "id", id, "error", err)
		metrics.PagesFailed.WithLabelValues(inst.Prefix).Inc()
		h.stats.PageDone(inst.Prefix, out, true)
		if err := h.store.SetQueueFailed(ctx, inst.Prefix, id); err != nil {
			return Result{Failed: 1, Outcome: out}, err
		}
		return Result{Failed: 1, Outcome: out}, nil
	}

	metrics.PagesFetched.WithLabelValues(inst.Prefix).Inc()
	metrics.Records.WithLabelValues(inst.Prefix, "new").Add(float64(out.New))
	metrics.Records.WithLabelValues(inst.Prefix, "updated").Add(float64(out.Updated))
	metrics.Records.WithLabelValues(inst.Prefix, "ignored").Add(float64(out.Ignored))
	h.stats.PageDone(inst.Prefix, out, false)

	slog.Debug("Package processed", "prefix", inst.Prefix, "id", id, "new", out.New, "updated", out.Updated, "ignored", out.Ignored)

	if err := h.store.RemoveFromQueue(ctx, inst.Prefix, id); err != nil {
		return Result{Pages: 1, Outcome: out}, err
	}
	return Result{Pages: 1, Outcome: out}, nil
}

func (h *Harvester) fetchAndStore(ctx context.Context, prefix string, id uint) (database.Outcome, error) {
	req, err := h.store.QueueItem(ctx, prefix, id)
	if err != nil {
		return database.Outcome{}, err
	}

	records, err := h.client.FetchPage(ctx, req)
	if err != nil {
		return database.Outcome{}, fmt.Errorf("failed to fetch page %d: %w", req.Options.Start, err)
	}

	return h.store.ProcessRecords(ctx, prefix, records)
}

// ProcessAll harvests every active instance one after the other and logs the
// run. An instance that fails does not stop the others.
func (h *Harvester) ProcessAll(ctx context.Context) (*database.Harvest, error) {
	instances, err := h.store.ActiveInstances(ctx)
	if err != nil {
		return nil, err
	}

	run := &database.Harvest{
		Date:      time.Now(),
		Instances: len(instances),
		Complete:  true,
	}

	var total Result
	for i := range instances {
		inst := &instances[i]
		if _, err := h.Queue(ctx, inst); err != nil {
			slog.Error("Failed to queue instance", "prefix", inst.Prefix, "error", err)
			run.Complete = false
			continue
		}

		res, err := h.Drain(ctx, inst)
		total.Add(res)
		if err != nil {
			slog.Error("Failed to process instance", "prefix", inst.Prefix, "error", err)
			run.Complete = false
		}
		if ctx.Err() != nil {
			break
		}
	}

	run.Pages = total.Pages
	run.Failed = total.Failed
	run.New = total.New
	run.Updated = total.Updated
	run.Ignored = total.Ignored
	if ctx.Err() != nil {
		run.Complete = false
	}

	if err := h.store.SaveHarvest(context.WithoutCancel(ctx), run); err != nil {
		return run, err
	}
	return run, nil
}
