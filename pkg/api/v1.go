package routing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/iziplay/csw-harvester/pkg/csw"
	"github.com/iziplay/csw-harvester/pkg/database"
	"github.com/iziplay/csw-harvester/pkg/harvest"
)

// Gateway is the part of the database used by the API
type Gateway interface {
	InitMaster(ctx context.Context) error
	CreateInstance(ctx context.Context, inst *database.Instance) error
	GetInstance(ctx context.Context, identifier string) (*database.Instance, error)
	ResetTables(ctx context.Context, prefix string) error
	LastHarvest(ctx context.Context) (*database.Harvest, error)
	InstanceStats(ctx context.Context, prefix string) (*database.InstanceStats, error)
	SearchRecords(ctx context.Context, prefix, query string, limit, offset int) ([]database.RecordRow, int64, error)
	GetRecord(ctx context.Context, prefix, id string) (*database.RecordDetail, error)
}

// Harvester runs the queue of instances
type Harvester interface {
	Queue(ctx context.Context, inst *database.Instance) (int, error)
	Drain(ctx context.Context, inst *database.Instance) (harvest.Result, error)
	Claim(ctx context.Context, inst *database.Instance) (uint, bool, error)
	Continue(ctx context.Context, inst *database.Instance, id uint) (harvest.Result, error)
	ProcessAll(ctx context.Context) (*database.Harvest, error)
	Stats() *harvest.Stats
}

type Options struct {
	Gateway   Gateway
	Harvester Harvester
	JWTSecret string
	// Background is the parent context of processing started by requests,
	// it outlives the requests themselves
	Background context.Context
}

type PlainOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type MessageOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

type InstanceOutput struct {
	Body struct {
		Message  string             `json:"message"`
		Instance *database.Instance `json:"instance"`
	}
}

type QueueOutput struct {
	Body struct {
		Message string `json:"message"`
		Pages   int    `json:"pages"`
	}
}

type IdentifierInput struct {
	Identifier string `path:"identifier" doc:"Prefix (string) or ID (integer) of the CSW instance"`
}

type InstanceInitInput struct {
	URL           string `query:"url" required:"true" doc:"URL of the instance, everything before ?REQUEST=..."`
	Prefix        string `query:"prefix" doc:"Prefix of the instance tables, generated when empty"`
	Version       string `query:"version" default:"2.0.2" doc:"CSW version"`
	Limit         int    `query:"limit" default:"10" minimum:"1" maximum:"1000" doc:"Page size"`
	Type          string `query:"type" default:"get" doc:"Request method: get or post"`
	LongName      string `query:"longName" doc:"Descriptive name"`
	Note          string `query:"note" doc:"Administrative note"`
	Active        bool   `query:"active" default:"true" doc:"Harvest the instance with /process/all"`
	SpecialParams string `query:"specialParams" doc:"Parameters appended to GET query URLs"`
	RateLimit     int    `query:"rateLimit" minimum:"0" doc:"Parallel page requests, 0 for the default"`
}

type HarvestStatsOutput struct {
	Body struct {
		IsRunning bool               `json:"isRunning"`
		Last      *database.Harvest  `json:"last"`
		Instances []harvest.Progress `json:"instances"`
	}
}

type InstanceStatsOutput struct {
	Body struct {
		Stats    *database.InstanceStats `json:"stats"`
		Progress *harvest.Progress       `json:"progress,omitempty"`
	}
}

type SearchInput struct {
	IdentifierInput
	Query  string `query:"q" doc:"Filter by title or abstract (case-insensitive)"`
	Limit  int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Maximum number of results"`
	Offset int    `query:"offset" default:"0" minimum:"0" doc:"Offset for pagination"`
}

type SearchOutput struct {
	Body struct {
		Total   int64                `json:"total"`
		Results []database.RecordRow `json:"results"`
	}
}

type RecordInput struct {
	IdentifierInput
	ID string `path:"id" doc:"Record file identifier"`
}

type RecordOutput struct {
	Body *database.RecordDetail
}

func message(msg string) *MessageOutput {
	resp := &MessageOutput{}
	resp.Body.Message = msg
	return resp
}

// failure maps gateway errors to HTTP errors
func failure(msg string, err error) error {
	switch {
	case errors.Is(err, database.ErrInstanceNotFound):
		return huma.Error404NotFound("Instance not found.")
	case errors.Is(err, database.ErrRecordNotFound):
		return huma.Error404NotFound("Record not found.")
	case errors.Is(err, database.ErrInstanceExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, database.ErrInvalidPrefix):
		return huma.Error422UnprocessableEntity(err.Error())
	}
	slog.Error(msg, "error", err)
	return huma.Error500InternalServerError(msg, err)
}

func Setup(api huma.API, opts Options) {
	if opts.Background == nil {
		opts.Background = context.Background()
	}
	gw, h := opts.Gateway, opts.Harvester

	api.UseMiddleware(authMiddleware(api, opts.JWTSecret))

	huma.Register(api, huma.Operation{
		OperationID: "HealthCheck",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Check if the API is running",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*PlainOutput, error) {
		return &PlainOutput{
			ContentType: "text/plain",
			Body:        []byte("OK"),
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "InitMaster",
		Method:      "GET",
		Path:        "/master/init",
		Summary:     "Initialize master tables",
		Description: "Create the PostGIS extension and the instance management tables",
		Tags:        []string{"Instances"},
		Security:    bearerAuth,
	}, func(ctx context.Context, input *struct{}) (*MessageOutput, error) {
		if err := gw.InitMaster(ctx); err != nil {
			return nil, failure("failed to initialize master tables", err)
		}
		return message("Init completed"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "InitInstance",
		Method:      "GET",
		Path:        "/instance/init",
		Summary:     "Register an instance",
		Description: "Register a CSW endpoint and create its tables",
		Tags:        []string{"Instances"},
		Security:    bearerAuth,
	}, func(ctx context.Context, input *InstanceInitInput) (*InstanceOutput, error) {
		inst := instanceFromInput(input)
		if err := gw.CreateInstance(ctx, inst); err != nil {
			return nil, failure("failed to create instance", err)
		}
		resp := &InstanceOutput{}
		resp.Body.Message = "Init completed"
		resp.Body.Instance = inst
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ResetInstance",
		Method:      "GET",
		Path:        "/instance/reset/{identifier}",
		Summary:     "Reset an instance",
		Description: "Delete all harvested records of an instance",
		Tags:        []string{"Instances"},
		Security:    bearerAuth,
	}, func(ctx context.Context, input *IdentifierInput) (*MessageOutput, error) {
		inst, err := gw.GetInstance(ctx, input.Identifier)
		if err != nil {
			return nil, failure("failed to get instance", err)
		}
		if err := gw.ResetTables(ctx, inst.Prefix); err != nil {
			return nil, failure("failed to reset instance", err)
		}
		return message("Reset completed"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ProcessInstance",
		Method:      "GET",
		Path:        "/process/instance/{identifier}",
		Summary:     "Harvest an instance",
		Description: "List the pages of an instance into its queue, then process the queue in the background",
		Tags:        []string{"Processing"},
		Security:    bearerAuth,
	}, func(ctx context.Context, input *IdentifierInput) (*QueueOutput, error) {
		inst, err := gw.GetInstance(ctx, input.Identifier)
		if err != nil {
			return nil, failure("failed to get instance", err)
		}
		pages, err := h.Queue(ctx, inst)
		if err != nil {
			return nil, failure("failed to create queue", err)
		}

		go func() {
			if _, err := h.Drain(opts.Background, inst); err != nil {
				slog.Error("Queue processing failed", "prefix", inst.Prefix, "error", err)
			}
		}()

		resp := &QueueOutput{}
		resp.Body.Message = "Queue created"
		resp.Body.Pages = pages
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ProcessPackage",
		Method:      "GET",
		Path:        "/process/package/{identifier}",
		Summary:     "Process the next page",
		Description: "Claim the next queued page of an instance and keep processing the queue in the background",
		Tags:        []string{"Processing"},
		Security:    bearerAuth,
	}, func(ctx context.Context, input *IdentifierInput) (*MessageOutput, error) {
		inst, err := gw.GetInstance(ctx, input.Identifier)
		if err != nil {
			return nil, failure("failed to get instance", err)
		}
		id, ok, err := h.Claim(ctx, inst)
		if err != nil {
			return nil, failure("failed to claim package", err)
		}
		if !ok {
			return message("Nothing to process"), nil
		}

		go func() {
			if _, err := h.Continue(opts.Background, inst, id); err != nil {
				slog.Error("Package processing failed", "prefix", inst.Prefix, "id", id, "error", err)
			}
		}()
		return message("Initiated package processing"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ProcessAll",
		Method:      "GET",
		Path:        "/process/all",
		Summary:     "Harvest all instances",
		Description: "Harvest every active instance in the background",
		Tags:        []string{"Processing"},
		Security:    bearerAuth,
	}, func(ctx context.Context, input *struct{}) (*MessageOutput, error) {
		go func() {
			if _, err := h.ProcessAll(opts.Background); err != nil {
				slog.Error("Harvest failed", "error", err)
			}
		}()
		return message("Processing initiated"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "GetHarvestStatistics",
		Method:      "GET",
		Path:        "/v1/statistics/harvest",
		Summary:     "Get harvest statistics",
		Description: "Get the last logged harvest and the progress of running ones",
		Tags:        []string{"Statistics"},
	}, func(ctx context.Context, input *struct{}) (*HarvestStatsOutput, error) {
		last, err := gw.LastHarvest(ctx)
		if err != nil {
			return nil, failure("failed to get last harvest", err)
		}
		resp := &HarvestStatsOutput{}
		resp.Body.IsRunning = h.Stats().IsRunning()
		resp.Body.Last = last
		resp.Body.Instances = h.Stats().Snapshot()
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "GetInstanceStatistics",
		Method:      "GET",
		Path:        "/v1/instances/{identifier}/statistics",
		Summary:     "Get instance statistics",
		Description: "Get record, keyword, contact and queue counts of an instance",
		Tags:        []string{"Statistics"},
	}, func(ctx context.Context, input *IdentifierInput) (*InstanceStatsOutput, error) {
		inst, err := gw.GetInstance(ctx, input.Identifier)
		if err != nil {
			return nil, failure("failed to get instance", err)
		}
		stats, err := gw.InstanceStats(ctx, inst.Prefix)
		if err != nil {
			return nil, failure("failed to compute statistics", err)
		}
		resp := &InstanceStatsOutput{}
		resp.Body.Stats = stats
		if p, ok := h.Stats().Get(inst.Prefix); ok {
			resp.Body.Progress = &p
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "SearchRecords",
		Method:      "GET",
		Path:        "/v1/instances/{identifier}/records",
		Summary:     "Search records",
		Description: "Search the harvested records of an instance by title or abstract",
		Tags:        []string{"Records"},
	}, func(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
		inst, err := gw.GetInstance(ctx, input.Identifier)
		if err != nil {
			return nil, failure("failed to get instance", err)
		}
		records, total, err := gw.SearchRecords(ctx, inst.Prefix, input.Query, input.Limit, input.Offset)
		if err != nil {
			return nil, failure("failed to search records", err)
		}
		resp := &SearchOutput{}
		resp.Body.Total = total
		resp.Body.Results = records
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "GetRecord",
		Method:      "GET",
		Path:        "/v1/instances/{identifier}/records/{id}",
		Summary:     "Get a record",
		Description: "Get a harvested record with its dates, resources, keywords, contacts and constraints",
		Tags:        []string{"Records"},
	}, func(ctx context.Context, input *RecordInput) (*RecordOutput, error) {
		inst, err := gw.GetInstance(ctx, input.Identifier)
		if err != nil {
			return nil, failure("failed to get instance", err)
		}
		record, err := gw.GetRecord(ctx, inst.Prefix, input.ID)
		if err != nil {
			return nil, failure("failed to get record", err)
		}
		return &RecordOutput{Body: record}, nil
	})
}

func instanceFromInput(input *InstanceInitInput) *database.Instance {
	inst := &database.Instance{
		URL:       input.URL,
		PageLimit: input.Limit,
		Version:   input.Version,
		Type:      string(csw.MethodGet),
		Prefix:    input.Prefix,
		LongName:  input.LongName,
		Active:    input.Active,
	}
	if input.Type == string(csw.MethodPost) {
		inst.Type = string(csw.MethodPost)
	}
	if inst.Version == "" {
		inst.Version = csw.DefaultVersion
	}
	if inst.Prefix == "" {
		inst.Prefix = database.NewPrefix()
	}
	if input.Note != "" {
		inst.Note = &input.Note
	}
	if input.SpecialParams != "" {
		inst.SpecialParams = &input.SpecialParams
	}
	if input.RateLimit > 0 {
		inst.RateLimit = &input.RateLimit
	}
	return inst
}
