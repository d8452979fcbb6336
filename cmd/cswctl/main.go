package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/iziplay/csw-harvester/pkg/config"
	"github.com/iziplay/csw-harvester/pkg/csw"
	"github.com/iziplay/csw-harvester/pkg/database"
	"github.com/iziplay/csw-harvester/pkg/harvest"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "cswctl",
		Usage: "manage CSW instances and run harvests from the command line",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Usage: "override HARVEST_WORKERS"},
		},
		Commands: []*cli.Command{
			{
				Name:   "init-master",
				Usage:  "create the PostGIS extension and the master tables",
				Action: initMaster,
			},
			{
				Name:      "add-instance",
				Usage:     "register a CSW endpoint and create its tables",
				ArgsUsage: "URL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prefix", Usage: "table prefix, generated when empty"},
					&cli.StringFlag{Name: "version", Value: csw.DefaultVersion},
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "page size"},
					&cli.StringFlag{Name: "type", Value: string(csw.MethodGet), Usage: "get or post"},
					&cli.StringFlag{Name: "name", Usage: "descriptive name"},
					&cli.StringFlag{Name: "special-params", Usage: "parameters appended to GET query URLs"},
					&cli.IntFlag{Name: "rate-limit", Usage: "parallel page requests, 0 for the default"},
					&cli.BoolFlag{Name: "inactive", Usage: "exclude the instance from scheduled harvests"},
				},
				Action: addInstance,
			},
			{
				Name:      "reset",
				Usage:     "delete all harvested records of an instance",
				ArgsUsage: "IDENTIFIER",
				Action:    resetInstance,
			},
			{
				Name:      "harvest",
				Usage:     "harvest one instance, or all active instances without argument",
				ArgsUsage: "[IDENTIFIER]",
				Action:    runHarvest,
			},
			{
				Name:      "pages",
				Usage:     "list the GetRecords pages of a CSW endpoint without storing anything",
				ArgsUsage: "URL",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "page size"},
					&cli.StringFlag{Name: "type", Value: string(csw.MethodGet), Usage: "get or post"},
				},
				Action: listPages,
			},
			{
				Name:      "fetch",
				Usage:     "fetch one page of a CSW endpoint and print the mapped records as JSON",
				ArgsUsage: "URL",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "start", Value: 1},
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "page size"},
					&cli.StringFlag{Name: "type", Value: string(csw.MethodGet), Usage: "get or post"},
				},
				Action: fetchPage,
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if w := c.Int("workers"); w > 0 {
				cfg.Harvest.Workers = w
			}
			slog.SetDefault(cfg.Logger())
			c.App.Metadata = map[string]any{"config": cfg}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func configOf(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func open(c *cli.Context) (*database.Gateway, error) {
	return database.Open(configOf(c).Postgres)
}

func client(c *cli.Context) *csw.Client {
	return csw.NewClient(csw.ClientOptions{RequestsPerSecond: configOf(c).Harvest.RequestsPerSecond})
}

func source(c *cli.Context) (csw.Source, error) {
	if c.NArg() != 1 {
		return csw.Source{}, fmt.Errorf("expected a CSW URL")
	}
	return csw.Source{
		URL:     c.Args().First(),
		Limit:   c.Int("limit"),
		Version: csw.DefaultVersion,
		Method:  csw.Method(c.String("type")),
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initMaster(c *cli.Context) error {
	gw, err := open(c)
	if err != nil {
		return err
	}
	return gw.InitMaster(c.Context)
}

func addInstance(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected the instance URL")
	}

	inst := &database.Instance{
		URL:       c.Args().First(),
		PageLimit: c.Int("limit"),
		Version:   c.String("version"),
		Type:      string(csw.MethodGet),
		Prefix:    c.String("prefix"),
		LongName:  c.String("name"),
		Active:    !c.Bool("inactive"),
	}
	if c.String("type") == string(csw.MethodPost) {
		inst.Type = string(csw.MethodPost)
	}
	if inst.Prefix == "" {
		inst.Prefix = database.NewPrefix()
	}
	if p := c.String("special-params"); p != "" {
		inst.SpecialParams = &p
	}
	if r := c.Int("rate-limit"); r > 0 {
		inst.RateLimit = &r
	}

	gw, err := open(c)
	if err != nil {
		return err
	}
	if err := gw.CreateInstance(c.Context, inst); err != nil {
		return err
	}
	return printJSON(inst)
}

func resetInstance(c *cli.Context) error {
	gw, err := open(c)
	if err != nil {
		return err
	}
	inst, err := gw.GetInstance(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return gw.ResetTables(c.Context, inst.Prefix)
}

func runHarvest(c *cli.Context) error {
	gw, err := open(c)
	if err != nil {
		return err
	}
	if err := gw.ResetQueues(c.Context); err != nil {
		return err
	}

	h := harvest.New(gw, client(c), harvest.Options{Workers: configOf(c).Harvest.Workers})
	if c.NArg() == 0 {
		run, err := h.ProcessAll(c.Context)
		if err != nil {
			return err
		}
		return printJSON(run)
	}

	res, err := h.ProcessInstance(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(res)
}

func listPages(c *cli.Context) error {
	src, err := source(c)
	if err != nil {
		return err
	}
	pages, err := client(c).ListPages(c.Context, src)
	if err != nil {
		return err
	}
	return printJSON(pages)
}

func fetchPage(c *cli.Context) error {
	src, err := source(c)
	if err != nil {
		return err
	}
	req, err := src.PageRequest(c.Int("start"), src.Limit)
	if err != nil {
		return err
	}
	records, err := client(c).FetchPage(c.Context, req)
	if err != nil {
		return err
	}
	return printJSON(records)
}
