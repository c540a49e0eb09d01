package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"excel2web/internal/config"
	"excel2web/internal/importer"
	"excel2web/internal/logging"
	"excel2web/internal/model"
	"excel2web/internal/report"
	"excel2web/internal/server"
	"excel2web/internal/store"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "excel2web",
		Usage: "建设项目 Excel 工作簿导入与计划-实际报表服务",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.toml", Usage: "配置文件路径"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			importCommand(),
			reportCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

// env 每个子命令共享的配置、日志与数据库
type env struct {
	cfg   *config.AppConfig
	log   *logrus.Logger
	store *store.Store
}

func setup(ctx context.Context, c *cli.Command) (*env, error) {
	cfg, info, err := config.LoadConfigWithInfo(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDirs(cfg); err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log)
	if !info.FileFound {
		logger.WithField("path", info.Path).Debug("config file not found, using defaults")
	}

	s, err := store.New(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: logger, store: s}, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "启动 HTTP 服务与后台导入任务池",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "监听端口（仅当配置文件未显式指定 port 时生效）"},
			&cli.BoolFlag{Name: "dev", Usage: "开发模式"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, info, err := config.LoadConfigWithInfo(c.String("config"))
			if err != nil {
				return err
			}
			if raw := c.String("port"); raw != "" && !info.PortSpecified {
				port, err := strconv.Atoi(raw)
				if err != nil {
					return fmt.Errorf("invalid --port %q: %w", raw, err)
				}
				cfg.Server.Port = port
			}
			if c.Bool("dev") {
				cfg.Server.DevMode = true
			}
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.AppConfig) error {
	if err := config.EnsureDirs(cfg); err != nil {
		return err
	}
	logger := logging.New(cfg.Log)
	s, err := store.New(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := server.NewServer(cfg, s, logger)
	errCh := srv.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "执行数据库迁移",
		Action: func(ctx context.Context, c *cli.Command) error {
			e, err := setup(ctx, c)
			if err != nil {
				return err
			}
			defer e.store.Close()
			e.log.WithField("path", e.cfg.Database.Path).Info("database migrated")
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "同步导入一个工作簿",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Required: true, Usage: "项目编码（不存在时创建）"},
			&cli.StringFlag{Name: "file", Required: true, Usage: "xlsx 文件路径"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			e, err := setup(ctx, c)
			if err != nil {
				return err
			}
			defer e.store.Close()

			project, err := e.store.EnsureProject(ctx, c.String("project"), c.String("project"))
			if err != nil {
				return err
			}

			path := c.String("file")
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			stored, err := importer.SaveUpload(e.cfg.Storage.UploadDir, project.ID, path, f)
			f.Close()
			if err != nil {
				return err
			}

			run, _, err := e.store.GetOrCreateRun(ctx, project.ID, path, stored.Hash)
			if err != nil {
				return err
			}
			coord := importer.NewCoordinator(e.store, e.cfg.ETL, e.log, nil)
			worker := importer.NewWorker(e.store, coord, e.cfg, e.log, nil)
			job := model.Job{ImportRunID: run.ID, ProjectID: project.ID, FilePath: stored.Path}
			if err := worker.Execute(ctx, job); err != nil {
				return err
			}

			run, err = e.store.GetRun(ctx, run.ID)
			if err != nil {
				return err
			}
			errs, err := e.store.ListImportErrors(ctx, run.ID)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"run": run, "errors": errs})
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "命令行报表",
		Commands: []*cli.Command{
			{
				Name:  "kpi",
				Usage: "区间 KPI",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "project", Required: true, Usage: "项目编码"},
					&cli.StringFlag{Name: "from", Required: true, Usage: "开始日期 YYYY-MM-DD"},
					&cli.StringFlag{Name: "to", Required: true, Usage: "结束日期 YYYY-MM-DD"},
					&cli.StringFlag{Name: "wbs", Usage: "WBS 路径前缀"},
					&cli.StringFlag{Name: "run", Usage: "导入运行 ID（默认最近一次完成的运行）"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := setup(ctx, c)
					if err != nil {
						return err
					}
					defer e.store.Close()

					project, err := e.store.GetProjectByCode(ctx, c.String("project"))
					if err != nil {
						return err
					}
					q := report.Query{ProjectID: project.ID, WBS: c.String("wbs")}
					if q.From, err = time.Parse(time.DateOnly, c.String("from")); err != nil {
						return fmt.Errorf("invalid --from: %w", err)
					}
					if q.To, err = time.Parse(time.DateOnly, c.String("to")); err != nil {
						return fmt.Errorf("invalid --to: %w", err)
					}
					if raw := c.String("run"); raw != "" {
						id, err := strconv.ParseInt(raw, 10, 64)
						if err != nil {
							return fmt.Errorf("invalid --run %q: %w", raw, err)
						}
						q.RunID = &id
					}

					kpi, err := report.New(e.store).KPI(ctx, q)
					if err != nil {
						return err
					}
					return printJSON(kpi)
				},
			},
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
