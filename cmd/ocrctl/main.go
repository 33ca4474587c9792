// Command ocrctl runs the OCR pipeline outside Cloud Functions: importing
// documents, running OCR synchronously, serving the trigger and sweeping
// failed runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Lllllllleong/ocrworker/internal/config"
	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/services"
)

var opts = defaultOptions

// commands are the subcommand handlers. A handler stores its error in *err so
// that main exits only after the handler's deferred cleanup has run.
type commands struct {
	ctx context.Context
	err *error
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	var cmdErr error
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	flags := defineFlags(&opts, commands{ctx: ctx, err: &cmdErr})
	subcmd, err := flags.Parse(os.Args)
	if err != nil {
		stop()
		log.Fatalln(err)
	}
	if subcmd == nil {
		stop()
		flags.PrintUsage(os.Stdout)
		os.Exit(1)
	}
	subcmd.Handler()
	stop()
	if cmdErr != nil {
		log.Fatalln(cmdErr)
	}
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", opts.EnvFile, err)
	}
	return config.Load(opts.ConfigPath)
}

func (c commands) orchestrator() (*services.Orchestrator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	deps, err := services.NewDeps(c.ctx, cfg)
	if err != nil {
		return nil, err
	}
	return services.NewOrchestrator(deps), nil
}

func (c commands) importFile() { *c.err = c.importDocument() }

func (c commands) importDocument() error {
	o, err := c.orchestrator()
	if err != nil {
		return err
	}
	defer o.Deps().Close()

	v, err := o.ImportFile(c.ctx, opts.File, opts.Title, opts.Lang)
	if err != nil {
		return err
	}
	fmt.Printf("document %s version %d (%s), %d pages\n", v.DocumentID, v.Number, v.ID, v.PageCount)
	return nil
}

func (c commands) runOCR() { *c.err = c.ocrDocument() }

func (c commands) ocrDocument() error {
	o, err := c.orchestrator()
	if err != nil {
		return err
	}
	defer o.Deps().Close()

	v, err := o.Run(c.ctx, opts.DocumentID, opts.Lang)
	if err != nil {
		return err
	}
	fmt.Printf("document %s version %d (%s), %d pages\n", v.DocumentID, v.Number, v.ID, v.PageCount)
	return nil
}

func (c commands) submit() { *c.err = c.submitWorkflow() }

func (c commands) submitWorkflow() error {
	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", opts.EnvFile, err)
	}
	if opts.ConfigPath != "" {
		os.Setenv("OCR_CONFIG", opts.ConfigPath)
	}
	s, err := services.NewCloudSubmitterFromEnv(c.ctx)
	if err != nil {
		return err
	}
	res, err := s.Submit(c.ctx, &models.SubmitOCRRequest{DocumentID: opts.DocumentID, Lang: opts.Lang})
	if err != nil {
		return err
	}
	fmt.Println(res.ExecutionName)
	return nil
}

func (c commands) sweep() { *c.err = c.sweepFailed() }

func (c commands) sweepFailed() error {
	o, err := c.orchestrator()
	if err != nil {
		return err
	}
	defer o.Deps().Close()

	n, err := o.SweepFailed(c.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("swept %d failed runs\n", n)
	return nil
}
