package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devhub/internal/logging"
	"devhub/internal/render"
	"devhub/internal/runstream"
)

var runBold = color.New(color.Bold).SprintFunc()

func newRunCmd() *cobra.Command {
	var (
		serverURL    string
		taskID       string
		projectID    string
		instructions string
		contextLines int
		showDiffs    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an agent run and stream its steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadRuntimeConfig()
			if serverURL == "" {
				serverURL = cfg.ServerURL
			}
			if contextLines < 0 {
				contextLines = cfg.ContextLines
			}
			if taskID == "" || projectID == "" {
				return errors.New("--task and --project are required")
			}

			return streamRun(cmd.Context(), serverURL, runstream.RunRequest{
				TaskID:       taskID,
				ProjectID:    projectID,
				Instructions: instructions,
			}, contextLines, showDiffs)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "run stream endpoint URL (default from config)")
	cmd.Flags().StringVar(&taskID, "task", "", "task identifier")
	cmd.Flags().StringVar(&projectID, "project", "", "project identifier")
	cmd.Flags().StringVar(&instructions, "instructions", "", "optional free-text instructions for the run")
	cmd.Flags().IntVar(&contextLines, "context", -1, "unchanged lines kept visible around each change")
	cmd.Flags().BoolVar(&showDiffs, "diffs", true, "expand file diffs once the run settles")
	return cmd
}

func streamRun(parent context.Context, serverURL string, req runstream.RunRequest, contextLines int, showDiffs bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewComponentLogger("CLI")
	renderer := render.NewRenderer(
		render.WithContextLines(contextLines),
		render.WithLogger(logger),
	)
	client := runstream.NewClient(serverURL, runstream.WithLogger(logger))

	run := client.StartRun(ctx, req,
		runstream.WithOnStep(func(step runstream.Step) {
			renderer.RenderStep(os.Stdout, step, false)
		}),
	)

	if err := run.Wait(ctx); err != nil {
		// Interrupted: abort the transport and wait for the handle to
		// wind down before reporting.
		run.Cancel()
		_ = run.Wait(context.Background())
	}

	if run.Canceled() {
		fmt.Println("run canceled")
		return nil
	}

	if showDiffs {
		for _, write := range run.FileWrites() {
			run.Expand(write.Path)
			fmt.Printf("\n%s\n", runBold(write.Path))
			fmt.Print(renderer.FileDiff(write))
		}
	}

	if pr, ok := run.PRCreated(); ok {
		fmt.Printf("\n%s %s (%s)\n", runBold(fmt.Sprintf("PR #%d:", pr.Number)), pr.URL, pr.BranchName)
	}

	if !run.Succeeded() {
		steps := run.Steps()
		if len(steps) > 0 {
			if errStep, ok := steps[len(steps)-1].(*runstream.ErrorStep); ok {
				return fmt.Errorf("run failed: %s", errStep.Content)
			}
		}
	}
	return nil
}
