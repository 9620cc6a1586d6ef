package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appgrading "github.com/bryanwahyu/essay-coach-gateway/internal/application/grading"
	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
	"github.com/bryanwahyu/essay-coach-gateway/internal/infra/engine/agent"
	"github.com/bryanwahyu/essay-coach-gateway/internal/logger"
	"github.com/bryanwahyu/essay-coach-gateway/internal/middleware"
)

type globalOptions struct {
	baseURL    string
	token      string
	authScheme string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "essayctl",
		Short:         "Submit essays for AI grading and follow their workflow runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:8000/api/v2", "grading backend API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("AGENT_API_TOKEN"), "API token (env AGENT_API_TOKEN)")
	root.PersistentFlags().StringVar(&opts.authScheme, "auth-scheme", "Token", "Authorization scheme sent with the token")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newAnalyzeCmd(opts), newStatusCmd(opts))
	return root
}

func (o *globalOptions) client() *agent.Client {
	return agent.NewClient(agent.Options{
		BaseURL:    o.baseURL,
		Token:      o.token,
		AuthScheme: o.authScheme,
	})
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var (
		cmd      appgrading.SubmitEssayCommand
		file     string
		rubricID int
	)
	c := &cobra.Command{
		Use:   "analyze",
		Short: "Submit an essay and wait for its analysis",
		RunE: func(c *cobra.Command, _ []string) error {
			if file != "" {
				if cmd.EssayContent != "" {
					return errors.New("use either --content or --file, not both")
				}
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read essay: %w", err)
				}
				cmd.EssayContent = string(b)
			}
			if rubricID > 0 {
				cmd.RubricID = &rubricID
			}
			cmd.EssayQuestion = middleware.SanitizeString(cmd.EssayQuestion)
			if err := middleware.ValidateStruct(cmd); err != nil {
				return err
			}

			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			log := logger.New(level, c.ErrOrStderr())
			svc := &appgrading.Service{
				Engine:  opts.client(),
				Adapter: domain.NewAdapter(),
				Log:     logger.Component(log, "essayctl"),
			}

			stderr := c.ErrOrStderr()
			run, out, err := svc.Analyze(c.Context(), cmd, func(r domain.WorkflowRun) {
				fmt.Fprintf(stderr, "\r%-10s %5.1f%%  %s", r.Status, r.Progress, r.ID)
			})
			fmt.Fprintln(stderr)
			if err != nil {
				if errors.Is(err, context.Canceled) && run != nil {
					return fmt.Errorf("stopped watching run %s (it keeps running on the engine)", run.ID)
				}
				return err
			}
			return printJSON(c.OutOrStdout(), out)
		},
	}
	f := c.Flags()
	f.StringVarP(&cmd.EssayQuestion, "question", "q", "", "essay question (required)")
	f.StringVarP(&cmd.EssayContent, "content", "c", "", "essay text")
	f.StringVarP(&file, "file", "f", "", "read essay text from file")
	f.IntVar(&rubricID, "rubric", 0, "rubric id")
	f.StringVar(&cmd.Language, "language", domain.DefaultLanguage, "essay language")
	f.StringVar(&cmd.UserID, "user", "", "user id")
	_ = c.MarkFlagRequired("question")
	return c
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status RUN_ID",
		Short: "Query the engine status of a workflow run once",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := middleware.ValidateRunID(args[0]); err != nil {
				return err
			}
			resp, err := opts.client().Status(c.Context(), domain.RunID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), resp)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
