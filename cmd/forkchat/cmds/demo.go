package cmds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/forkchat/pkg/branches"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

type demoStep struct {
	branch  string
	parent  string
	create  bool
	message string
}

// demoScript forks a space conversation towards Venus and starts an unrelated
// machine learning branch next to it.
var demoScript = []demoStep{
	{branch: "branch-a", create: true},
	{branch: "branch-a", message: "Let's talk about space exploration."},
	{branch: "branch-a", message: "What are the main challenges?"},
	{branch: "branch-b", parent: "branch-a", create: true},
	{branch: "branch-b", message: "What about exploring Venus instead?"},
	{branch: "branch-c", create: true},
	{branch: "branch-c", message: "Tell me about machine learning."},
}

func NewDemoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted branching conversation and print every history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			app, err := NewApp(viper.GetViper())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(ctx)
			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return app.RunRouter(ctx)
			})
			eg.Go(func() error {
				defer cancel()
				select {
				case <-app.Router.Running():
				case <-ctx.Done():
					return nil
				}
				return runDemo(ctx, app.Manager, os.Stdout)
			})
			return eg.Wait()
		},
	}
}

func runDemo(ctx context.Context, m *branches.Manager, w io.Writer) error {
	for _, step := range demoScript {
		if step.create {
			if _, err := m.CreateBranch(ctx, step.branch, step.parent); err != nil {
				return err
			}
			if step.parent != "" {
				_, _ = fmt.Fprintf(w, "created %s from %s\n", step.branch, step.parent)
			} else {
				_, _ = fmt.Fprintf(w, "created %s\n", step.branch)
			}
			continue
		}

		reply, err := m.SendMessage(ctx, step.branch, step.message)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "[%s] human: %s\n[%s] assistant: %s\n", step.branch, step.message, step.branch, reply)
	}

	list, err := m.ListBranches("")
	if err != nil {
		return err
	}
	for _, d := range list {
		history, err := m.GetHistory(ctx, d.ID)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "\n== %s (%d messages)\n", d.ID, len(history))
		for _, msg := range history {
			_, _ = fmt.Fprintln(w, msg.String())
		}
	}
	return nil
}
