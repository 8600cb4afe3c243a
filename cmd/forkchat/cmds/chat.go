package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/forkchat/pkg/branches"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"
)

const chatHelp = `Commands:
  /branch <id> [parent]  create a branch (optionally forked from parent) and switch to it
  /switch <id>           switch to an existing branch
  /history               print the current branch's history
  /list [glob]           list branches
  /help                  show this help
  /quit                  leave
Anything else is sent to the current branch.`

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively, forking branches as you go",
		RunE: func(cmd *cobra.Command, args []string) error {
			branch, _ := cmd.Flags().GetString("branch")
			return runChat(cmd.Context(), viper.GetViper(), branch, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().String("branch", "main", "Name of the initial branch")
	return cmd
}

type chatSession struct {
	app     *App
	current string
	out     io.Writer
	render  bool
}

func runChat(ctx context.Context, v *viper.Viper, initial string, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := NewApp(v)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

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

		s := &chatSession{
			app:    app,
			out:    out,
			render: out == os.Stdout && isatty.IsTerminal(os.Stdout.Fd()),
		}
		if _, err := app.Manager.CreateBranch(ctx, initial, ""); err != nil {
			return err
		}
		s.current = initial
		_, _ = fmt.Fprintln(out, "Type /help for commands.")

		lines := newLineReader(in)
		ui := &input.UI{Writer: out, Reader: lines}
		for {
			line, err := ui.Ask(fmt.Sprintf("[%s]", s.current), &input.Options{
				HideOrder: true,
				Loop:      false,
			})
			if err != nil {
				if isEndOfInput(err) {
					return nil
				}
				return err
			}
			quit, err := s.handle(ctx, strings.TrimSpace(line))
			if err != nil {
				_, _ = fmt.Fprintf(out, "error: %v\n", err)
			}
			// go-input reports end of input as an empty answer
			if quit || lines.Done() {
				return nil
			}
		}
	})

	err = eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// isEndOfInput reports a Ctrl-C or a closed stdin. go-input formats read errors
// without wrapping them.
func isEndOfInput(err error) bool {
	return errors.Is(err, input.ErrInterrupted) ||
		errors.Is(err, io.EOF) ||
		strings.HasSuffix(err.Error(), io.EOF.Error())
}

// lineReader hands out at most one line per Read. go-input buffers its reader, so this
// keeps its buffer from running ahead of the line being answered, which makes Done
// exact: once it reports true, every line has been returned.
type lineReader struct {
	r    *bufio.Reader
	done bool
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

func (l *lineReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, err := l.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			if errors.Is(err, io.EOF) {
				l.done = true
			}
			return 0, err
		}
		p[n] = b
		n++
		if b == '\n' {
			break
		}
	}
	return n, nil
}

// Done reports whether the underlying reader is exhausted.
func (l *lineReader) Done() bool {
	return l.done
}

func (s *chatSession) handle(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		reply, err := s.app.Manager.SendMessage(ctx, s.current, line)
		if err != nil {
			return false, err
		}
		s.print(reply)
		return false, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		_, _ = fmt.Fprintln(s.out, chatHelp)

	case "/branch":
		if len(fields) < 2 || len(fields) > 3 {
			return false, errors.New("usage: /branch <id> [parent]")
		}
		parent := ""
		if len(fields) == 3 {
			parent = fields[2]
		}
		res, err := s.app.Manager.CreateBranch(ctx, fields[1], parent)
		if err != nil {
			return false, err
		}
		s.current = res.BranchID

	case "/switch":
		if len(fields) != 2 {
			return false, errors.New("usage: /switch <id>")
		}
		if _, err := s.app.Manager.GetBranch(fields[1]); err != nil {
			return false, err
		}
		s.current = fields[1]

	case "/history":
		history, err := s.app.Manager.GetHistory(ctx, s.current)
		if err != nil {
			return false, err
		}
		for _, m := range history {
			_, _ = fmt.Fprintln(s.out, m.String())
		}

	case "/list":
		pattern := ""
		if len(fields) > 1 {
			pattern = fields[1]
		}
		list, err := s.app.Manager.ListBranches(pattern)
		if err != nil {
			return false, err
		}
		printDescriptors(s.out, list, s.current)

	default:
		return false, errors.Errorf("unknown command %s, try /help", fields[0])
	}
	return false, nil
}

func (s *chatSession) print(reply string) {
	if s.render {
		styled, err := glamour.Render(reply, "dark")
		if err == nil {
			_, _ = fmt.Fprint(s.out, styled)
			return
		}
	}
	_, _ = fmt.Fprintln(s.out, reply)
}

func printDescriptors(w io.Writer, list []branches.Descriptor, current string) {
	for _, d := range list {
		marker := " "
		if d.ID == current {
			marker = "*"
		}
		parent := ""
		if d.ParentID != "" {
			parent = " (from " + d.ParentID + ")"
		}
		_, _ = fmt.Fprintf(w, "%s %s%s: %d messages, %s\n", marker, d.ID, parent, d.MessageCount, d.State)
	}
}
