package keystone

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aretw0/keystone/internal/runtime"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/report"
)

// Runner walks one survey session over line-based IO.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Renderer ContentRenderer
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// ErrQuit is returned by Run when the user leaves before submitting.
var ErrQuit = errors.New("survey abandoned")

// NewRunner creates a new Runner. Input and Output must be set before Run.
func NewRunner(in io.Reader, out io.Writer) *Runner {
	return &Runner{Input: in, Output: out}
}

// Run starts a session on engine and drives it until the report is unlocked,
// the input ends, or the user types "quit".
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lineReader := bufio.NewReader(r.Input)

	sess, err := engine.StartSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = engine.EndSession(sess.ID()) }()

	lastShown := -1
	lastItem := -1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// 1. Render Phase (View)
		v := sess.View()
		if v.StepIndex != lastShown || (v.Kind == domain.StepQuestion && sess.State().ItemIndex != lastItem) {
			r.print(FormatView(v, sess.State().ItemIndex))
			lastShown = v.StepIndex
			lastItem = sess.State().ItemIndex
		}

		if v.Kind == domain.StepResults && v.Report != nil {
			r.print(report.Markdown(*v.Report))
			return nil
		}

		// 2. Wait Phase (Input)
		fmt.Fprint(r.Output, prompt(v))
		text, err := lineReader.ReadString('\n')
		if err != nil && (text == "" || !errors.Is(err, io.EOF)) {
			if errors.Is(err, io.EOF) {
				return ErrQuit
			}
			return fmt.Errorf("input error: %w", err)
		}
		input := strings.TrimSpace(text)

		if input == "exit" || input == "quit" {
			fmt.Fprintln(r.Output, "Bye!")
			return ErrQuit
		}

		// 3. Navigate Phase (Controller)
		r.apply(ctx, sess, v, input)
	}
}

func (r *Runner) apply(ctx context.Context, sess *Session, v View, input string) {
	if input == "b" || input == "back" {
		sess.Retreat()
		return
	}

	switch v.Kind {
	case domain.StepQuestion:
		item := v.Questions[sess.State().ItemIndex]
		switch {
		case input == "s" || input == "skip":
			sess.Skip(item.ID)
		case input == "":
			if item.Answer != "" {
				sess.Next()
			}
		default:
			n, err := strconv.Atoi(input)
			if err != nil || n < 1 || n > len(item.Options) {
				fmt.Fprintf(r.Output, "Please pick a number between 1 and %d.\n", len(item.Options))
				return
			}
			sess.Answer(item.ID, item.Options[n-1].Value)
			sess.Next()
		}
	case domain.StepResults:
		if err := sess.SubmitEmail(ctx, input); err != nil {
			msg := sess.State().LastError
			var e *domain.Error
			if errors.As(err, &e) && e.Kind == domain.KindValidation {
				msg = e.Message
			}
			if msg == "" {
				msg = err.Error()
			}
			fmt.Fprintln(r.Output, msg)
		}
	default:
		sess.Advance()
	}
}

func (r *Runner) print(md string) {
	output := md
	if r.Renderer != nil {
		if rendered, err := r.Renderer(md); err == nil {
			output = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(output))
}

func prompt(v View) string {
	switch v.Kind {
	case domain.StepQuestion:
		return "[1-9] answer, s skip, b back > "
	case domain.StepResults:
		return "email > "
	}
	return "[enter] continue > "
}

// FormatView renders a view as markdown. item selects the active question of a multi-item step.
func FormatView(v runtime.View, item int) string {
	var b strings.Builder
	if v.Progress != nil {
		fmt.Fprintf(&b, "_Step %d of %d (%.0f%%)_\n\n", v.StepIndex+1, v.StepCount, *v.Progress*100)
	}
	if v.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", v.Title)
	}
	if v.Body != "" {
		fmt.Fprintf(&b, "%s\n\n", v.Body)
	}
	for _, h := range v.Highlights {
		fmt.Fprintf(&b, "- %s\n", h)
	}
	if len(v.Highlights) > 0 {
		b.WriteString("\n")
	}
	if v.Transition != "" {
		fmt.Fprintf(&b, "_%s_\n\n", v.Transition)
	}
	if item >= 0 && item < len(v.Questions) {
		q := v.Questions[item]
		fmt.Fprintf(&b, "## %s\n\n", q.Prompt)
		for i, opt := range q.Options {
			mark := " "
			if opt.Selected {
				mark = "x"
			}
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, mark, opt.Value)
		}
	}
	if v.Message != "" {
		fmt.Fprintf(&b, "%s\n", v.Message)
	}
	return b.String()
}
