package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/conduit/pkg/client"
	"github.com/orneryd/conduit/pkg/navigator"
	"github.com/orneryd/conduit/pkg/segment"
)

// errStudentNavigation is shown when a student tries to move without labelling.
var errStudentNavigation = errors.New("students advance by labelling the current segment")

// annotator is the terminal annotation loop over one campaign.
type annotator struct {
	client  *client.Client
	me      *segment.Annotator
	classes []segment.Class
	session *navigator.Session
	out     io.Writer
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Client.Annotator == "" {
		return fmt.Errorf("annotator username required (--user or CONDUIT_ANNOTATOR)")
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	c := client.New(&client.Config{BaseURL: cfg.Client.BaseURL, Timeout: cfg.Client.Timeout})

	navConfig := navigator.Config{
		ChunkSize:    cfg.Navigator.ChunkSize,
		CacheFactor:  cfg.Navigator.CacheFactor,
		FetchTimeout: cfg.Navigator.FetchTimeout,
	}
	if verbose {
		navConfig.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newAnnotator(ctx, c, cfg.Client.Annotator, navConfig, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return a.run(ctx, cmd.InOrStdin())
}

// newAnnotator loads the annotator's campaign and positions a session where
// they left off.
func newAnnotator(ctx context.Context, c *client.Client, username string, navConfig navigator.Config, out io.Writer) (*annotator, error) {
	me, err := c.Annotator(ctx, username)
	if err != nil {
		return nil, err
	}
	if me.CurrentCampaign == nil || len(me.CurrentCampaign.Segments) == 0 {
		return nil, fmt.Errorf("%s has no current campaign", username)
	}
	classes, err := c.Classes(ctx)
	if err != nil {
		return nil, err
	}

	cache := navigator.NewCache(navigator.NewIndex(me.CurrentCampaign.Segments), c, navConfig)
	return &annotator{
		client:  c,
		me:      me,
		classes: classes,
		session: navigator.NewSession(cache, navigator.StartPosition(me.CurrentCampaign)),
		out:     out,
	}, nil
}

func (a *annotator) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(a.out, "✅ Connected to %s as %s (%s)\n", a.client.BaseURL(), a.me.Username, a.me.Designation)
	fmt.Fprintf(a.out, "   Campaign %q: %d segments\n", a.me.CurrentCampaign.Name, a.session.Len())
	if !a.me.CanNavigateFreely() {
		fmt.Fprintln(a.out, "   Students advance by labelling: use l <LABEL> [comment]")
	}
	fmt.Fprintln(a.out, "Type 'q' or Ctrl+D to quit")
	fmt.Fprintln(a.out)

	if seg, err := a.session.Next(ctx); err != nil {
		fmt.Fprintf(a.out, "❌ Error: %v\n", err)
	} else {
		a.show(seg)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(a.out, "conduit> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := a.exec(ctx, line); quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(a.out, "👋 Goodbye!")
	return nil
}

// exec runs one REPL command and reports whether the loop should stop.
func (a *annotator) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	command := strings.ToLower(fields[0])

	var (
		seg *segment.Segment
		err error
	)
	switch command {
	case "q", "quit", "exit":
		return true
	case "n", "next":
		if !a.me.CanNavigateFreely() {
			err = errStudentNavigation
			break
		}
		seg, err = a.session.Next(ctx)
	case "p", "prev", "previous":
		if !a.me.CanNavigateFreely() {
			err = errStudentNavigation
			break
		}
		seg, err = a.session.Previous(ctx)
	case "g", "go":
		if !a.me.CanNavigateFreely() {
			err = errStudentNavigation
			break
		}
		if len(fields) < 2 {
			err = fmt.Errorf("usage: g <position>")
			break
		}
		pos, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			err = fmt.Errorf("position must be a number: %q", fields[1])
			break
		}
		seg, err = a.session.Seek(ctx, pos-1)
	case "l", "label":
		seg, err = a.label(ctx, fields)
	case "s", "show":
		if seg = a.session.Current(); seg == nil {
			err = navigator.ErrNoFurtherRecord
		}
	case "c", "classes":
		for _, c := range a.classes {
			fmt.Fprintf(a.out, "  %-6s %s\n", c.Value, c.Description)
		}
		return false
	default:
		err = fmt.Errorf("unknown command %q (n, p, g, l, s, c, q)", command)
	}

	switch {
	case errors.Is(err, navigator.ErrNoFurtherRecord):
		fmt.Fprintln(a.out, "⏹  No further segment")
	case errors.Is(err, navigator.ErrOutOfRange):
		fmt.Fprintf(a.out, "❌ Position must be between 1 and %d\n", a.session.Len())
	case err != nil:
		fmt.Fprintf(a.out, "❌ Error: %v\n", err)
	case seg != nil:
		a.show(seg)
	}
	return false
}

// label saves an annotation on the current segment, replaces the cached copy
// and advances.
func (a *annotator) label(ctx context.Context, fields []string) (*segment.Segment, error) {
	current := a.session.Current()
	if current == nil {
		return nil, navigator.ErrNoFurtherRecord
	}
	if len(fields) < 2 {
		return nil, fmt.Errorf("usage: l <LABEL> [comment]")
	}
	value := strings.ToUpper(fields[1])
	if _, ok := segment.LookupClass(a.classes, value); !ok {
		return nil, fmt.Errorf("unknown label %q (c lists classes)", fields[1])
	}
	ann := segment.Annotation{Label: value, Comments: strings.Join(fields[2:], " ")}
	if err := ann.Validate(); err != nil {
		return nil, err
	}
	res, err := a.client.SaveAnnotation(ctx, current.ID, a.me.Username, ann)
	if err != nil {
		return nil, err
	}
	a.session.Replace(current.WithAnnotation(a.me.Username, res.Annotation))
	fmt.Fprintf(a.out, "💾 Saved %s on %s\n", res.Annotation.Label, current.ID)

	if !a.session.HasNext() {
		fmt.Fprintln(a.out, "🎉 Campaign complete")
		return nil, nil
	}
	return a.session.Next(ctx)
}

func (a *annotator) show(seg *segment.Segment) {
	fmt.Fprintf(a.out, "[%d/%d] segment %s", a.session.Position()+1, a.session.Len(), seg.ID)
	if seg.CaseID != "" {
		fmt.Fprintf(a.out, " (case %s, samples %d-%d)", seg.CaseID, seg.StartIdx, seg.StopIdx)
	}
	fmt.Fprintln(a.out)
	for _, ts := range seg.Summarize() {
		fmt.Fprintf(a.out, "  %-4s %5d samples %5.1fs  min %6.2f  max %6.2f  mean %6.2f mV\n",
			ts.Name, ts.Samples, ts.Seconds, ts.Min, ts.Max, ts.Mean)
	}
	if ann, ok := seg.Annotation(a.me.Username); ok {
		fmt.Fprintf(a.out, "  label: %s (confidence %.2f)", ann.Label, ann.Confidence)
		if ann.Comments != "" {
			fmt.Fprintf(a.out, " %q", ann.Comments)
		}
		fmt.Fprintln(a.out)
	} else {
		fmt.Fprintln(a.out, "  label: none")
	}
}
