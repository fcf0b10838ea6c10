package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/lower"
	"abilower/internal/tablefile"
	"abilower/internal/trace"
	"abilower/internal/ui"
)

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout [flags] FILE.toml...",
		Short: "Print struct, union and signature layouts of table files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLayout,
	}
	cmd.Flags().String("target", "", "override the table target (x86_64|i686)")
	cmd.Flags().String("policy", "", "override the layout policy (aligned|packed)")
	cmd.Flags().Int("max-scalars", 0, "override the by-scalars threshold")
	cmd.Flags().String("format", "pretty", "output format (pretty|json)")
	cmd.Flags().Int("jobs", 0, "max parallel loads (0 = GOMAXPROCS)")
	cmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	return cmd
}

type layoutFlags struct {
	target     string
	policy     string
	maxScalars int
	format     string
	jobs       int
	ui         uiMode
}

func readLayoutFlags(cmd *cobra.Command) (layoutFlags, error) {
	var lf layoutFlags
	var err error
	if lf.target, err = cmd.Flags().GetString("target"); err != nil {
		return lf, fmt.Errorf("failed to get target flag: %w", err)
	}
	if lf.policy, err = cmd.Flags().GetString("policy"); err != nil {
		return lf, fmt.Errorf("failed to get policy flag: %w", err)
	}
	if lf.maxScalars, err = cmd.Flags().GetInt("max-scalars"); err != nil {
		return lf, fmt.Errorf("failed to get max-scalars flag: %w", err)
	}
	if lf.format, err = cmd.Flags().GetString("format"); err != nil {
		return lf, fmt.Errorf("failed to get format flag: %w", err)
	}
	if lf.jobs, err = cmd.Flags().GetInt("jobs"); err != nil {
		return lf, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return lf, fmt.Errorf("failed to get ui flag: %w", err)
	}
	if lf.ui, err = readUIMode(uiValue); err != nil {
		return lf, err
	}
	switch lf.format {
	case "pretty", "json":
	default:
		return lf, fmt.Errorf("unsupported format %q (must be pretty or json)", lf.format)
	}
	if cmd.Flags().Changed("max-scalars") && lf.maxScalars < 1 {
		return lf, fmt.Errorf("--max-scalars must be at least 1")
	}
	return lf, nil
}

// apply overrides the options decoded from a file.
func (lf layoutFlags) apply(opts layout.Options) (layout.Options, error) {
	if lf.target != "" {
		t, err := layout.TargetByName(lf.target)
		if err != nil {
			return opts, err
		}
		opts.Target = t
	}
	if lf.policy != "" {
		p, err := layout.ParsePolicy(lf.policy)
		if err != nil {
			return opts, err
		}
		opts.Policy = p
	}
	if lf.maxScalars > 0 {
		opts.MaxScalars = lf.maxScalars
	}
	return opts, nil
}

func runLayout(cmd *cobra.Command, args []string) error {
	lf, err := readLayoutFlags(cmd)
	if err != nil {
		return err
	}
	tracer := trace.FromContext(cmd.Context())
	span := trace.Begin(tracer, trace.ScopeDriver, "layout", trace.Parent(cmd.Context()))
	defer span.End("")

	useUI := lf.format == "pretty" && !quiet(cmd) && len(args) > 1 && shouldUseTUI(lf.ui)
	var results []tablefile.Result
	if useUI {
		results, err = loadTablesWithUI(cmd.Context(), args, lf.jobs)
	} else {
		results, err = tablefile.LoadAll(cmd.Context(), args, lf.jobs, nil)
	}
	if err != nil {
		return err
	}

	reports := make([]tableReport, 0, len(results))
	var failed []error
	for _, res := range results {
		if res.Err == nil && lf.overrides() {
			res.Table, res.Err = rebuild(res.Description, lf)
		}
		if res.Err != nil {
			failed = append(failed, res.Err)
			continue
		}
		reports = append(reports, describeTable(res.Path, res.Table))
	}

	out := cmd.OutOrStdout()
	if lf.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for i := range reports {
			if i > 0 {
				fmt.Fprintln(out)
			}
			renderTablePretty(out, &reports[i])
		}
	}
	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	return nil
}

func (lf layoutFlags) overrides() bool {
	return lf.target != "" || lf.policy != "" || lf.maxScalars > 0
}

func rebuild(d *tablefile.Description, lf layoutFlags) (*layout.Table, error) {
	opts, err := lf.apply(d.Options)
	if err != nil {
		return nil, err
	}
	d.Options = opts
	return d.Build()
}

type loadOutcome struct {
	results []tablefile.Result
	err     error
}

func loadTablesWithUI(ctx context.Context, files []string, jobs int) ([]tablefile.Result, error) {
	events := make(chan tablefile.Event, 256)
	outcomeCh := make(chan loadOutcome, 1)
	go func() {
		res, err := tablefile.LoadAll(ctx, files, jobs, tablefile.ChannelSink{Ch: events})
		outcomeCh <- loadOutcome{results: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel("loading tables", files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}

type tableReport struct {
	Path       string         `json:"path"`
	Target     string         `json:"target"`
	Policy     string         `json:"policy"`
	MaxScalars int            `json:"max_scalars"`
	Structs    []structReport `json:"structs,omitempty"`
	Union      *unionShape    `json:"union_layout,omitempty"`
	Unions     []unionReport  `json:"unions,omitempty"`
	Funcs      []funcReport   `json:"funcs,omitempty"`
}

type structReport struct {
	Name    string        `json:"name"`
	Size    int           `json:"size"`
	Align   int           `json:"align"`
	Mode    string        `json:"mode"`
	Scalars []string      `json:"scalars"`
	Fields  []fieldReport `json:"fields"`
}

type fieldReport struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Offset int    `json:"offset"`
}

type unionShape struct {
	Size          int    `json:"size"`
	Align         int    `json:"align"`
	Tag           string `json:"tag"`
	Payload       string `json:"payload"`
	PayloadOffset int    `json:"payload_offset"`
}

type unionReport struct {
	Name     string          `json:"name"`
	Variants []variantReport `json:"variants"`
}

type variantReport struct {
	Tag      int      `json:"tag"`
	Name     string   `json:"name"`
	Fields   []string `json:"fields,omitempty"`
	Encoding string   `json:"encoding"`
}

type funcReport struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	Signature string `json:"signature"`
}

func describeTable(path string, t *layout.Table) tableReport {
	opts := t.Options()
	r := tableReport{
		Path:       path,
		Target:     opts.Target.Triple,
		Policy:     opts.Policy.String(),
		MaxScalars: opts.MaxScalars,
	}
	for _, name := range t.StructNames() {
		def, _ := t.Struct(name)
		sl, err := t.Layout(name)
		if err != nil {
			continue
		}
		sr := structReport{Name: name, Size: sl.Size, Align: sl.Align, Mode: sl.Mode.String()}
		for _, s := range sl.Scalars {
			sr.Scalars = append(sr.Scalars, s.String())
		}
		for i, f := range def.Fields {
			sr.Fields = append(sr.Fields, fieldReport{Name: f.Name, Type: f.Type.String(), Offset: sl.FieldOffsets[i]})
		}
		r.Structs = append(r.Structs, sr)
	}
	if names := t.UnionNames(); len(names) > 0 {
		if ul, err := t.UnionLayout(names[0]); err == nil {
			r.Union = &unionShape{
				Size: ul.Size, Align: ul.Align,
				Tag: ul.TagType.String(), Payload: ul.PayloadType.String(),
				PayloadOffset: ul.PayloadOffset,
			}
		}
	}
	for _, name := range t.UnionNames() {
		def, _ := t.Union(name)
		ur := unionReport{Name: name}
		for tag, v := range def.Variants {
			vr := variantReport{Tag: tag, Name: v.Name}
			var scalars []ir.Type
			for _, ft := range v.Fields {
				vr.Fields = append(vr.Fields, ft.String())
				if st, err := layout.ScalarType(ft); err == nil {
					scalars = append(scalars, st)
				}
			}
			vr.Encoding = lower.PayloadEncodingOf(t.PointerType(), scalars).String()
			ur.Variants = append(ur.Variants, vr)
		}
		r.Unions = append(r.Unions, ur)
	}
	for _, name := range t.FuncNames() {
		fl, err := t.Func(name)
		if err != nil {
			continue
		}
		params := make([]string, len(fl.Def.Params))
		for i, p := range fl.Def.Params {
			params[i] = p.String()
		}
		r.Funcs = append(r.Funcs, funcReport{
			Name:      name,
			Source:    fmt.Sprintf("(%s) -> %s", strings.Join(params, ", "), fl.Def.Result),
			Signature: fl.Signature.String(),
		})
	}
	return r
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	sectionStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func renderTablePretty(out io.Writer, r *tableReport) {
	fmt.Fprintln(out, headerStyle.Render(r.Path))
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("target %s, %s, max scalars %d", r.Target, r.Policy, r.MaxScalars)))

	if len(r.Structs) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, sectionStyle.Render("structs"))
		rows := [][]string{{"name", "size", "align", "mode", "scalars"}}
		for _, s := range r.Structs {
			rows = append(rows, []string{s.Name, fmt.Sprint(s.Size), fmt.Sprint(s.Align), s.Mode, strings.Join(s.Scalars, " ")})
			for _, f := range s.Fields {
				rows = append(rows, []string{"  ." + f.Name, fmt.Sprintf("@%d", f.Offset), "", f.Type, ""})
			}
		}
		writeColumns(out, rows)
	}
	if len(r.Unions) > 0 {
		fmt.Fprintln(out)
		u := r.Union
		fmt.Fprintln(out, sectionStyle.Render("unions"), dimStyle.Render(fmt.Sprintf("size %d, align %d, %s tag, %s payload at %d", u.Size, u.Align, u.Tag, u.Payload, u.PayloadOffset)))
		rows := [][]string{{"name", "tag", "fields", "payload"}}
		for _, un := range r.Unions {
			rows = append(rows, []string{un.Name, "", "", ""})
			for _, v := range un.Variants {
				rows = append(rows, []string{"  ::" + v.Name, fmt.Sprint(v.Tag), strings.Join(v.Fields, ", "), v.Encoding})
			}
		}
		writeColumns(out, rows)
	}
	if len(r.Funcs) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, sectionStyle.Render("functions"))
		rows := [][]string{{"name", "source", "lowered"}}
		for _, f := range r.Funcs {
			rows = append(rows, []string{f.Name, f.Source, f.Signature})
		}
		writeColumns(out, rows)
	}
}

// writeColumns pads every cell to its column width in terminal cells. The
// first row is a header.
func writeColumns(out io.Writer, rows [][]string) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for r, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(row)-1 {
				b.WriteString(cell)
			} else {
				b.WriteString(runewidth.FillRight(cell, widths[i]))
			}
		}
		line := strings.TrimRight(b.String(), " ")
		if r == 0 {
			line = dimStyle.Render(line)
		}
		fmt.Fprintln(out, line)
	}
}
