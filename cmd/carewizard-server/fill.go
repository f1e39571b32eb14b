package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/ehr/carewizard/internal/domain/careplan"
	"github.com/ehr/carewizard/internal/platform/formstate"
	"github.com/ehr/carewizard/internal/platform/wizard"
)

var errFillAborted = errors.New("fill aborted")

// prompter asks the operator for field values.
type prompter interface {
	Input(msg, def string, validate func(string) error) (string, error)
	Confirm(msg string, def bool) (bool, error)
	Select(msg string, options []string, def string) (string, error)
	MultiSelect(msg string, options, defaults []string) ([]string, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Input(msg, def string, validate func(string) error) (string, error) {
	var out string
	opts := []survey.AskOpt{survey.WithValidator(survey.Required)}
	if validate != nil {
		opts = append(opts, survey.WithValidator(func(ans interface{}) error {
			s, _ := ans.(string)
			return validate(s)
		}))
	}
	err := survey.AskOne(&survey.Input{Message: msg, Default: def}, &out, opts...)
	return out, translateSurveyErr(err)
}

func (surveyPrompter) Confirm(msg string, def bool) (bool, error) {
	var out bool
	err := survey.AskOne(&survey.Confirm{Message: msg, Default: def}, &out)
	return out, translateSurveyErr(err)
}

func (surveyPrompter) Select(msg string, options []string, def string) (string, error) {
	var out string
	prompt := &survey.Select{Message: msg, Options: options}
	if indexOf(options, def) >= 0 {
		prompt.Default = def
	}
	err := survey.AskOne(prompt, &out)
	return out, translateSurveyErr(err)
}

func (surveyPrompter) MultiSelect(msg string, options, defaults []string) ([]string, error) {
	var out []string
	prompt := &survey.MultiSelect{Message: msg, Options: options, PageSize: len(options)}
	if len(defaults) > 0 {
		prompt.Default = defaults
	}
	err := survey.AskOne(prompt, &out)
	return out, translateSurveyErr(err)
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errFillAborted
	}
	return err
}

func indexOf(options []string, value string) int {
	for i, option := range options {
		if option == value {
			return i
		}
	}
	return -1
}

var careTypeOptions = []string{"Single Handed Call", "Double Handed Call", "Specialcare"}

func fillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fill <client-id>",
		Short: "Complete a client's care plan wizard in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, _ := cmd.Flags().GetString("lang")
			clientName, _ := cmd.Flags().GetString("client-name")
			actor, _ := cmd.Flags().GetString("actor")

			return withApp(cmd, func(ctx context.Context, a *app, tenant string) error {
				f := &filler{
					svc:    a.svc,
					tenant: tenant,
					client: args[0],
					labels: a.svc.Catalog().Labels.For(lang),
					meta:   careplan.Meta{ClientName: clientName, Actor: actor},
					ask:    surveyPrompter{},
					out:    cmd.OutOrStdout(),
				}
				receipt, err := f.run(ctx)
				if err != nil {
					if errors.Is(err, errFillAborted) {
						fmt.Fprintln(cmd.OutOrStdout(), "Stopped. Your answers are saved as a draft.")
						return nil
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Care plan submitted: %s\n", receipt.ID)
				return nil
			})
		},
	}
	cmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	cmd.Flags().String("lang", careplan.DefaultLanguage, "Label language")
	cmd.Flags().String("client-name", "", "Client name used in the plan title")
	cmd.Flags().String("actor", "cli", "Recorded as the plan author")
	return cmd
}

// filler walks a wizard session step by step, prompting for each required
// field of the current step and pressing Next until the plan is submitted.
type filler struct {
	svc    *careplan.Service
	tenant string
	client string
	labels wizard.Labeler
	meta   careplan.Meta
	ask    prompter
	out    io.Writer
}

func (f *filler) run(ctx context.Context) (*careplan.Receipt, error) {
	steps := f.svc.Catalog().Gate.Steps()
	for {
		st, err := f.svc.View(ctx, f.tenant, f.client)
		if err != nil {
			return nil, err
		}
		idx := 0
		for i, s := range steps {
			if s.Key == st.Step {
				idx = i
			}
		}
		step := steps[idx]
		fmt.Fprintf(f.out, "\n%s (%d/%d)\n", step.Label, idx+1, len(steps))

		cmds, err := f.promptStep(step, formstate.FieldMap(st.Fields))
		if err != nil {
			return nil, err
		}
		if len(cmds) > 0 {
			if _, err := f.svc.Mutate(ctx, f.tenant, f.client, cmds); err != nil {
				return nil, err
			}
		}

		res, err := f.svc.Advance(ctx, f.tenant, f.client, f.meta, f.labels)
		if err != nil {
			var normErr *careplan.NormalizationError
			if errors.As(err, &normErr) {
				for _, msg := range normErr.Messages() {
					fmt.Fprintln(f.out, msg)
				}
			}
			return nil, err
		}
		switch res.Outcome {
		case careplan.OutcomeBlocked:
			fmt.Fprintf(f.out, "Please complete: %s\n", strings.Join(res.Missing, ", "))
		case careplan.OutcomeSubmitted:
			return res.Receipt, nil
		}
	}
}

func (f *filler) label(name string) string {
	if l := f.labels.Label(name); l != "" {
		return l
	}
	return name
}

func (f *filler) promptStep(step wizard.Step, current formstate.FieldMap) ([]careplan.FieldCommand, error) {
	var cmds []careplan.FieldCommand
	for _, name := range step.Required {
		field, ok := careplan.Schema.Lookup(name)
		if !ok {
			continue
		}
		label := f.label(name)

		var (
			value any
			err   error
		)
		switch {
		case name == "care_type":
			var def string
			if l := current.List(name); len(l) > 0 {
				def = formstate.AsString(l[0])
			}
			var choice string
			choice, err = f.ask.Select(label, careTypeOptions, def)
			value = []any{choice}
		case field.Kind == formstate.KindBoolean:
			value, err = f.ask.Confirm(label, current.Bool(name))
		case field.Kind == formstate.KindSchedule:
			value, err = f.promptSchedule(label, current.Object(name))
		case field.Kind == formstate.KindArray:
			var raw string
			raw, err = f.ask.Input(label+" (comma separated)", strings.Join(current.Strings(name), ", "), nil)
			value = splitValues(raw)
		default:
			value, err = f.ask.Input(label, current.Str(name), nil)
		}
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, careplan.FieldCommand{Op: careplan.OpSet, Field: name, Value: value})
	}
	return cmds, nil
}

var clockPattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

func (f *filler) promptSchedule(label string, current map[string]any) (map[string]any, error) {
	var enabled []string
	for _, d := range careplan.Weekdays {
		if info, ok := current[d].(map[string]any); ok && formstate.Truthy(info["enabled"]) {
			enabled = append(enabled, d)
		}
	}
	days, err := f.ask.MultiSelect(label+": visit days", careplan.Weekdays, enabled)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(days))
	for _, d := range days {
		info, _ := current[d].(map[string]any)
		raw, err := f.ask.Input(d+" visits (HH:MM-HH:MM, comma separated)", formatSlots(info), validateSlots)
		if err != nil {
			return nil, err
		}
		out[d] = map[string]any{"enabled": true, "slots": parseSlots(d, raw)}
	}
	return out, nil
}

func validateSlots(raw string) error {
	for _, part := range strings.Split(raw, ",") {
		start, end, ok := strings.Cut(strings.TrimSpace(part), "-")
		if !ok || !clockPattern.MatchString(strings.TrimSpace(start)) || !clockPattern.MatchString(strings.TrimSpace(end)) {
			return fmt.Errorf("%q is not HH:MM-HH:MM", strings.TrimSpace(part))
		}
	}
	return nil
}

func parseSlots(day, raw string) []any {
	var slots []any
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		start, end, _ := strings.Cut(part, "-")
		slots = append(slots, map[string]any{
			"id":        fmt.Sprintf("%s-%d", day, i+1),
			"startTime": strings.TrimSpace(start),
			"endTime":   strings.TrimSpace(end),
		})
	}
	return slots
}

func formatSlots(info map[string]any) string {
	raw, _ := info["slots"].([]any)
	parts := make([]string, 0, len(raw))
	for _, r := range raw {
		slot, _ := r.(map[string]any)
		start, end := formstate.AsString(slot["startTime"]), formstate.AsString(slot["endTime"])
		if start == "" && end == "" {
			continue
		}
		parts = append(parts, start+"-"+end)
	}
	return strings.Join(parts, ", ")
}

func splitValues(raw string) []any {
	out := []any{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
