package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfcapture/render"
	"github.com/wudi/pdfcapture/workflow"
)

var errInvalidAnchors = errors.New("workflow store has invalid anchors")

func anchorsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchors",
		Short: "Inspect the anchors stored for workflow steps",
	}
	cmd.AddCommand(anchorsListCmd(), anchorsValidateCmd(a))
	return cmd
}

func anchorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <store.yaml>",
		Short: "List workflows, steps and anchors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := workflow.OpenStore(args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WORKFLOW\tSTEP\tKIND\tLABEL\tPAGE\tX (mm)\tY (mm)")
			for _, wf := range store.List() {
				for _, step := range wf.Steps {
					for _, an := range step.Anchors {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\t%.2f\n", wf.Name, step.Name, an.Kind, an.Label, an.Page, an.X, an.Y)
					}
				}
			}
			return tw.Flush()
		},
	}
}

func anchorsValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <store.yaml>",
		Short: "Check every anchor against its step's document",
		Long: `validate opens the document of every stored workflow step and checks that
each anchor names an existing page and lies within that page.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := workflow.OpenStore(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, wf := range store.List() {
				for _, step := range wf.Steps {
					name := wf.Name + " / " + step.Name
					if step.Document == "" {
						a.slogger.Warn("Step has no document, skipping", "workflow", wf.Name, "step", step.Name)
						continue
					}
					pages, err := a.pageSizes(cmd, step.Document)
					if err == nil {
						err = workflow.Validate(step, pages)
					}
					if err != nil {
						failed++
						fmt.Fprintf(out, "FAIL %s: %v\n", name, err)
						continue
					}
					fmt.Fprintf(out, "ok   %s (%d anchors)\n", name, len(step.Anchors))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d steps failed", errInvalidAnchors, failed)
			}
			return nil
		},
	}
}

func (a *app) pageSizes(cmd *cobra.Command, path string) ([]render.PageSize, error) {
	tool, renderer, err := a.openDocument(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	defer tool.Close()
	pages := make([]render.PageSize, 0, tool.State().TotalPages)
	for n := 1; n <= tool.State().TotalPages; n++ {
		size, err := renderer.PageSize(n)
		if err != nil {
			return nil, err
		}
		pages = append(pages, size)
	}
	return pages, nil
}
