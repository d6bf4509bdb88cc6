package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"devhub/internal/diff"
)

func newDiffCmd() *cobra.Command {
	var (
		contextLines int
		unified      bool
	)

	cmd := &cobra.Command{
		Use:   "diff <old-file> <new-file>",
		Short: "Diff two files the way run file changes are rendered",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldContent, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			newContent, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}

			if unified {
				return printUnifiedDiff(string(oldContent), string(newContent), args[1])
			}
			printCollapsedDiff(string(oldContent), string(newContent), contextLines)
			return nil
		},
	}

	cmd.Flags().IntVar(&contextLines, "context", diff.DefaultContextLines, "unchanged lines kept visible around each change")
	cmd.Flags().BoolVar(&unified, "unified", false, "emit unified diff format instead of the collapsed view")
	return cmd
}

func printUnifiedDiff(oldContent, newContent, filename string) error {
	gen := diff.NewGenerator(!color.NoColor)
	result, err := gen.GenerateUnified(oldContent, newContent, filename)
	if err != nil {
		return err
	}
	if result.UnifiedDiff == "" {
		fmt.Println("no differences")
		return nil
	}
	fmt.Print(result.UnifiedDiff)
	fmt.Println(result.FormatSummary())
	return nil
}

func printCollapsedDiff(oldContent, newContent string, contextLines int) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	lines := diff.Lines(oldContent, newContent)

	changed := false
	for _, line := range lines {
		if line.Kind != diff.Same {
			changed = true
			break
		}
	}
	if !changed {
		fmt.Println("no differences")
		return
	}

	for _, row := range diff.Collapse(lines, contextLines) {
		if row.IsPlaceholder() {
			fmt.Println(gray(fmt.Sprintf("... %d unchanged lines hidden", row.Hidden)))
			continue
		}
		switch row.Line.Kind {
		case diff.Added:
			fmt.Println(green(fmt.Sprintf("%4d + %s", row.Line.NewLineNumber, row.Line.Text)))
		case diff.Removed:
			fmt.Println(red("     - " + row.Line.Text))
		default:
			fmt.Printf("%4d   %s\n", row.Line.NewLineNumber, row.Line.Text)
		}
	}

	added, removed := diff.Stats(lines)
	fmt.Println(gray(fmt.Sprintf("+%d -%d", added, removed)))
}
