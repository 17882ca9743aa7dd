package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"alwaysattend/internal/stats"
)

var (
	statsTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statsLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	statsOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statsWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statsFailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statsBoxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

func newStatsCmd() *cobra.Command {
	var exportPath string
	var clear bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show submission statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := stats.NewManager(cfg.State.StatsPath())

			if clear {
				if err := m.Clear(); err != nil {
					return err
				}
				log.Info("statistics cleared")
				return nil
			}
			if exportPath != "" {
				if err := m.Export(exportPath); err != nil {
					return err
				}
				log.Infof("statistics exported to %s", exportPath)
				return nil
			}

			fmt.Println(renderSummary(m.Summary()))
			return nil
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "", "write raw stats JSON to this path")
	cmd.Flags().BoolVar(&clear, "clear", false, "reset all statistics")
	return cmd
}

func renderSummary(sum stats.Summary) string {
	var b strings.Builder

	b.WriteString(statsTitleStyle.Render("Attendance submissions"))
	b.WriteString("\n\n")
	b.WriteString(statsLabelStyle.Render("submitted") + statsOKStyle.Render(fmt.Sprintf("%d", sum.Totals.Submitted)) + "\n")
	b.WriteString(statsLabelStyle.Render("skipped") + statsWarnStyle.Render(fmt.Sprintf("%d", sum.Totals.Skipped)) + "\n")
	b.WriteString(statsLabelStyle.Render("failed") + statsFailStyle.Render(fmt.Sprintf("%d", sum.Totals.Failed)) + "\n")

	if len(sum.Courses) > 0 {
		b.WriteString("\n" + statsTitleStyle.Render("Per course") + "\n")
		for _, course := range sum.Courses {
			t := sum.PerCourse[course]
			b.WriteString(fmt.Sprintf("  %-10s %d submitted, %d skipped, %d failed\n",
				course, t.Submitted, t.Skipped, t.Failed))
		}
	}

	if len(sum.Recent) > 0 {
		b.WriteString("\n" + statsTitleStyle.Render("Recent errors") + "\n")
		shown := sum.Recent
		if len(shown) > 5 {
			shown = shown[len(shown)-5:]
		}
		for _, entry := range shown {
			b.WriteString(fmt.Sprintf("  %s  %-20s %s\n",
				entry.At.Format("2006-01-02 15:04"), entry.Slot, entry.Error))
		}
	}

	if !sum.UpdatedAt.IsZero() {
		b.WriteString("\n" + statsLabelStyle.Render("updated") + sum.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	return statsBoxStyle.Render(b.String())
}
