package report

import (
	"fmt"
	"io"
)

// PrintSummary writes the end-of-session report shown in the terminal.
func PrintSummary(w io.Writer, s SummaryDoc) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "========== SESSION SUMMARY ==========")
	fmt.Fprintf(w, "Session Start : %s\n", s.SessionStart)
	fmt.Fprintf(w, "Session End   : %s\n", s.SessionEnd)
	fmt.Fprintf(w, "Total Time    : %s\n", FormatSeconds(s.TotalSeconds))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Breakdown ---")
	fmt.Fprintf(w, "Attentive     : %s\n", FormatSeconds(s.AttentiveSeconds))
	fmt.Fprintf(w, "Distracted    : %s\n", FormatSeconds(s.DistractedSeconds))
	fmt.Fprintf(w, "Away          : %s\n", FormatSeconds(s.AwaySeconds))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Score ---")
	fmt.Fprintf(w, "Focus         : %.1f%%\n", s.FocusPercent)

	if s.CSVPath != "" {
		fmt.Fprintf(w, "\nLog saved to: %s\n", s.CSVPath)
	}
	fmt.Fprintln(w, "=====================================")
	fmt.Fprintln(w)
}
