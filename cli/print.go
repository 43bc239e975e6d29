package cli

// This file contains the result summary printed after a supervised run
// completes.

import (
	"fmt"
	"time"

	"github.com/cargowatch/cargowatch/model"
)

func (a *App) printResult(res *model.ProcessResult, useColor bool) {
	fmt.Println("-------------------------------------------------")
	fmt.Printf("Command:            %s\n", res.CommandLine)
	fmt.Printf("Process started at: %s\n", res.StartTime.Format(time.RFC3339))
	if !res.Stats.BuildFinished.First.IsZero() {
		fmt.Printf("Build phase ended:  %s\n", res.Stats.BuildFinished.First.Format(time.RFC3339))
		fmt.Printf("Build elapsed:      %s\n", formatDuration(res.BuildElapsed))
		fmt.Printf("Run elapsed:        %s\n", formatDuration(res.RunElapsed))
	} else {
		fmt.Println("No build-finished timestamp recorded.")
	}
	if res.Exited {
		fmt.Printf("Process ended at:   %s (exit code %d)\n", res.EndTime.Format(time.RFC3339), res.ExitCode)
	}
	fmt.Printf("Build output:       %s (%d bytes)\n", formatBytes(res.BuildOutputBytes), res.BuildOutputBytes)
	fmt.Printf("Run output:         %s (%d bytes)\n", formatBytes(res.RunOutputBytes), res.RunOutputBytes)
	fmt.Printf("Messages:           %d compiler, %d artifacts, %d build scripts\n",
		res.Stats.CompilerMessage.Count,
		res.Stats.CompilerArtifact.Count,
		res.Stats.BuildScriptExecuted.Count)
	if res.CouldNotCompile {
		fmt.Printf("Build failed:       target %q could not be compiled\n", res.Stats.TargetName)
	}
	fmt.Println("-------------------------------------------------")

	if len(res.Diagnostics) == 0 {
		return
	}
	warnings := res.DiagnosticsBySeverity(model.SeverityWarning)
	errors := res.DiagnosticsBySeverity(model.SeverityError)
	fmt.Printf("--- Diagnostics (%d total, %d warnings, %d errors) ---\n",
		len(res.Diagnostics), len(warnings), len(errors))
	for i := range res.Diagnostics {
		fmt.Println(res.Diagnostics[i].Render(useColor))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
