package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/foschi-ia/recordar/internal/notify"
	"github.com/foschi-ia/recordar/internal/reminder"
	"github.com/foschi-ia/recordar/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// writeReminders prints one "- {message} → {due}" line per reminder.
func writeReminders(w io.Writer, rems []storage.Reminder) {
	if len(rems) == 0 {
		fmt.Fprintln(w, "No tenés recordatorios pendientes.")
		return
	}
	for _, r := range rems {
		fmt.Fprintf(w, "- %s → %s\n", r.Message, r.DueAt.Format(reminder.DisplayLayout))
	}
}

func writeNotifications(w io.Writer, ns []notify.Notification) {
	for _, n := range ns {
		fmt.Fprintf(w, "%s %s (%s)\n", colorize(colorCyan, "⏰"), n.Message, n.DueAt.Format(reminder.DisplayLayout))
	}
}

func writeHistory(w io.Writer, entries []storage.HistoryEntry) {
	for _, e := range entries {
		fmt.Fprintln(w, colorize(colorBold, e.Fecha))
		if e.User != "" {
			fmt.Fprintf(w, "  vos: %s\n", e.User)
		}
		fmt.Fprintf(w, "  foschi: %s\n", strings.ReplaceAll(e.Assistant, "\n", "\n          "))
	}
}
