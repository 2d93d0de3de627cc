package main

import (
	"fmt"
	"io"
	"os"

	"github.com/heirloom-restoration/workshop/internal/model"
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
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printMessage(w io.Writer, m model.Message) {
	sender := colorize(colorBold, m.SenderName)
	if m.MessageType == model.MessageTypeSystem {
		sender = colorize(colorCyan, "system")
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), sender, m.Content)
}

func printConversation(w io.Writer, c model.Conversation) {
	last := "-"
	if c.LastMessageAt != nil {
		last = c.LastMessageAt.Local().Format("2006-01-02 15:04")
	}
	fmt.Fprintf(w, "%s  %-8s %-7s %-16s %s <%s>  %s\n",
		c.ID, c.Status, c.Priority, last, c.CustomerName, c.CustomerEmail, c.Title)
}
