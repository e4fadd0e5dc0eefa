package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Minimal color palette
var (
	dimColor    = lipgloss.Color("#6c6c6c")
	textColor   = lipgloss.Color("#e0e0e0")
	accentColor = lipgloss.Color("#7aa2f7")
	errorColor  = lipgloss.Color("#f7768e")
	okColor     = lipgloss.Color("#9ece6a")
	warnColor   = lipgloss.Color("#e0af68")
)

var (
	consoleStyle = lipgloss.NewStyle().Foreground(textColor)
	levelStyle   = lipgloss.NewStyle().Foreground(dimColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	warnStyle    = lipgloss.NewStyle().Foreground(warnColor)
	okStyle      = lipgloss.NewStyle().Foreground(okColor)
	headerStyle  = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
)

// printConsole writes tagged script console lines, colouring faults and
// warnings.
func printConsole(w io.Writer, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(w, headerStyle.Render("Console"))
	for _, line := range lines {
		fmt.Fprintln(w, styleConsoleLine(line))
	}
	fmt.Fprintln(w)
}

func styleConsoleLine(line string) string {
	tag, msg, ok := strings.Cut(line, "] ")
	if !ok || !strings.HasPrefix(tag, "[") {
		return consoleStyle.Render(line)
	}
	tag += "]"
	switch {
	case strings.HasSuffix(tag, "[ERROR]"):
		return errorStyle.Render(tag + " " + msg)
	case strings.HasPrefix(msg, "[warn]"):
		return levelStyle.Render(tag) + " " + warnStyle.Render(msg)
	default:
		return levelStyle.Render(tag) + " " + consoleStyle.Render(msg)
	}
}

// render prints markdown through glamour, falling back to the raw text.
func render(w io.Writer, markdown string) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Fprintln(w, markdown)
		return
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		fmt.Fprintln(w, markdown)
		return
	}
	fmt.Fprint(w, out)
}

// codeBlock wraps text in a fenced markdown block.
func codeBlock(lang, text string) string {
	return "```" + lang + "\n" + strings.TrimRight(text, "\n") + "\n```\n"
}
