package main

import (
	"fmt"
	"io"
	"regexp"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const (
	barWidth  = 30
	clearLine = "\r\033[K"
)

var (
	boldStyle  = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)

	boldMarkers = regexp.MustCompile(`\*\*(.+?)\*\*`)
)

// TerminalSink renders attempt progress as a single redrawn terminal line
type TerminalSink struct {
	out      io.Writer
	bar      progress.Model
	mu       sync.Mutex
	lineOpen bool
}

// NewTerminalSink creates a sink writing to out
func NewTerminalSink(out io.Writer) *TerminalSink {
	return &TerminalSink{
		out: out,
		bar: progress.New(
			progress.WithGradient("#FF006E", "#00F5FF"),
			progress.WithWidth(barWidth),
		),
	}
}

// renderStatus turns **bold** markers into terminal bold
func renderStatus(status string) string {
	return boldMarkers.ReplaceAllStringFunc(status, func(m string) string {
		return boldStyle.Render(m[2 : len(m)-2])
	})
}

func (s *TerminalSink) redraw(line string) error {
	s.lineOpen = true
	_, err := fmt.Fprint(s.out, clearLine+line)
	return err
}

func (s *TerminalSink) endLine() error {
	if !s.lineOpen {
		return nil
	}
	s.lineOpen = false
	_, err := fmt.Fprintln(s.out)
	return err
}

func (s *TerminalSink) OnProgress(fraction float64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redraw(s.bar.ViewAs(fraction) + " " + renderStatus(status))
}

func (s *TerminalSink) OnStatus(status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redraw(renderStatus(status))
}

func (s *TerminalSink) OnFinished(status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.redraw(s.bar.ViewAs(1.0) + " " + renderStatus(status)); err != nil {
		return err
	}
	return s.endLine()
}

func (s *TerminalSink) OnError(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.endLine(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(s.out, errorStyle.Render("Error:")+" "+message)
	return err
}
