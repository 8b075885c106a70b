// Package main is the entry point for the session replay viewer.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/NGWS-CD/forensic-final/internal/dom"
	"github.com/NGWS-CD/forensic-final/internal/replay"
	"github.com/NGWS-CD/forensic-final/internal/schema"
	"github.com/NGWS-CD/forensic-final/internal/scorer"
)

var (
	// Structural / metadata
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - timestamps, metadata

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - labels

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")) // White - values

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")) // White bold - headers

	// Interaction events - Blue
	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	// Text synthesis - Cyan
	textStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	// Forensic events - Red bold
	forensicStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))

	// Outcomes
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	// Timeline
	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(5).
			Align(lipgloss.Right)

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)

func main() {
	var (
		sessionPath  string
		snapshotPath string
		speed        float64
		verbose      bool
	)

	flag.StringVar(&sessionPath, "session", "", "Path to the exported session JSON")
	flag.StringVar(&snapshotPath, "snapshot", "", "Path to the page HTML snapshot")
	flag.Float64Var(&speed, "speed", 1.0, "Playback speed multiplier")
	flag.BoolVar(&verbose, "v", false, "Show event payloads")
	flag.Parse()

	if sessionPath == "" || snapshotPath == "" {
		fmt.Fprintln(os.Stderr, "usage: forensic-replay -session <file> -snapshot <file> [-speed N]")
		os.Exit(2)
	}
	if speed <= 0 {
		fmt.Fprintln(os.Stderr, "speed must be positive")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	if err := run(sessionPath, snapshotPath, speed, verbose, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(sessionPath, snapshotPath string, speed float64, verbose bool, logger *slog.Logger) error {
	sessionData, err := os.ReadFile(sessionPath)
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	// Parse once up front for the header; the engine re-validates on load.
	sess, err := schema.ParseSession(sessionData)
	if err != nil {
		return fmt.Errorf("failed to parse session: %w", err)
	}

	snapshotFile, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}
	snapshot, err := dom.ParseSnapshot(snapshotFile)
	snapshotFile.Close()
	if err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}

	printHeader(sess, speed)

	dispatcher := replay.NewLogDispatcher(logger)
	engine := replay.NewEngine(snapshot, dispatcher, logger)
	if err := engine.LoadSession(sessionData); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	done := make(chan struct{})
	engine.OnProgress(func(p replay.Progress) {
		if p.Event != nil {
			printEvent(p, verbose)
		}
		if p.State == replay.StateCompleted {
			close(done)
		}
	})

	started := time.Now()
	if err := engine.StartReplay(speed); err != nil {
		return fmt.Errorf("failed to start replay: %w", err)
	}
	<-done

	printSummary(sess, dispatcher, time.Since(started))
	return nil
}

func printHeader(sess *schema.Session, speed float64) {
	fmt.Println()
	fmt.Printf("%s %s\n", titleStyle.Render("SESSION"), valueStyle.Render(sess.SessionID))
	fmt.Println(divider)
	fmt.Printf("%s %s\n", labelStyle.Render("URL:     "), valueStyle.Render(sess.PageInfo.URL))
	if sess.PageInfo.Title != "" {
		fmt.Printf("%s %s\n", labelStyle.Render("Title:   "), valueStyle.Render(sess.PageInfo.Title))
	}
	start := time.UnixMilli(sess.StartTime)
	fmt.Printf("%s %s\n", labelStyle.Render("Start:   "), valueStyle.Render(start.Format(time.RFC3339)))
	duration := time.Duration(sess.EndTime-sess.StartTime) * time.Millisecond
	fmt.Printf("%s %s\n", labelStyle.Render("Duration:"), valueStyle.Render(duration.String()))
	fmt.Printf("%s %s\n", labelStyle.Render("Speed:   "), valueStyle.Render(fmt.Sprintf("%.2gx", speed)))
	fmt.Println()

	fmt.Printf("%s %s\n", titleStyle.Render("TIMELINE"),
		dimStyle.Render(fmt.Sprintf("(%d events)", sess.TotalEvents)))
	fmt.Println(divider)
}

func printEvent(p replay.Progress, verbose bool) {
	ev := p.Event
	seq := seqStyle.Render(fmt.Sprintf("%d", p.Index))
	ts := dimStyle.Render(fmt.Sprintf("+%6dms", ev.TimestampRelative))

	style := eventStyle
	suffix := ""
	switch {
	case ev.Type.IsForensic():
		style = forensicStyle
		suffix = warnStyle.Render(fmt.Sprintf(" severity=%.1f", scorer.Severity(ev.Type)))
	case ev.Type == schema.EventKeyDown || ev.Type == schema.EventKeyUp || ev.Type == schema.EventInput:
		style = textStyle
	}

	fmt.Printf("%s │ %s │ %s %s%s\n", seq, ts,
		style.Render(strings.ToUpper(string(ev.Type))),
		dimStyle.Render(ev.Target),
		suffix)

	if verbose && len(ev.Payload) > 0 {
		for k, v := range ev.Payload {
			fmt.Printf("      │           │   %s %v\n", labelStyle.Render(k+":"), v)
		}
	}
}

func printSummary(sess *schema.Session, dispatcher *replay.LogDispatcher, elapsed time.Duration) {
	trace := dispatcher.Trace()
	skipped := sess.TotalEvents - len(trace)

	fmt.Println()
	fmt.Println(divider)
	fmt.Printf("%s %s\n", successStyle.Render("COMPLETED"),
		dimStyle.Render(fmt.Sprintf("(%d dispatched, %d skipped, %s)",
			len(trace), skipped, elapsed.Round(time.Millisecond))))

	suspicious := 0
	for _, ev := range sess.Events {
		if ev.Type.IsForensic() {
			suspicious++
		}
	}
	if suspicious > 0 {
		fmt.Printf("%s %s\n", errorStyle.Render("SUSPICIOUS:"),
			valueStyle.Render(fmt.Sprintf("%d forensic events in this session", suspicious)))
	}
	fmt.Println()
}
