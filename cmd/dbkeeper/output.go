package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/semmidev/dbkeeper/internal/domain"
)

var (
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed)
	warning = color.New(color.FgYellow)
	faint   = color.New(color.Faint)
	bold    = color.New(color.Bold)
)

// progressPrinter prints tool output until stop is called. stop must only be
// called after the operation sending on the channel has returned.
func progressPrinter(w io.Writer) (chan<- domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range ch {
			faint.Fprintf(w, "  %s\n", ev.Line)
		}
	}()
	return ch, func() {
		close(ch)
		wg.Wait()
	}
}

func printConnections(w io.Writer, profiles []domain.ConnectionProfile) {
	if len(profiles) == 0 {
		fmt.Fprintln(w, "No connections registered.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENGINE\tHOST\tPORT\tDATABASE\tUSER")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", p.Name, p.Engine, p.Host, p.Port, p.Database, p.Username)
	}
	tw.Flush()
}

// printBackups lists newest first as "[Status] yyyy-MM-dd HH:mm | size | path".
func printBackups(w io.Writer, records []domain.BackupRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No backups recorded.")
		return
	}

	sorted := append([]domain.BackupRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	for _, r := range sorted {
		status := statusColor(r.Status).Sprintf("[%s]", r.Status)
		when := r.CreatedAt.Format("2006-01-02 15:04")

		switch r.Status {
		case domain.StatusSucceeded:
			fmt.Fprintf(w, "%s %s | %s | %s\n", status, when, humanize.Bytes(uint64(r.FileSizeBytes)), r.FilePath)
		case domain.StatusFailed:
			fmt.Fprintf(w, "%s %s | - | %s\n", status, when, r.ErrorMessage)
		default:
			fmt.Fprintf(w, "%s %s | - | -\n", status, when)
		}
	}
}

func statusColor(s domain.BackupStatus) *color.Color {
	switch s {
	case domain.StatusSucceeded:
		return success
	case domain.StatusFailed:
		return failure
	default:
		return warning
	}
}

func isTerminal(r io.Reader) (int, bool) {
	f, ok := r.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// readPassword reads without echo on a terminal, otherwise a plain line.
func readPassword(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	if fd, ok := isTerminal(in); ok {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return readLine(in)
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return "", nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks the user to type "yes".
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	warning.Fprintf(out, "%s ", prompt)
	fmt.Fprint(out, "Type 'yes' to continue: ")
	answer, err := readLine(in)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(answer) == "yes", nil
}
