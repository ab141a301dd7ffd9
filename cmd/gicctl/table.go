package main

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

const (
	sgiBold  = "\x1b[1m"
	sgiFaint = "\x1b[2m"
	sgiReset = "\x1b[m"
)

// table collects rows and writes them with aligned columns.
type table struct {
	header []string
	rows   [][]string
	styled bool
}

func newTable(out io.Writer, header ...string) *table {
	return &table{header: header, styled: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (t *table) add(cells ...string) { t.rows = append(t.rows, cells) }

// faint dims a cell on a terminal.
func (t *table) faint(s string) string {
	if !t.styled {
		return s
	}
	return sgiFaint + s + sgiReset
}

func (t *table) write(out io.Writer) error {
	widths := make([]int, len(t.header))
	measure := func(row []string) {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], ansi.StringWidth(cell))
			}
		}
	}
	measure(t.header)
	for _, r := range t.rows {
		measure(r)
	}

	var b strings.Builder
	line := func(row []string, bold bool) {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			if !t.styled {
				cell = ansi.Strip(cell)
			}
			if bold && t.styled {
				b.WriteString(sgiBold + cell + sgiReset)
			} else {
				b.WriteString(cell)
			}
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-ansi.StringWidth(cell)+2))
			}
		}
		b.WriteByte('\n')
	}
	line(t.header, true)
	for _, r := range t.rows {
		line(r, false)
	}
	_, err := io.WriteString(out, b.String())
	return err
}
