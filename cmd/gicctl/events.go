package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/tinyrange/gicv3/internal/debug"
)

func runEvents(fs *flag.FlagSet, common *commonFlags, args []string, out io.Writer) error {
	list := fs.Bool("list", false, "list the sources in the log")
	source := fs.String("source", "", "regex to filter sources")
	limit := fs.Int("limit", 0, "stop after N entries (0 for unlimited)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("events: want exactly one log file")
	}

	var re *regexp.Regexp
	if *source != "" {
		var err error
		if re, err = regexp.Compile(*source); err != nil {
			return fmt.Errorf("events: invalid source regex: %w", err)
		}
	}

	r, err := debug.NewReaderFromFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	return printEvents(out, r, re, *list, *limit)
}

var errLimit = errors.New("limit reached")

func printEvents(out io.Writer, r *debug.Reader, re *regexp.Regexp, list bool, limit int) error {
	if list {
		t := newTable(out, "SOURCE", "COUNT")
		for _, src := range r.Sources() {
			if re == nil || re.MatchString(src) {
				t.add(src, fmt.Sprint(r.Count(src)))
			}
		}
		return t.write(out)
	}

	n := 0
	err := r.Each(func(e debug.Entry) error {
		if re != nil && !re.MatchString(e.Source) {
			return nil
		}
		if limit > 0 && n >= limit {
			return errLimit
		}
		n++
		msg := string(e.Data)
		if e.Kind == debug.DebugKindBytes {
			msg = fmt.Sprintf("% x", e.Data)
		}
		_, err := fmt.Fprintf(out, "%s [%s] %s\n", e.Time.UTC().Format(time.RFC3339Nano), e.Source, msg)
		return err
	})
	if errors.Is(err, errLimit) {
		return nil
	}
	return err
}
