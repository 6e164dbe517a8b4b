package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mslinn/testintel/pkg/reorder"
)

func (a *app) reorder(args []string) error {
	fs := a.newFlagSet("reorder")
	enabled := fs.Bool("prioritize", a.cfg.Prioritize, "Apply the prioritization order (default from config)")
	orderPath := fs.String("order", a.cfg.GetOrderPath(), "Prioritization order file")
	itemsPath := fs.String("items", "", "File of discovered test IDs, one per line (default: stdin)")

	if err := parse(fs, args); err != nil {
		return err
	}

	in := a.stdin
	if *itemsPath != "" {
		f, err := os.Open(*itemsPath)
		if err != nil {
			return fmt.Errorf("failed to open items: %w", err)
		}
		defer f.Close()
		in = f
	}
	return a.reorderStream(in, *enabled, *orderPath)
}

func (a *app) reorderStream(in io.Reader, enabled bool, orderPath string) error {
	discovered, err := readIdentifiers(in)
	if err != nil {
		return fmt.Errorf("failed to read discovered tests: %w", err)
	}

	ordered := reorder.Apply(enabled, orderPath, discovered, reorder.Identity, a.component("reorder"))

	bw := bufio.NewWriter(a.stdout)
	for _, id := range ordered {
		fmt.Fprintln(bw, id)
	}
	return bw.Flush()
}

// readIdentifiers returns every line of in verbatim, blank ones included, so
// the printed order is a permutation of the input lines
func readIdentifiers(in io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ids = append(ids, scanner.Text())
	}
	return ids, scanner.Err()
}
