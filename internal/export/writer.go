package export

import (
	"bufio"
	"fmt"
	"os"

	"github.com/TimelordUK/mview/internal/logindex"
)

// Options controls snapshot output.
type Options struct {
	// Prefix adds a "[source:line] " tag to each exported line.
	Prefix bool
}

// Result summarizes what a snapshot wrote.
type Result struct {
	Lines int
	Bytes int64
}

// WriteSnapshot writes the current merged, filtered stream to path in
// view order. Must run on the view thread, like every other index
// reader.
func WriteSnapshot(idx *logindex.Indexer, path string, opts Options) (Result, error) {
	out, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("create export file: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	var res Result

	for row := 0; row < idx.RowCount(); row++ {
		cl := idx.At(row)
		file, lineNo := idx.Find(cl)
		if file == nil {
			continue
		}

		body, err := file.ReadLine(lineNo)
		if err != nil {
			return res, fmt.Errorf("read %s line %d: %w", file.Filename(), lineNo, err)
		}

		var n int
		if opts.Prefix {
			n, err = fmt.Fprintf(w, "[%s:%d] %s\n", file.UniquePath(), lineNo+1, body)
		} else {
			n, err = w.Write(body)
			if err == nil {
				err = w.WriteByte('\n')
				n++
			}
		}
		if err != nil {
			return res, fmt.Errorf("write export: %w", err)
		}

		res.Lines++
		res.Bytes += int64(n)
	}

	if err := w.Flush(); err != nil {
		return res, fmt.Errorf("flush export: %w", err)
	}
	return res, nil
}
