package tailer

import (
	"bufio"
	"io"
	"log"
	"os"

	"github.com/claude-code-ui/terminaldaemon/internal/entry"
)

// ReadDelta opens path, reads from lastByte to EOF, and decodes every
// complete line into a RawEntry. The offset only advances past the last
// complete line terminator — a partial trailing line is left unconsumed
// so the next read picks it up whole. Malformed JSON lines are skipped
// (reported via onError) but the offset still advances past them, per
// the skip-but-advance contract: a single bad line must never stall the
// tailer.
func ReadDelta(path string, lastByte int64, onError func(error)) ([]*entry.RawEntry, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lastByte, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, lastByte, err
	}

	offset := lastByte
	if offset > info.Size() {
		// File was truncated or replaced out from under us: re-read from
		// the start rather than seeking past EOF.
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, lastByte, err
	}

	r := bufio.NewReader(f)
	var out []*entry.RawEntry
	consumed := offset

	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			consumed += int64(len(line))
			e, perr := entry.ParseLine(line)
			if perr != nil {
				if onError != nil {
					onError(perr)
				}
				continue
			}
			if e != nil {
				out = append(out, e)
			}
			continue
		}
		// Partial trailing line (no terminator) or EOF with no data:
		// leave it unconsumed for the next read.
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("[tailer] read error on %s: %v", path, err)
			break
		}
	}

	return out, consumed, nil
}
