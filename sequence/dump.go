package sequence

import (
	"fmt"
	"io"

	"go-midimodel/temporal"
)

// Dump writes one line per event of the merged iteration starting at from.
// limit caps the number of lines; zero means no cap.
func (s *Sequence[T]) Dump(w io.Writer, from T, limit int) error {
	it := s.Begin(from, IterOptions[T]{ForceDiscrete: true})
	defer it.Close()

	if _, err := fmt.Fprintf(w, "sequence @ %s\n", from); err != nil {
		return err
	}
	n := 0
	for it.Next() {
		ev := it.Event()
		end := ""
		if temporal.IsMax(ev.Time()) {
			end = " (unterminated)"
		}
		if _, err := fmt.Fprintf(w, "  %-12s %-13s ch=%-2d % X%s\n", ev.Time(), ev.Type(), ev.Channel(), ev.Buffer(), end); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	_, err := fmt.Fprintf(w, "%d events\n", n)
	return err
}
