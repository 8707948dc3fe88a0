// Package logging builds the slog handlers restwire logs through.
//
// The CLI turns --log-level, --log-format and --log-file into one handler:
//
//	h := logging.NewHandler(logging.Config{
//	    Level:  logging.ParseLevel("debug"),
//	    Format: logging.FormatJSON,
//	})
//	log := slog.New(logging.NewMultiHandler(h, fileHandler))
//
// Library components take an optional *slog.Logger and pass it through
// OrNop, so a nil logger is always safe.
package logging
