package kad

import (
	"fmt"
	"io"
	"log"
)

// logging is the subset of *log.Logger the node writes to.
type logging interface {
	Println(v ...any)
	Printf(format string, v ...any)
	Print(v ...any)
}

type discard struct{}

func (discard) Println(...any) {}
func (discard) Printf(string, ...any) {}
func (discard) Print(...any) {}

// LogDiscard silences the node, it is the default logger.
func LogDiscard() logging {
	return discard{}
}

type logwriter interface {
	Writer() io.Writer
	Flags() int
}

// componentlog tags the output of one of the node's components with its name
// and the node id. Loggers exposing their writer share it, others receive the
// prefixed lines.
func componentlog(l logging, component string, id NodeID) logging {
	prefix := fmt.Sprintf("[%s %s] ", component, id)

	switch l := l.(type) {
	case discard:
		return l
	case logwriter:
		return log.New(l.Writer(), prefix, l.Flags())
	default:
		return prefixed{prefix: prefix, logging: l}
	}
}

type prefixed struct {
	logging
	prefix string
}

func (t prefixed) Println(v ...any) {
	t.logging.Print(t.prefix + fmt.Sprintln(v...))
}

func (t prefixed) Printf(format string, v ...any) {
	t.logging.Print(t.prefix + fmt.Sprintf(format, v...))
}

func (t prefixed) Print(v ...any) {
	t.logging.Print(t.prefix + fmt.Sprint(v...))
}
