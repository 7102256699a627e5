package kad

import (
	"bytes"
	"fmt"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
)

type lines []string

func (t *lines) Println(v ...any) { *t = append(*t, fmt.Sprintln(v...)) }
func (t *lines) Printf(format string, v ...any) { *t = append(*t, fmt.Sprintf(format, v...)) }
func (t *lines) Print(v ...any) { *t = append(*t, fmt.Sprint(v...)) }

func TestComponentLog(t *testing.T) {
	t.Run("shares the writer of standard loggers", func(t *testing.T) {
		var buf bytes.Buffer
		l := componentlog(log.New(&buf, "", 0), "table", "self")
		l.Printf("added %s", "peer")
		require.Contains(t, buf.String(), "[table self] added peer")
	})

	t.Run("prefixes custom loggers", func(t *testing.T) {
		var out lines
		l := componentlog(&out, "query", "self")
		l.Printf("peer %s failed", "a")
		l.Println("stopped")
		require.Equal(t, lines{"[query self] peer a failed", "[query self] stopped\n"}, out)
	})

	t.Run("discard stays silent", func(t *testing.T) {
		require.Equal(t, LogDiscard(), componentlog(LogDiscard(), "maintenance", "self"))
	})
}
