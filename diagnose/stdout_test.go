package diagnose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cargowatch/cargowatch/dispatch"
)

func openedURLs(responses []dispatch.Response) []string {
	var out []string
	for _, r := range responses {
		if r.Kind == dispatch.KindOpenedURL {
			out = append(out, r.Message)
		}
	}
	return out
}

func TestStdoutDispatcher_ServingAt(t *testing.T) {
	finished := 0
	d := NewStdoutDispatcher(Hooks{
		BuildFinished: func(_ time.Time) { finished++ },
	})

	urls := openedURLs(d.Dispatch("Serving at http://0.0.0.0:8000"))
	require.Equal(t, []string{"http://127.0.0.1:8000"}, urls)
	require.Equal(t, 1, finished)
}

func TestStdoutDispatcher_ListeningOn(t *testing.T) {
	finished := 0
	d := NewStdoutDispatcher(Hooks{
		BuildFinished: func(_ time.Time) { finished++ },
	})

	urls := openedURLs(d.Dispatch("listening on http://127.0.0.1:3000"))
	require.Equal(t, []string{"http://127.0.0.1:3000"}, urls)
	require.Equal(t, 1, finished)

	// A listen announcement without a URL still ends the build phase.
	require.Empty(t, openedURLs(d.Dispatch("listening on port 3000")))
	require.Equal(t, 2, finished)
}

func TestStdoutDispatcher_TwoLineListenAddress(t *testing.T) {
	d := NewStdoutDispatcher(Hooks{})

	first := d.Dispatch("server listening at:")
	require.Empty(t, openedURLs(first))

	urls := openedURLs(d.Dispatch("http://0.0.0.0:7878"))
	require.Equal(t, []string{"http://127.0.0.1:7878"}, urls)

	// The arm flag is one-shot: later URLs on their own do nothing.
	require.Empty(t, openedURLs(d.Dispatch("http://0.0.0.0:9999")))
}

func TestStdoutDispatcher_ArmedLineWithoutURLDisarms(t *testing.T) {
	d := NewStdoutDispatcher(Hooks{})

	d.Dispatch("server listening at:")
	require.Empty(t, openedURLs(d.Dispatch("starting workers")))
	require.Empty(t, openedURLs(d.Dispatch("http://0.0.0.0:7878")))
}
