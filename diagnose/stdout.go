package diagnose

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cargowatch/cargowatch/dispatch"
)

var urlRe = regexp.MustCompile(`(https?://[^\s]+)`)

// NewStdoutDispatcher builds the dispatcher for the subprocess's own
// stdout output. Server-style programs announce their listen address
// there; those lines mark the end of the build phase and surface the
// URL so the caller can open it.
func NewStdoutDispatcher(hooks Hooks) *dispatch.Dispatcher {
	d := dispatch.New()

	markFinished := func() {
		if hooks.BuildFinished != nil {
			hooks.BuildFinished(time.Now())
		}
	}

	d.MustRegister(`listening on`,
		func(line string, _ map[string]string, _ *dispatch.State) *dispatch.Response {
			markFinished()
			if m := urlRe.FindString(line); m != "" {
				return &dispatch.Response{
					Kind:    dispatch.KindOpenedURL,
					Message: normalizeURL(m),
				}
			}
			return nil
		})

	// "server listening at:" prints the URL on the following line, so
	// the first match only arms the per-registration flag.
	d.MustRegister(`.*`,
		func(line string, _ map[string]string, st *dispatch.State) *dispatch.Response {
			if !st.Flag {
				if strings.Contains(line, "server listening at:") {
					st.Flag = true
					return &dispatch.Response{
						Kind:    dispatch.KindNote,
						Message: fmt.Sprintf("awaiting listen address after: %s", line),
					}
				}
				return nil
			}
			st.Flag = false
			if m := urlRe.FindString(line); m != "" {
				markFinished()
				return &dispatch.Response{
					Kind:    dispatch.KindOpenedURL,
					Message: normalizeURL(m),
				}
			}
			return nil
		})

	d.MustRegister(`Serving\s+at\s+(?P<url>https?://[^\s]+)`,
		func(line string, caps map[string]string, _ *dispatch.State) *dispatch.Response {
			markFinished()
			return &dispatch.Response{
				Kind:    dispatch.KindOpenedURL,
				Message: normalizeURL(caps["url"]),
			}
		})

	return d
}

// normalizeURL rewrites wildcard binds to a connectable loopback host.
func normalizeURL(u string) string {
	return strings.Replace(u, "0.0.0.0", "127.0.0.1", 1)
}
