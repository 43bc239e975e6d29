package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcher_OrderAndMultiMatch(t *testing.T) {
	d := New()

	err := d.Register(`hello`, func(line string, _ map[string]string, _ *State) *Response {
		return &Response{Kind: KindNote, Message: "first"}
	})
	require.NoError(t, err)
	err = d.Register(`hello world`, func(line string, _ map[string]string, _ *State) *Response {
		return &Response{Kind: KindNote, Message: "second"}
	})
	require.NoError(t, err)
	err = d.Register(`nope`, func(line string, _ map[string]string, _ *State) *Response {
		return &Response{Kind: KindNote, Message: "never"}
	})
	require.NoError(t, err)

	// Both matching handlers fire, in registration order, without
	// short-circuiting.
	responses := d.Dispatch("hello world")
	require.Len(t, responses, 2)
	require.Equal(t, "first", responses[0].Message)
	require.Equal(t, "second", responses[1].Message)

	require.Empty(t, d.Dispatch("unmatched line"))
	require.Equal(t, 3, d.Len())
}

func TestDispatcher_NamedCaptures(t *testing.T) {
	d := New()
	d.MustRegister(`^(?P<level>\w+)\[(?P<code>E\d+)\]: (.+)$`,
		func(line string, caps map[string]string, _ *State) *Response {
			return &Response{
				Kind:    KindLevelMessage,
				Message: caps["level"] + "/" + caps["code"] + "/" + caps["3"],
			}
		})

	responses := d.Dispatch("error[E0308]: mismatched types")
	require.Len(t, responses, 1)
	require.Equal(t, "error/E0308/mismatched types", responses[0].Message)
}

func TestDispatcher_PerHandlerState(t *testing.T) {
	d := New()
	// A two-line toggle: the first match arms the flag, the second
	// consumes it.
	d.MustRegister(`.*`, func(line string, _ map[string]string, st *State) *Response {
		st.Count++
		if !st.Flag {
			st.Flag = true
			return nil
		}
		st.Flag = false
		return &Response{Kind: KindNote, Message: line}
	})

	require.Empty(t, d.Dispatch("arm"))
	responses := d.Dispatch("fire")
	require.Len(t, responses, 1)
	require.Equal(t, "fire", responses[0].Message)
	require.Empty(t, d.Dispatch("arm again"))
}

func TestDispatcher_InvalidPattern(t *testing.T) {
	d := New()
	err := d.Register(`([`, func(string, map[string]string, *State) *Response { return nil })
	require.Error(t, err)
	require.Equal(t, 0, d.Len())
}
