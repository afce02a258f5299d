package termcli_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtwo/nexus-link-sub005/internal/termcli"
)

func TestDispatchUnknownCommand(t *testing.T) {
	r := termcli.NewRegistry()
	res := r.Dispatch(nil, "frobnicate")
	assert.Equal(t, termcli.CodeUnknownCommand, res.Code)
}

func TestDispatchRegisteredHandler(t *testing.T) {
	r := termcli.NewRegistry()
	r.Register(&termcli.Handler{
		Verb:      "pwd",
		HelpShort: "print working directory",
		Call: func(ctx interface{}, cmd *termcli.Command) termcli.Result {
			return termcli.Ok("/home/user")
		},
	})

	res := r.Dispatch(nil, "PWD")
	require.True(t, res.Success())
	assert.Equal(t, []string{"/home/user"}, res.Lines)
}

func TestDispatchRecordsHistory(t *testing.T) {
	r := termcli.NewRegistry()
	r.Register(&termcli.Handler{Verb: "pwd", Call: func(ctx interface{}, cmd *termcli.Command) termcli.Result {
		return termcli.Ok()
	}})

	r.Dispatch(nil, "pwd")
	r.Dispatch(nil, "pwd extra")

	assert.Equal(t, []string{"pwd", "pwd extra"}, r.History())
}

func TestHistoryTruncation(t *testing.T) {
	r := termcli.NewRegistry()
	r.SetHistoryLen(2)
	r.Register(&termcli.Handler{Verb: "pwd", Call: func(ctx interface{}, cmd *termcli.Command) termcli.Result {
		return termcli.Ok()
	}})

	r.Dispatch(nil, "pwd 1")
	r.Dispatch(nil, "pwd 2")
	r.Dispatch(nil, "pwd 3")

	assert.Equal(t, []string{"pwd 2", "pwd 3"}, r.History())
}

func TestClearHistory(t *testing.T) {
	r := termcli.NewRegistry()
	r.Register(&termcli.Handler{Verb: "pwd", Call: func(ctx interface{}, cmd *termcli.Command) termcli.Result {
		return termcli.Ok()
	}})
	r.Dispatch(nil, "pwd")
	r.ClearHistory()
	assert.Empty(t, r.History())
}

func TestCommandArgsParsed(t *testing.T) {
	r := termcli.NewRegistry()
	var seen *termcli.Command
	r.Register(&termcli.Handler{Verb: "cd", Call: func(ctx interface{}, cmd *termcli.Command) termcli.Result {
		seen = cmd
		return termcli.Ok()
	}})

	r.Dispatch(nil, "cd /home/user/docs")
	require.NotNil(t, seen)
	assert.Equal(t, []string{"/home/user/docs"}, seen.Args)
}

func TestHelpListsAllVerbsWhenEmpty(t *testing.T) {
	r := termcli.NewRegistry()
	r.Register(&termcli.Handler{Verb: "ls", HelpShort: "list directory"})
	r.Register(&termcli.Handler{Verb: "cd", HelpShort: "change directory"})

	help := r.Help("")
	assert.Contains(t, help, "ls")
	assert.Contains(t, help, "cd")
}

func TestHelpUnknownVerb(t *testing.T) {
	r := termcli.NewRegistry()
	assert.Contains(t, r.Help("bogus"), "no help entry")
}
