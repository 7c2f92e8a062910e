package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/event"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/session"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/ua"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/utils"
	"github.com/ghettovoice/gosip/log"
)

func completer(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "call", Description: "call <endpoint> [connection]"},
		{Text: "dc", Description: "dc <endpoint> [connection] [label]: open a direct connection"},
		{Text: "answer", Description: "answer <session>"},
		{Text: "accept", Description: "accept <session>: accept a direct connection"},
		{Text: "reject", Description: "reject <session>"},
		{Text: "hangup", Description: "hangup <session>"},
		{Text: "mute", Description: "mute <session> audio|video"},
		{Text: "unmute", Description: "unmute <session> audio|video"},
		{Text: "send", Description: "send <session> <text>: write to a direct connection"},
		{Text: "calls", Description: "Show active sessions"},
		{Text: "loggers", Description: "Show loggers and levels"},
		{Text: "loglevel", Description: "loglevel <logger> <level>"},
		{Text: "exit", Description: "Exit"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

func consoleLoop(agent *ua.UserAgent, logger log.Logger) {
	fmt.Println("Please select command.")
	for {
		t := prompt.Input("RTC> ", completer,
			prompt.OptionTitle("GO RTC UA 1.0.0"),
			prompt.OptionHistory([]string{"calls"}),
			prompt.OptionPrefixTextColor(prompt.Yellow),
			prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
			prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
			prompt.OptionSuggestionBGColor(prompt.DarkGray))

		if exit := execute(agent, strings.Fields(t), logger); exit {
			fmt.Println("Exit now.")
			return
		}
	}
}

// execute runs one console command and reports whether the console should
// exit.
func execute(agent *ua.UserAgent, args []string, logger log.Logger) bool {
	if len(args) == 0 {
		return false
	}
	var err error
	switch args[0] {
	case "call":
		if len(args) < 2 {
			fmt.Println("usage: call <endpoint> [connection]")
			return false
		}
		var s *session.Session
		if s, err = callable(agent, args[1:]).StartCall(ua.CallOptions{}); err == nil {
			fmt.Printf("calling: %s\n", s)
		}
	case "dc":
		if len(args) < 2 {
			fmt.Println("usage: dc <endpoint> [connection] [label]")
			return false
		}
		opts := ua.DirectConnectionOptions{}
		if len(args) > 3 {
			opts.Label = args[3]
		}
		var s *session.Session
		if s, err = callable(agent, args[1:]).StartDirectConnection(opts); err == nil {
			printMessages(s)
			fmt.Printf("connecting: %s\n", s)
		}
	case "answer", "accept", "reject", "hangup", "mute", "unmute":
		err = withSession(agent, args)
	case "send":
		if len(args) < 3 {
			fmt.Println("usage: send <session> <text>")
			return false
		}
		s, found := agent.Registry().Find(args[1])
		if !found {
			err = fmt.Errorf("no session %s", args[1])
			break
		}
		err = s.SendMessage([]byte(strings.Join(args[2:], " ")))
	case "calls":
		sessions := agent.Sessions()
		if len(sessions) == 0 {
			fmt.Printf("No active sessions\n")
			return false
		}
		fmt.Printf("Sessions:\n")
		for _, s := range sessions {
			fmt.Printf("%v: %s %s, remote %s\n", s, s.Direction(), s.State(), s.Remote())
		}
	case "loggers":
		loggers := utils.GetLoggers()
		names := make([]string, 0, len(loggers))
		for name := range loggers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s \t %s\n", name, loggers[name].Level())
		}
	case "loglevel":
		if len(args) != 3 {
			fmt.Println("usage: loglevel <logger> <level>")
			return false
		}
		var level log.Level
		if level, err = utils.ParseLevel(args[2]); err == nil {
			err = utils.SetLogLevel(args[1], level)
		}
	case "exit":
		return true
	default:
		fmt.Printf("unknown command %q\n", args[0])
	}
	if err != nil {
		logger.Errorf("%s: %v", args[0], err)
	}
	return false
}

func callable(agent *ua.UserAgent, args []string) ua.Callable {
	endpoint := agent.Endpoint(args[0])
	if len(args) > 1 && args[1] != "-" {
		return endpoint.Connection(args[1])
	}
	return endpoint
}

func withSession(agent *ua.UserAgent, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <session>", args[0])
	}
	s, found := agent.Registry().Find(args[1])
	if !found {
		return fmt.Errorf("no session %s", args[1])
	}
	kind := media.KindAudio
	if len(args) > 2 {
		kind = args[2]
	}
	switch args[0] {
	case "answer":
		return s.Answer(ua.DefaultConstraints)
	case "accept":
		return s.Accept()
	case "reject":
		s.Reject()
	case "hangup":
		s.Hangup()
	case "mute":
		s.Mute(kind)
	case "unmute":
		s.Unmute(kind)
	}
	return nil
}

func printMessages(s *session.Session) {
	s.Hub().Listen(session.EventMessage, func(e event.Event) {
		fmt.Printf("\n%s: %s\n", s.ID(), e.Data.([]byte))
	})
}
