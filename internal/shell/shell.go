// Package shell reads newline-delimited commands from an input stream and
// turns them into Command values on an unbuffered channel: each send blocks
// until the receiver takes the command, so commands are not queued while
// the receiver is busy. It never touches
// cluster state directly — it only produces commands for something else to
// act on.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Kind identifies what a Command asks the supervisor loop to do.
type Kind int

const (
	// Help and Version are handled entirely inside the shell (they only
	// print) and never reach the command channel.
	StopAll Kind = iota
	StopWraith
	Reload
	StopOld
	RestartAll
	Restart
)

// Command is one parsed shell instruction. Name is only set for Restart.
type Command struct {
	Kind Kind
	Name string
}

// Shell reads lines from in, writes help/version/unknown-command responses
// to out, and emits everything else on Commands. Commands is closed when
// in is exhausted or a StopAll/StopWraith command is read.
type Shell struct {
	in       io.Reader
	out      io.Writer
	version  string
	Commands chan Command
}

// New returns a Shell reading from in and writing prompts/help to out.
func New(in io.Reader, out io.Writer, version string) *Shell {
	return &Shell{in: in, out: out, version: version, Commands: make(chan Command)}
}

// Run blocks reading lines from in until EOF or a terminal command, closing
// Commands on return. Intended to run on its own goroutine.
func (s *Shell) Run() {
	defer close(s.Commands)

	scanner := bufio.NewScanner(s.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := fields[0]

		switch cmd {
		case "help", "?":
			s.printHelp()
		case "version":
			fmt.Fprintln(s.out, s.version)
		case "stopall":
			s.Commands <- Command{Kind: StopAll}
			return
		case "stopwraith":
			s.Commands <- Command{Kind: StopWraith}
			return
		case "restartall":
			s.Commands <- Command{Kind: RestartAll}
		case "restart":
			if len(fields) < 2 {
				fmt.Fprintln(s.out, `"restart" needs a server name`)
				continue
			}
			s.Commands <- Command{Kind: Restart, Name: fields[1]}
		case "reload":
			s.Commands <- Command{Kind: Reload}
		case "stopold":
			s.Commands <- Command{Kind: StopOld}
		default:
			// Unknown commands are ignored, per spec.
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `commands:
  help, ?            show this message
  version            print build version
  stopall            stop every server and exit
  stopwraith         write a restore file and exit, leaving servers running
  restartall         stop every server; the next poll starts them again
  restart <name>     stop one server; the next poll starts it again
  reload             re-read the config file
  stopold            stop every server removed from the last reload`)
}
