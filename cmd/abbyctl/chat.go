package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/boristopalov/abby/internal/channel"
	"github.com/boristopalov/abby/internal/events"
)

func newChatCommand(cli *cliContext) *cobra.Command {
	var sessionID, project string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "open an interactive chat session against abbyd",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if project == "" {
				return fmt.Errorf("--project is required")
			}
			if sessionID == "" {
				// A fresh session each run means a fresh mixer
				// re-index; pass --session to resume one instead.
				sessionID = uuid.NewString()
			}
			return runChat(cli.addr, sessionID, project)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to attach as (default: a new random id)")
	cmd.Flags().StringVar(&project, "project", "", "project name to attach to (required)")
	return cmd
}

func runChat(addr, sessionID, project string) error {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer nc.Close()

	enc := json.NewEncoder(nc)
	if err := enc.Encode(channel.Inbound{Attach: &channel.AttachRequest{SessionID: sessionID, Project: project}}); err != nil {
		return fmt.Errorf("send attach: %w", err)
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	stdin := bufio.NewReader(os.Stdin)

	frames := make(chan events.Event)
	go readFrames(nc, frames)

	if interactive {
		fmt.Printf("attached to %q as session %q. Type a message and press enter (Ctrl-D to quit).\n", project, sessionID)
	}
	if err := drainUntilIndexed(frames, stdin, interactive); err != nil {
		return err
	}

	for {
		if interactive {
			fmt.Print("> ")
		}
		line, err := stdin.ReadString('\n')
		text := strings.TrimSpace(line)
		if text != "" {
			if err := enc.Encode(channel.Inbound{Message: &text}); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
			if err := drainUntilEndMessage(enc, frames, stdin, interactive); err != nil {
				return err
			}
		}
		if err != nil {
			return nil
		}
	}
}

// drainUntilIndexed prints frames as they arrive until the initial
// terminal indexing_status closes out the attach flow.
func drainUntilIndexed(frames <-chan events.Event, stdin *bufio.Reader, interactive bool) error {
	for ev := range frames {
		if err := handleFrame(nil, ev, stdin, interactive); err != nil {
			return err
		}
		if ev.Kind == events.KindIndexingStatus && ev.Indexing != nil && !ev.Indexing.IsIndexing {
			return nil
		}
	}
	return fmt.Errorf("connection closed before indexing completed")
}

func readFrames(nc net.Conn, out chan<- events.Event) {
	defer close(out)
	dec := json.NewDecoder(nc)
	for {
		var ev events.Event
		if err := dec.Decode(&ev); err != nil {
			return
		}
		out <- ev
	}
}

// drainUntilEndMessage prints every frame for the turn just submitted,
// prompting for approval decisions as they arrive, until the turn's
// end_message closes it out.
func drainUntilEndMessage(enc *json.Encoder, frames <-chan events.Event, stdin *bufio.Reader, interactive bool) error {
	for ev := range frames {
		if err := handleFrame(enc, ev, stdin, interactive); err != nil {
			return err
		}
		if ev.Kind == events.KindEndMessage {
			return nil
		}
	}
	return fmt.Errorf("connection closed mid-turn")
}

func handleFrame(enc *json.Encoder, ev events.Event, stdin *bufio.Reader, interactive bool) error {
	switch ev.Kind {
	case events.KindText:
		fmt.Print(ev.Text)
	case events.KindEndMessage:
		fmt.Println()
	case events.KindParameterChange:
		if ev.ParameterChange != nil {
			c := ev.ParameterChange
			fmt.Printf("\n[parameter changed] %s / %s / %s: %.3f -> %.3f\n", c.TrackName, c.DeviceName, c.ParameterName, c.OldValue, c.NewValue)
		}
	case events.KindError:
		fmt.Printf("\n[error] %s\n", ev.ErrorMessage)
	case events.KindIndexingStatus:
		if ev.Indexing != nil && interactive {
			fmt.Printf("\n[indexing %v]\n", ev.Indexing.Progress)
		}
	case events.KindApprovalRequired:
		return promptApprovals(enc, ev, stdin)
	}
	return nil
}

// promptApprovals asks the operator yes/no for every mutating call in
// the request and sends the decisions back as an approvals frame. It
// reads from the same stdin reader the main input loop uses, so a
// fast typist's next line of chat input is never swallowed by a
// throwaway reader's read-ahead buffer.
func promptApprovals(enc *json.Encoder, ev events.Event, stdin *bufio.Reader) error {
	decisions := make(map[string]bool)
	for _, req := range ev.Approvals {
		for _, call := range req.Calls {
			fmt.Printf("\napprove %s(%v)? [y/N] ", call.Name, call.Arguments)
			line, _ := stdin.ReadString('\n')
			decisions[call.ID] = strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
		}
	}
	return enc.Encode(channel.Inbound{Approvals: decisions})
}
