package cli

import (
	"fmt"
	"strings"
	"time"

	"matchmate-chat/internal/domain/chat"
	matchmate_errors "matchmate-chat/pkg/errors"
)

type commandKind int

const (
	cmdText commandKind = iota
	cmdReact
	cmdDelete
	cmdVideo
	cmdPhoto
	cmdBlock
	cmdUnblock
	cmdVisible
	cmdHelp
	cmdQuit
)

type command struct {
	kind       commandKind
	text       string
	key        string
	emoji      string
	deleteType chat.DeleteType
	path       string
	duration   time.Duration
	visible    bool
}

const helpText = `commands:
  <text>                         send a message
  /react <id> <emoji>            react to a message (same emoji again removes it)
  /delete <id> [forMe|forEveryone]
  /video <file> [duration]       send a recorded clip, e.g. /video clip.mp4 12s
  /photo                         capture a photo (needs a camera)
  /block, /unblock
  /away, /back                   leave or return to the conversation view
  /quit`

// parseCommand turns one input line into a command.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, fmt.Errorf("%w: empty input", matchmate_errors.ErrInvalidInput)
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdText, text: line}, nil
	}

	fields := strings.Fields(line)
	args := fields[1:]
	switch fields[0] {
	case "/react":
		if len(args) != 2 {
			return command{}, usageError("/react <id> <emoji>")
		}
		return command{kind: cmdReact, key: args[0], emoji: args[1]}, nil
	case "/delete":
		if len(args) < 1 || len(args) > 2 {
			return command{}, usageError("/delete <id> [forMe|forEveryone]")
		}
		deleteType := chat.DeleteForMe
		if len(args) == 2 {
			deleteType = chat.DeleteType(args[1])
			if !deleteType.Valid() {
				return command{}, usageError("/delete <id> [forMe|forEveryone]")
			}
		}
		return command{kind: cmdDelete, key: args[0], deleteType: deleteType}, nil
	case "/video":
		if len(args) < 1 || len(args) > 2 {
			return command{}, usageError("/video <file> [duration]")
		}
		c := command{kind: cmdVideo, path: args[0]}
		if len(args) == 2 {
			d, err := time.ParseDuration(args[1])
			if err != nil || d < 0 {
				return command{}, usageError("/video <file> [duration]")
			}
			c.duration = d
		}
		return c, nil
	case "/photo":
		return command{kind: cmdPhoto}, nil
	case "/block":
		return command{kind: cmdBlock}, nil
	case "/unblock":
		return command{kind: cmdUnblock}, nil
	case "/away":
		return command{kind: cmdVisible, visible: false}, nil
	case "/back":
		return command{kind: cmdVisible, visible: true}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("%w: unknown command %s (try /help)", matchmate_errors.ErrInvalidInput, fields[0])
}

func usageError(usage string) error {
	return fmt.Errorf("%w: usage %s", matchmate_errors.ErrInvalidInput, usage)
}
