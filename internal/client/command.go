package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vovakirdan/wirerelay/internal/errs"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// CommandKind says what a line of local input asks for.
type CommandKind int

const (
	CommandNone CommandKind = iota // blank line
	CommandSend
	CommandQuit
)

// Command is one parsed line of local input.
type Command struct {
	Kind    CommandKind
	Message proto.Message
}

var errMissingPath = errors.New("missing path")

// ParseCommand maps one line to a command. Command words are case-insensitive:
//
//	.file <path>   send the file as File(basename, bytes)
//	.image <path>  send the file as Image(bytes)
//	.quit, .q      end the session
//
// Anything else is sent verbatim as Text. Unreadable files are LocalInput errors.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Command{Kind: CommandNone}, nil
	}

	word, rest, _ := strings.Cut(strings.TrimLeft(line, " \t"), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(word) {
	case ".quit", ".q":
		return Command{Kind: CommandQuit}, nil
	case ".file":
		data, err := readAttachment(".file", rest)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandSend, Message: proto.File(filepath.Base(rest), data)}, nil
	case ".image":
		data, err := readAttachment(".image", rest)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandSend, Message: proto.Image(data)}, nil
	default:
		return Command{Kind: CommandSend, Message: proto.Text(line)}, nil
	}
}

func readAttachment(op, path string) ([]byte, error) {
	if path == "" {
		return nil, errs.LocalInput(op, errMissingPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.LocalInput(op, fmt.Errorf("read %s: %w", path, err))
	}
	return data, nil
}
