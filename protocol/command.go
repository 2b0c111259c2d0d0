package protocol

import (
	"slices"
	"strings"
)

// MaxCommandRead bounds a single read on the control side of the connection.
const MaxCommandRead = 1024

type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandSwitchCamera
)

func (k CommandKind) String() string {
	switch k {
	case CommandSwitchCamera:
		return "switch_camera"
	default:
		return "unknown"
	}
}

// Command is a control message sent viewer to device. On the wire it is the
// raw argument text; a trailing newline separates consecutive commands.
type Command struct {
	Kind CommandKind
	Arg  string
}

func SwitchCamera(path string) Command {
	return Command{Kind: CommandSwitchCamera, Arg: path}
}

func (c Command) Encode() []byte {
	return []byte(c.Arg + "\n")
}

// ParseCommands splits one read chunk into commands. A token is a camera
// switch only if it equals an entry of the allow-list.
func ParseCommands(chunk []byte, allow []string) []Command {
	var cmds []Command
	for _, line := range strings.Split(string(chunk), "\n") {
		token := strings.TrimSpace(line)
		if token == "" {
			continue
		}
		if slices.Contains(allow, token) {
			cmds = append(cmds, SwitchCamera(token))
			continue
		}
		cmds = append(cmds, Command{Kind: CommandUnknown, Arg: token})
	}
	return cmds
}

// CommandBuffer reassembles commands that arrive split across reads. Text up
// to the last newline is parsed at once. An unterminated tail is held until
// its newline arrives, except that a tail naming exactly one allow-list entry
// (and no longer entry starting with it) is dispatched right away, so senders
// that never terminate their commands still work.
type CommandBuffer struct {
	allow []string
	tail  []byte
}

func NewCommandBuffer(allow []string) *CommandBuffer {
	return &CommandBuffer{allow: allow}
}

// Feed appends chunk and returns every command it completes.
func (b *CommandBuffer) Feed(chunk []byte) []Command {
	data := append(b.tail, chunk...)
	b.tail = nil

	var cmds []Command
	if i := strings.LastIndexByte(string(data), '\n'); i >= 0 {
		cmds = ParseCommands(data[:i+1], b.allow)
		data = data[i+1:]
	}

	token := strings.TrimSpace(string(data))
	switch {
	case token == "":
	case b.unambiguous(token):
		cmds = append(cmds, SwitchCamera(token))
	case len(data) >= MaxCommandRead:
		cmds = append(cmds, Command{Kind: CommandUnknown, Arg: token})
	default:
		b.tail = append([]byte(nil), data...)
	}
	return cmds
}

// Flush returns the held tail as a command, if any.
func (b *CommandBuffer) Flush() []Command {
	cmds := ParseCommands(b.tail, b.allow)
	b.tail = nil
	return cmds
}

func (b *CommandBuffer) unambiguous(token string) bool {
	if !slices.Contains(b.allow, token) {
		return false
	}
	for _, a := range b.allow {
		if a != token && strings.HasPrefix(a, token) {
			return false
		}
	}
	return true
}
