package tele

import "fmt"

// Remote command opcode, first payload byte on TopicCommand.
type Command byte

const (
	CommandNormal Command = 0x00
	CommandKill   Command = 0x01
	CommandLimp   Command = 0x02
)

func (c Command) String() string {
	switch c {
	case CommandNormal:
		return "normal"
	case CommandKill:
		return "kill"
	case CommandLimp:
		return "limp"
	}
	return fmt.Sprintf("unknown(%02x)", byte(c))
}
