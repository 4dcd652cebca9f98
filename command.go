package sup

// Command is a control operation understood by the daemon.
// The wire code of a command is its ordinal.
type Command uint8

const (
	// CommandStart starts the program
	CommandStart Command = iota
	// CommandStop stops the program
	CommandStop
	// CommandRestart stops and starts the program
	CommandRestart
	// CommandKill kills the program and all of its child processes
	CommandKill
	// CommandReload reloads the program configuration
	CommandReload
	// CommandStatus reports the program status
	CommandStatus
	// CommandExit terminates the daemon
	CommandExit
	// CommandUnknown is the decode target for anything unrecognized.
	// Handlers must reject it rather than act on it.
	CommandUnknown
)

// Command string constants
const (
	cmdStartStr   = "start"
	cmdStopStr    = "stop"
	cmdRestartStr = "restart"
	cmdKillStr    = "kill"
	cmdReloadStr  = "reload"
	cmdStatusStr  = "status"
	cmdExitStr    = "exit"
	cmdUnknownStr = "unknown"
)

// Commands returns the seven named commands in wire order
func Commands() []Command {
	return []Command{
		CommandStart,
		CommandStop,
		CommandRestart,
		CommandKill,
		CommandReload,
		CommandStatus,
		CommandExit,
	}
}

// String returns the command-line name of the command
func (c Command) String() string {
	switch c {
	case CommandStart:
		return cmdStartStr
	case CommandStop:
		return cmdStopStr
	case CommandRestart:
		return cmdRestartStr
	case CommandKill:
		return cmdKillStr
	case CommandReload:
		return cmdReloadStr
	case CommandStatus:
		return cmdStatusStr
	case CommandExit:
		return cmdExitStr
	default:
		return cmdUnknownStr
	}
}

// Description returns a one-line help text for the command
func (c Command) Description() string {
	switch c {
	case CommandStart:
		return "start program asynchronously"
	case CommandStop:
		return "stop program asynchronously"
	case CommandRestart:
		return "restart program asynchronously"
	case CommandKill:
		return "kill program and all child processes"
	case CommandReload:
		return "reload program"
	case CommandStatus:
		return "print status of program"
	case CommandExit:
		return "exit the sup daemon and the process asynchronously"
	default:
		return "unrecognized command"
	}
}

// Byte returns the wire code for this command
func (c Command) Byte() byte {
	if c > CommandUnknown {
		return byte(CommandUnknown)
	}
	return byte(c)
}

// ParseCommand maps a command-line name to its Command.
// Unrecognized names yield CommandUnknown.
func ParseCommand(name string) Command {
	switch name {
	case cmdStartStr:
		return CommandStart
	case cmdStopStr:
		return CommandStop
	case cmdRestartStr:
		return CommandRestart
	case cmdKillStr:
		return CommandKill
	case cmdReloadStr:
		return CommandReload
	case cmdStatusStr:
		return CommandStatus
	case cmdExitStr:
		return CommandExit
	default:
		return CommandUnknown
	}
}

// DecodeCommand maps wire bytes to a Command. It is total: input that is not
// exactly one byte in the range of the named commands yields CommandUnknown.
func DecodeCommand(b []byte) Command {
	if len(b) != 1 {
		return CommandUnknown
	}
	if b[0] >= byte(CommandUnknown) {
		return CommandUnknown
	}
	return Command(b[0])
}
