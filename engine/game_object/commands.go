package game_object

import "sync"

// AnimCommandKind selects what an AnimCommand does.
type AnimCommandKind int

const (
	// AnimPlay starts the animation at AnimCommand.Index from time zero.
	AnimPlay AnimCommandKind = iota

	// AnimStop stops the active animation and leaves the pose where it is.
	AnimStop
)

func (k AnimCommandKind) String() string {
	switch k {
	case AnimPlay:
		return "Play"
	case AnimStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// AnimCommand is one queued animation request.
type AnimCommand struct {
	Kind  AnimCommandKind
	Index int
}

// CommandQueue is a mutex-guarded FIFO of animation commands. The tick goroutine pushes and the
// animator drains once per update.
type CommandQueue struct {
	mu       sync.Mutex
	commands []AnimCommand
}

// NewCommandQueue returns an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{}
}

// Push appends cmd.
func (q *CommandQueue) Push(cmd AnimCommand) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commands = append(q.commands, cmd)
}

// Drain removes and returns every queued command in push order.
func (q *CommandQueue) Drain() []AnimCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.commands
	q.commands = nil
	return out
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}
