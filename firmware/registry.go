package firmware

import (
	"errors"
	"sync"

	"gopins/core"
)

// ErrUnknownCommand is returned by Dispatch for an unregistered message ID
var ErrUnknownCommand = errors.New("unknown command")

type unknownCommandError uint16

func (e unknownCommandError) Error() string {
	return "unknown command " + core.Itoa(int(e))
}

func (e unknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// Handler handles a command, decoding its own arguments from data
type Handler func(data *[]byte) error

// Command is one registered message. Responses have no handler.
type Command struct {
	ID      uint16
	Name    string
	Params  string // dictionary parameter list, e.g. "pin=%c value=%c"
	Handler Handler
}

// Format returns the dictionary format string of the command
func (c *Command) Format() string {
	if c.Params == "" {
		return c.Name
	}
	return c.Name + " " + c.Params
}

// Registry assigns message IDs in registration order
type Registry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command. Registering a name twice returns the first ID.
func (r *Registry) Register(name, params string, handler Handler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++
	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Params:  params,
		Handler: handler,
	}
	r.nameToID[name] = id
	return id
}

// RegisterResponse adds a device-to-host message
func (r *Registry) RegisterResponse(name, params string) uint16 {
	return r.Register(name, params, nil)
}

// Lookup retrieves a command by ID
func (r *Registry) Lookup(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// ID returns the ID registered for name
func (r *Registry) ID(name string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	return id, ok
}

// Count returns the number of registered messages
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for cmdID
func (r *Registry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.Lookup(cmdID)
	if !ok || cmd.Handler == nil {
		return unknownCommandError(cmdID)
	}
	return cmd.Handler(data)
}

// CommandsAndResponses returns format string to ID maps for the dictionary.
// Commands have handlers (host to device), responses don't.
func (r *Registry) CommandsAndResponses() (map[string]int, map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make(map[string]int)
	responses := make(map[string]int)
	for id, cmd := range r.commands {
		if cmd.Handler != nil {
			commands[cmd.Format()] = int(id)
		} else {
			responses[cmd.Format()] = int(id)
		}
	}
	return commands, responses
}
