// Package commands defines the handler contract and the name -> handler
// registry the dispatcher resolves commands against.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/wabot/internal/message"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

// ErrDuplicate is returned when a name or alias is already registered.
var ErrDuplicate = errors.New("command already registered")

// HandlerFunc runs a command. Returning an *OperationalError shows its
// message to the user; any other error is logged only.
type HandlerFunc func(ctx context.Context, req *message.Request, t transport.Transport) error

// Command is one registered handler.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string // e.g. "<reason>", shown in help
	OwnerOnly   bool
	Handler     HandlerFunc
}

// Registry maps lower-cased names and aliases to commands. Safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command // canonical name -> command
	index    map[string]*Command // name or alias -> command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		index:    make(map[string]*Command),
	}
}

// Register adds cmd under its name and aliases.
func (r *Registry) Register(cmd Command) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("invalid command name %q", cmd.Name)
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", name)
	}
	cmd.Name = name

	keys := []string{name}
	for _, a := range cmd.Aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" && a != name {
			keys = append(keys, a)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range keys {
		if _, ok := r.index[k]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicate, k)
		}
	}
	c := &cmd
	c.Aliases = keys[1:]
	r.commands[name] = c
	for _, k := range keys {
		r.index[k] = c
	}
	return nil
}

// MustRegister is Register for static setup; it panics on error.
func (r *Registry) MustRegister(cmds ...Command) {
	for _, c := range cmds {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Lookup resolves a name or alias, case-insensitively.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.index[strings.ToLower(name)]
	if !ok {
		return Command{}, false
	}
	return *c, true
}

// List returns every command sorted by name.
func (r *Registry) List() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, *c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of commands (aliases not counted).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}
