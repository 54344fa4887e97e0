package transport

import (
	"fmt"
	"sync"

	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/shared/utils"
)

// Submitter accepts controller commands. The orchestrator implements it.
type Submitter interface {
	Submit(cmd protocol.ControlCommand) bool
}

// Sink receives events addressed to the controller.
type Sink interface {
	Emit(evt protocol.ControlEvent)
}

// Fanout delivers every event to each of its sinks in order. Sinks may be
// added while events flow.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout creates a fanout over sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add appends s to the delivery list.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Emit implements Sink.
func (f *Fanout) Emit(evt protocol.ControlEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sinks {
		s.Emit(evt)
	}
}

// ParseCommand validates and decodes one controller message.
func ParseCommand(v *utils.JSONSizeValidator, data []byte) (protocol.ControlCommand, error) {
	if err := v.ValidateSize(data); err != nil {
		return protocol.ControlCommand{}, err
	}
	cmd, err := protocol.DecodeControl(data)
	if err != nil {
		return protocol.ControlCommand{}, err
	}
	if cmd.Type == "" {
		return protocol.ControlCommand{}, fmt.Errorf("control command without type")
	}
	if cmd.Payload == nil {
		return cmd, nil
	}

	if err := utils.ValidateDepth(len(cmd.Payload.Path), utils.MaxTreeDepth); err != nil {
		return protocol.ControlCommand{}, fmt.Errorf("path: %w", err)
	}
	for _, id := range cmd.Payload.Path {
		if err := utils.ValidateID(string(id), "path element", true); err != nil {
			return protocol.ControlCommand{}, err
		}
	}
	if cmd.Payload.Options != nil {
		if err := utils.ValidateDepth(cmd.Payload.Options.Depth(), utils.MaxTreeDepth); err != nil {
			return protocol.ControlCommand{}, fmt.Errorf("options: %w", err)
		}
	}
	return cmd, nil
}
