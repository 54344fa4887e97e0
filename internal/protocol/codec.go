package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// wire is the JSON configuration for controller traffic. Map keys are left
// unsorted; the controller never relies on key order.
var wire = sonic.ConfigDefault

// DecodeControl parses one controller command.
func DecodeControl(data []byte) (ControlCommand, error) {
	var cmd ControlCommand
	if err := wire.Unmarshal(data, &cmd); err != nil {
		return ControlCommand{}, fmt.Errorf("decode control command: %w", err)
	}
	return cmd, nil
}

// EncodeControl serializes a controller command.
func EncodeControl(cmd ControlCommand) ([]byte, error) {
	return wire.Marshal(cmd)
}

// EncodeEvent serializes one controller event.
func EncodeEvent(evt ControlEvent) ([]byte, error) {
	data, err := wire.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", evt.Type, err)
	}
	return data, nil
}

// DecodeEvent parses one controller event.
func DecodeEvent(data []byte) (ControlEvent, error) {
	var evt ControlEvent
	if err := wire.Unmarshal(data, &evt); err != nil {
		return ControlEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}

// Encodable reports whether v can travel in an event payload. Values exported
// from a sandbox may hold NaN, functions or cycles that the codec rejects.
func Encodable(v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	_, err = wire.Marshal(v)
	return err
}
