package main

import (
	"context"
	"fmt"

	"mpc-drive-core/control"
	"mpc-drive-core/utils"
)

// Signal names the mirror frame must define in the signal map.
const (
	sigSteering = "steering_cmd_norm"
	sigThrottle = "throttle_cmd_norm"
)

// CommandMirror retransmits each issued command on a CAN bus, letting
// bench hardware replay the simulator's command stream. Mirror failures
// are logged and dropped; they never stall the control loop.
type CommandMirror struct {
	log    *utils.Logger
	cmap   *utils.CANMap
	frame  string
	writer utils.CANWriter
}

func NewCommandMirror(ctx context.Context, iface, mapPath, frameName string, log *utils.Logger) (*CommandMirror, error) {
	cmap, err := utils.LoadCANMap(mapPath)
	if err != nil {
		return nil, fmt.Errorf("load signal map: %w", err)
	}
	if _, err := cmap.FrameByName(frameName); err != nil {
		return nil, err
	}
	writer, err := utils.NewSocketCANWriter(ctx, iface)
	if err != nil {
		return nil, err
	}
	log.Info("CAN mirror on %s frame=%s", iface, frameName)
	return &CommandMirror{log: log, cmap: cmap, frame: frameName, writer: writer}, nil
}

func (m *CommandMirror) Send(ctx context.Context, cmd control.Command) {
	frame, err := m.cmap.EncodeFrame(m.frame, map[string]float64{
		sigSteering: cmd.Steering,
		sigThrottle: cmd.Throttle,
	})
	if err != nil {
		m.log.Error("CAN encode failed: %v", err)
		return
	}
	if err := m.writer.WriteFrame(ctx, frame); err != nil {
		m.log.Error("CAN transmit failed: %v", err)
	}
}

func (m *CommandMirror) Close() {
	if m.writer != nil {
		_ = m.writer.Close()
	}
}
