package calo

import (
	"errors"
	"fmt"
)

// Detector geometry. The detector has four modules, each a 64x56 grid of
// channels. Flat channel ids are 1-based and run module-major, row-major
// within a module. Module 0 is only half populated, so ids below
// FirstValidChannel do not exist in hardware.
const (
	NModules          = 4
	RowsPerModule     = 64
	ColsPerModule     = 56
	ChannelsPerModule = RowsPerModule * ColsPerModule // 3584
	MaxChannelID      = NModules * ChannelsPerModule  // 14336
	FirstValidChannel = 1793

	// SpectrumChannels is the size of dense per-channel storage over the
	// populated id range [FirstValidChannel, MaxChannelID].
	SpectrumChannels = MaxChannelID - FirstValidChannel + 1 // 12544

	// TotalCells is the cell count of a whole-detector grid.
	TotalCells = NModules * ChannelsPerModule
)

// ErrChannelRange reports a channel id outside the populated detector range.
var ErrChannelRange = errors.New("channel id outside detector range")

// ChannelPosition locates a channel within the detector grid.
type ChannelPosition struct {
	Module int `json:"module"` // 0-based, < NModules
	Row    int `json:"row"`    // 0-based, < RowsPerModule
	Col    int `json:"col"`    // 0-based, < ColsPerModule
}

// PositionOf maps a flat channel id to its grid position. It is total on
// [FirstValidChannel, MaxChannelID] and rejects everything else with
// ErrChannelRange. Distinct valid ids always map to distinct positions.
func PositionOf(channel uint16) (ChannelPosition, error) {
	if channel < FirstValidChannel || channel > MaxChannelID {
		return ChannelPosition{}, fmt.Errorf("%w: %d", ErrChannelRange, channel)
	}
	i := int(channel) - 1
	return ChannelPosition{
		Module: i / ChannelsPerModule,
		Row:    (i % ChannelsPerModule) / ColsPerModule,
		Col:    i % ColsPerModule,
	}, nil
}

// ChannelOf is the inverse of PositionOf.
func ChannelOf(pos ChannelPosition) (uint16, error) {
	if pos.Module < 0 || pos.Module >= NModules ||
		pos.Row < 0 || pos.Row >= RowsPerModule ||
		pos.Col < 0 || pos.Col >= ColsPerModule {
		return 0, fmt.Errorf("%w: module=%d row=%d col=%d", ErrChannelRange, pos.Module, pos.Row, pos.Col)
	}
	id := pos.Module*ChannelsPerModule + pos.Row*ColsPerModule + pos.Col + 1
	if id < FirstValidChannel {
		return 0, fmt.Errorf("%w: %d (module 0 is half populated)", ErrChannelRange, id)
	}
	return uint16(id), nil
}

// SpectrumIndex maps a valid channel id to its index in dense per-channel
// storage. The caller must have validated the id via PositionOf.
func SpectrumIndex(channel uint16) int {
	return int(channel) - FirstValidChannel
}

// cellIndex flattens a position into whole-detector grid storage.
func cellIndex(p ChannelPosition) int {
	return (p.Module*RowsPerModule+p.Row)*ColsPerModule + p.Col
}
