package srf02

import "time"

const (
	Address = 0x70 // Default 7-bit address (0xE0 on the datasheet)

	RegisterCommand  = 0x00 // Write: command. Read: software revision
	RegisterUnused   = 0x01
	RegisterRangeHi  = 0x02
	RegisterRangeLo  = 0x03
	RegisterAutotune = 0x04 // Minimum range high byte

	CommandRangeInch = 0x50
	CommandRangeCM   = 0x51
	CommandRangeUS   = 0x52

	Busy = 0xFF // Software revision reads 0xFF while ranging

	RangingDelay = 70 * time.Millisecond // Time for one ranging to complete
	MinRange     = 16                    // cm
	MaxRange     = 600                   // cm
	BurstSize    = 5                     // Pings averaged into one reading
	QualityDecay = 0.9                   // Decay of the running variance
)
