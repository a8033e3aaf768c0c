package park

import "fmt"

// Money is stored in the smallest currency unit.
type Money int64

// MoneyUnknown marks a cost that could not be computed.
const MoneyUnknown Money = 0

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

type PlayerID uint32

// ServerPlayer is the id the authority uses for actions it issues itself.
const ServerPlayer PlayerID = 0

type RideID uint16

// RideNull is never allocated.
const RideNull RideID = 0xFFFF

type GuestID uint32

// Expenditure classifies what money was spent on.
type Expenditure uint8

const (
	ExpenditureNone Expenditure = iota
	ExpenditureRideConstruction
	ExpenditureLandscaping
	ExpenditureParkCommands
)

func (e Expenditure) String() string {
	switch e {
	case ExpenditureRideConstruction:
		return "ride_construction"
	case ExpenditureLandscaping:
		return "landscaping"
	case ExpenditureParkCommands:
		return "park_commands"
	default:
		return "none"
	}
}

// Rules are the game-mode switches that gate what actions may do.
type Rules struct {
	Sandbox      bool `json:"sandbox" yaml:"sandbox"`
	Paused       bool `json:"paused" yaml:"paused"`
	BuildInPause bool `json:"build_in_pause" yaml:"build_in_pause"`
	NoMoney      bool `json:"no_money" yaml:"no_money"`
	Editor       bool `json:"editor" yaml:"editor"`
}

// Limits bound the size of the park.
type Limits struct {
	Width             int32
	Height            int32
	MaxTileElements   int
	MaxMapElements    int
	MaxRides          int
	MaxStations       int
	MaxHeight         int32
	MaxRideNameLength int
	MaxCash           Money
}

func DefaultLimits() Limits {
	return Limits{
		Width:             64,
		Height:            64,
		MaxTileElements:   16,
		MaxMapElements:    64 * 64 * 8,
		MaxRides:          255,
		MaxStations:       4,
		MaxHeight:         255 * HeightStep,
		MaxRideNameLength: 32,
		MaxCash:           100_000_000,
	}
}
