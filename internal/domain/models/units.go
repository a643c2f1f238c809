package models

import "strings"

// Unit enumerates the packaging units a stock record may be kept in.
type Unit string

const (
	UnitPacket  Unit = "packet"
	UnitPackets Unit = "packets"
	UnitPacks   Unit = "packs"
	UnitKg      Unit = "kg"
	UnitPiece   Unit = "piece"
	UnitPieces  Unit = "pieces"
	UnitDozen   Unit = "dozen"
	UnitBox     Unit = "box"
	UnitBoxes   Unit = "boxes"
	UnitLiter   Unit = "l"
	UnitLiters  Unit = "liters"
)

var validUnits = map[Unit]struct{}{
	UnitPacket: {}, UnitPackets: {}, UnitPacks: {}, UnitKg: {}, UnitPiece: {}, UnitPieces: {},
	UnitDozen: {}, UnitBox: {}, UnitBoxes: {}, UnitLiter: {}, UnitLiters: {},
}

// Normalize lower-cases and trims the unit.
func (u Unit) Normalize() Unit {
	return Unit(strings.ToLower(strings.TrimSpace(string(u))))
}

// Valid reports whether the unit belongs to the supported enumeration.
func (u Unit) Valid() bool {
	_, ok := validUnits[u.Normalize()]
	return ok
}

// Units lists every supported unit.
func Units() []Unit {
	return []Unit{
		UnitPacket, UnitPackets, UnitPacks, UnitKg, UnitPiece, UnitPieces,
		UnitDozen, UnitBox, UnitBoxes, UnitLiter, UnitLiters,
	}
}
