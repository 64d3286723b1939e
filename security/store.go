package security

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/logging"
	"github.com/go-zigbee/znp/nvram"
	"github.com/go-zigbee/znp/znperrors"
)

// FirmwareGeneration selects which NVRAM surface and table layout the
// security store uses to reach a given piece of network state — it is the
// same classification commands.Generation uses to gate MT commands (§4.6,
// §4.9: "zigbee.firmwareGeneration(...) security.FirmwareGeneration").
type FirmwareGeneration = commands.Generation

const (
	GenerationZStack12      = commands.GenerationZStack12
	GenerationZStack30      = commands.GenerationZStack30
	GenerationZStack330Plus = commands.GenerationZStack330Plus
)

var emptyExtendedPANID = [8]byte{}

// Store layers backup/restore and frame-counter bookkeeping on top of an
// nvram.Store, grounded directly on zigpy_znp/znp/security.py (read in full).
type Store struct {
	nv  *nvram.Store
	gen FirmwareGeneration
	log zerolog.Logger
}

// New wraps nv with the security operations appropriate to gen.
func New(nv *nvram.Store, gen FirmwareGeneration) *Store {
	return &Store{nv: nv, gen: gen, log: logging.For("security")}
}

// --- TC frame counter ------------------------------------------------------

// ReadTCFrameCounter returns the Trust Center's outgoing network frame
// counter, whose storage location depends on firmware generation
// (security.py's read_tc_frame_counter): a NWKKEY item on 1.2, and the
// network security-material table (legacy or extended) matching
// extendedPANID on 3.0/3.30+.
func (s *Store) ReadTCFrameCounter(ctx context.Context, extendedPANID [8]byte) (uint32, error) {
	if s.gen == GenerationZStack12 {
		raw, err := s.nv.Read(ctx, nvram.IDNwkKey)
		if err != nil {
			return 0, fmt.Errorf("security: read tc frame counter: %w", err)
		}
		key, err := decodeActiveKeyItems(raw)
		if err != nil {
			return 0, fmt.Errorf("security: read tc frame counter: %w", err)
		}
		return key.FrameCounter, nil
	}

	entries, err := s.readSecMaterialTable(ctx)
	if err != nil {
		return 0, fmt.Errorf("security: read tc frame counter: %w", err)
	}

	var globalEntry *NwkSecMaterialDesc
	for i, entry := range entries {
		if entry.ExtendedPANID == extendedPANID {
			return entry.FrameCounter, nil
		}
		if entry.ExtendedPANID == globalExtendedPANID {
			globalEntry = &entries[i]
		}
	}
	if globalEntry == nil {
		return 0, fmt.Errorf("security: no security material entry for this network: %w", znperrors.ErrKeyNotFound)
	}
	return globalEntry.FrameCounter, nil
}

// WriteTCFrameCounter writes counter to the same location ReadTCFrameCounter
// reads from (security.py's write_tc_frame_counter).
func (s *Store) WriteTCFrameCounter(ctx context.Context, extendedPANID [8]byte, counter uint32) error {
	if s.gen == GenerationZStack12 {
		raw, err := s.nv.Read(ctx, nvram.IDNwkKey)
		if err != nil {
			return fmt.Errorf("security: write tc frame counter: %w", err)
		}
		key, err := decodeActiveKeyItems(raw)
		if err != nil {
			return fmt.Errorf("security: write tc frame counter: %w", err)
		}
		key.FrameCounter = counter
		if err := s.nv.Write(ctx, nvram.IDNwkKey, encodeActiveKeyItems(key), false); err != nil {
			return fmt.Errorf("security: write tc frame counter: %w", err)
		}
		return nil
	}

	entry := NwkSecMaterialDesc{FrameCounter: counter, ExtendedPANID: extendedPANID}
	fill := NwkSecMaterialDesc{FrameCounter: 0, ExtendedPANID: emptyExtendedPANID}

	if s.gen == GenerationZStack30 {
		err := s.nv.LegacyTableWrite(ctx, nvram.LegacyNwkSecMaterialStart, nvram.LegacyNwkSecMaterialEnd,
			[][]byte{EncodeNwkSecMaterialDesc(entry)}, EncodeNwkSecMaterialDesc(fill))
		if err != nil {
			return fmt.Errorf("security: write tc frame counter: %w", err)
		}
		return nil
	}

	if err := s.nv.TableWrite(ctx, nvram.SysIDZStack, nvram.ItemNwkSecMaterial,
		[][]byte{EncodeNwkSecMaterialDesc(entry)}, EncodeNwkSecMaterialDesc(fill)); err != nil {
		return fmt.Errorf("security: write tc frame counter: %w", err)
	}
	return nil
}

func (s *Store) readSecMaterialTable(ctx context.Context) ([]NwkSecMaterialDesc, error) {
	decode := func(raw []byte) (any, error) { return DecodeNwkSecMaterialDesc(raw) }

	var rows []any
	var err error
	if s.gen == GenerationZStack30 {
		rows, err = s.nv.LegacyTableRead(ctx, nvram.LegacyNwkSecMaterialStart, nvram.LegacyNwkSecMaterialEnd, decode)
	} else {
		rows, err = s.nv.TableRead(ctx, nvram.SysIDZStack, nvram.ItemNwkSecMaterial, decode)
	}
	if err != nil {
		return nil, err
	}

	out := make([]NwkSecMaterialDesc, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.(NwkSecMaterialDesc))
	}
	return out, nil
}

// nwkActiveKeyItems mirrors structs.py's NwkActiveKeyItems: the active
// network key descriptor plus its outgoing frame counter, stored at the
// legacy NWKKEY NVID on 1.2 firmware.
type nwkActiveKeyItems struct {
	KeySeqNum    uint8
	Key          [16]byte
	FrameCounter uint32
}

func decodeActiveKeyItems(raw []byte) (nwkActiveKeyItems, error) {
	if len(raw) < 21 {
		return nwkActiveKeyItems{}, fmt.Errorf("security: NWKKEY item too short (%d bytes): %w", len(raw), znperrors.ErrInvalidCommandResponse)
	}
	var k nwkActiveKeyItems
	k.KeySeqNum = raw[0]
	copy(k.Key[:], raw[1:17])
	k.FrameCounter = uint32(raw[17]) | uint32(raw[18])<<8 | uint32(raw[19])<<16 | uint32(raw[20])<<24
	return k, nil
}

func encodeActiveKeyItems(k nwkActiveKeyItems) []byte {
	out := make([]byte, 21)
	out[0] = k.KeySeqNum
	copy(out[1:17], k.Key[:])
	out[17] = byte(k.FrameCounter)
	out[18] = byte(k.FrameCounter >> 8)
	out[19] = byte(k.FrameCounter >> 16)
	out[20] = byte(k.FrameCounter >> 24)
	return out
}
