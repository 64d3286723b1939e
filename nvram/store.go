package nvram

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/go-zigbee/znp/commands"
	"github.com/go-zigbee/znp/logging"
	"github.com/go-zigbee/znp/znp"
	"github.com/go-zigbee/znp/znperrors"
)

// chunkSize is the largest value that fits in a single MT frame's
// length-prefixed payload alongside a command's other fields (§4.5).
const chunkSize = 244

// dispatcher is the subset of *znp.ZNP the store depends on.
type dispatcher interface {
	Request(ctx context.Context, req commands.Command, expect znp.BoundPattern) (commands.Command, error)
	Send(req commands.Command) error
	WaitForResponses(patterns ...znp.BoundPattern) *znp.ResponseWaiter
	Capabilities() commands.Capabilities
}

// Store implements the legacy OSAL and extended NVRAM surfaces, grounded
// directly on zigpy_znp's NVRAMHelper (§4.5).
type Store struct {
	znp dispatcher
	log zerolog.Logger
}

// New wraps a connected dispatcher with the NVRAM helper.
func New(z dispatcher) *Store {
	return &Store{znp: z, log: logging.For("nvram")}
}

// --- legacy osal_* surface ------------------------------------------------

// Length returns a legacy NV item's stored length, 0 meaning absent.
func (s *Store) Length(ctx context.Context, id ID) (uint16, error) {
	rsp, err := s.znp.Request(ctx, commands.OSALNVLengthReq{ID: uint16(id)}, znp.Any[commands.OSALNVLengthRsp]())
	if err != nil {
		return 0, fmt.Errorf("nvram: length(%#04x): %w", id, err)
	}
	return uint16(rsp.(commands.OSALNVLengthRsp).Length), nil
}

// Read returns a legacy NV item's full value, reassembling it from 244-byte
// chunks, and falling back to SAPI.ZBReadConfiguration when the coprocessor
// refuses a direct read for security reasons (§4.5).
func (s *Store) Read(ctx context.Context, id ID) ([]byte, error) {
	if lengthQuirks[id] {
		rsp, err := s.znp.Request(ctx, commands.OSALNVReadReq{ID: uint16(id), Offset: 0}, znp.Any[commands.OSALNVReadRsp]())
		if err != nil {
			return nil, fmt.Errorf("nvram: read(%#04x): %w", id, err)
		}
		return rsp.(commands.OSALNVReadRsp).Value, nil
	}

	length, err := s.Length(ctx, id)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, fmt.Errorf("nvram: %#04x: %w", id, znperrors.ErrKeyNotFound)
	}

	data := make([]byte, 0, length)
	for len(data) < int(length) {
		rsp, err := s.znp.Request(ctx, commands.OSALNVReadReq{ID: uint16(id), Offset: uint8(len(data))}, znp.Any[commands.OSALNVReadRsp]())
		if err != nil {
			return nil, fmt.Errorf("nvram: read(%#04x) at offset %d: %w", id, len(data), err)
		}
		read := rsp.(commands.OSALNVReadRsp)
		if read.Status == commands.NVStatusInvalidParameter {
			return s.readSecurityFallback(ctx, id)
		}
		if read.Status != commands.NVStatusSuccess {
			return nil, fmt.Errorf("nvram: read(%#04x): status %s: %w", id, read.Status, znperrors.ErrInvalidCommandResponse)
		}
		data = append(data, read.Value...)
	}
	return data, nil
}

// readSecurityFallback implements §4.5's SAPI fallback: only possible when
// the coprocessor advertises SAPI and the id fits in a single byte.
func (s *Store) readSecurityFallback(ctx context.Context, id ID) ([]byte, error) {
	if !s.znp.Capabilities().Has(commands.CapabilitySAPI) || id > 0xFF {
		return nil, fmt.Errorf("nvram: %#04x cannot be read due to security constraints: %w", id, znperrors.ErrSecurity)
	}
	rsp, err := s.znp.Request(ctx, commands.ZBReadConfigurationReq{ConfigID: uint8(id)}, znp.Any[commands.ZBReadConfigurationRsp]())
	if err != nil {
		return nil, fmt.Errorf("nvram: SAPI fallback read(%#04x): %w", id, err)
	}
	read := rsp.(commands.ZBReadConfigurationRsp)
	if read.Status != commands.StatusSuccess {
		return nil, fmt.Errorf("nvram: SAPI fallback read(%#04x): status %s: %w", id, read.Status, znperrors.ErrSecurity)
	}
	return read.Value, nil
}

// Write serializes value and stores it at id, resizing (delete+init+write)
// when the stored length doesn't match and create is true (§4.5).
func (s *Store) Write(ctx context.Context, id ID, value []byte, create bool) error {
	if len(value) == 0 {
		return fmt.Errorf("nvram: write(%#04x): value must not be empty", id)
	}

	length, err := s.Length(ctx, id)
	if err != nil {
		return err
	}

	if int(length) != len(value) && !lengthQuirks[id] {
		if !create {
			if length == 0 {
				return fmt.Errorf("nvram: %#04x: %w", id, znperrors.ErrKeyNotFound)
			}
			return fmt.Errorf("nvram: %#04x: stored length %d != %d: %w", id, length, len(value), znperrors.ErrLengthMismatch)
		}
		if err := s.resize(ctx, id, length, value); err != nil {
			return err
		}
	}

	for offset := 0; offset < len(value); offset += chunkSize {
		end := offset + chunkSize
		if end > len(value) {
			end = len(value)
		}
		rsp, err := s.znp.Request(ctx, commands.OSALNVWriteExtReq{ID: uint16(id), Offset: uint16(offset), Value: value[offset:end]}, znp.Any[commands.OSALNVWriteExtRsp]())
		if err != nil {
			return fmt.Errorf("nvram: write(%#04x) at offset %d: %w", id, offset, err)
		}
		if rsp.(commands.OSALNVWriteExtRsp).Status != commands.NVStatusSuccess {
			return fmt.Errorf("nvram: write(%#04x) at offset %d: %w", id, offset, znperrors.ErrInvalidCommandResponse)
		}
	}
	return nil
}

func (s *Store) resize(ctx context.Context, id ID, currentLength uint16, value []byte) error {
	if currentLength != 0 {
		if _, err := s.znp.Request(ctx, commands.OSALNVDeleteReq{ID: uint16(id), ItemLen: currentLength}, znp.Any[commands.OSALNVDeleteRsp]()); err != nil {
			return fmt.Errorf("nvram: delete(%#04x) before resize: %w", id, err)
		}
	}

	first := value
	if len(first) > chunkSize {
		first = first[:chunkSize]
	}
	rsp, err := s.znp.Request(ctx, commands.OSALNVItemInitReq{ID: uint16(id), ItemLen: uint16(len(value)), InitData: first}, znp.Any[commands.OSALNVItemInitRsp]())
	if err != nil {
		return fmt.Errorf("nvram: init(%#04x): %w", id, err)
	}
	// NVStatusItemUninit on the init SRSP means "created" (§4.5), not failure.
	if init := rsp.(commands.OSALNVItemInitRsp); init.Status != commands.NVStatusItemUninit {
		return fmt.Errorf("nvram: init(%#04x): unexpected status %s: %w", id, init.Status, znperrors.ErrInvalidCommandResponse)
	}
	return nil
}

// Delete removes a legacy NV item, returning false if it did not exist.
func (s *Store) Delete(ctx context.Context, id ID) (bool, error) {
	length, err := s.Length(ctx, id)
	if err != nil {
		return false, err
	}
	if length == 0 {
		return false, nil
	}
	rsp, err := s.znp.Request(ctx, commands.OSALNVDeleteReq{ID: uint16(id), ItemLen: length}, znp.Any[commands.OSALNVDeleteRsp]())
	if err != nil {
		return false, fmt.Errorf("nvram: delete(%#04x): %w", id, err)
	}
	return rsp.(commands.OSALNVDeleteRsp).Status == commands.NVStatusSuccess, nil
}

// --- extended (sys_id, item_id, sub_id) surface ---------------------------

// ExtLength returns an extended NV item's stored length, 0 meaning absent.
func (s *Store) ExtLength(ctx context.Context, sysID SysID, itemID ItemID, subID uint16) (uint32, error) {
	rsp, err := s.znp.Request(ctx, commands.NVLengthReq{SysID: uint8(sysID), ItemID: uint16(itemID), SubID: subID}, znp.Any[commands.NVLengthRsp]())
	if err != nil {
		return 0, fmt.Errorf("nvram: ext length(%d,%#04x,%d): %w", sysID, itemID, subID, err)
	}
	return rsp.(commands.NVLengthRsp).Length, nil
}

// ExtRead returns an extended NV item's full value (§4.5).
func (s *Store) ExtRead(ctx context.Context, sysID SysID, itemID ItemID, subID uint16) ([]byte, error) {
	length, err := s.ExtLength(ctx, sysID, itemID, subID)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, fmt.Errorf("nvram: (%d,%#04x,%d): %w", sysID, itemID, subID, znperrors.ErrKeyNotFound)
	}

	data := make([]byte, 0, length)
	for uint32(len(data)) < length {
		rsp, err := s.znp.Request(ctx, commands.NVReadReq{
			SysID: uint8(sysID), ItemID: uint16(itemID), SubID: subID,
			Offset: uint16(len(data)), Length: chunkSize,
		}, znp.Any[commands.NVReadRsp]())
		if err != nil {
			return nil, fmt.Errorf("nvram: ext read(%d,%#04x,%d) at offset %d: %w", sysID, itemID, subID, len(data), err)
		}
		read := rsp.(commands.NVReadRsp)
		if read.Status != commands.NVStatusSuccess {
			return nil, fmt.Errorf("nvram: ext read(%d,%#04x,%d): status %s: %w", sysID, itemID, subID, read.Status, znperrors.ErrInvalidCommandResponse)
		}
		if len(read.Value) == 0 {
			break
		}
		data = append(data, read.Value...)
	}
	return data, nil
}

// ExtWrite serializes value to the extended surface, creating or resizing
// the item first if its stored length doesn't match (§4.5).
func (s *Store) ExtWrite(ctx context.Context, sysID SysID, itemID ItemID, subID uint16, value []byte, create bool) error {
	if len(value) == 0 {
		return fmt.Errorf("nvram: ext write(%d,%#04x,%d): value must not be empty", sysID, itemID, subID)
	}

	length, err := s.ExtLength(ctx, sysID, itemID, subID)
	if err != nil {
		return err
	}

	if int(length) != len(value) {
		if !create {
			if length == 0 {
				return fmt.Errorf("nvram: (%d,%#04x,%d): %w", sysID, itemID, subID, znperrors.ErrKeyNotFound)
			}
			return fmt.Errorf("nvram: (%d,%#04x,%d): stored length %d != %d: %w", sysID, itemID, subID, length, len(value), znperrors.ErrLengthMismatch)
		}
		if length != 0 {
			if _, err := s.znp.Request(ctx, commands.NVDeleteReq{SysID: uint8(sysID), ItemID: uint16(itemID), SubID: subID}, znp.Any[commands.NVDeleteRsp]()); err != nil {
				return fmt.Errorf("nvram: ext delete(%d,%#04x,%d) before resize: %w", sysID, itemID, subID, err)
			}
		}
		rsp, err := s.znp.Request(ctx, commands.NVCreateReq{SysID: uint8(sysID), ItemID: uint16(itemID), SubID: subID, Length: uint32(len(value))}, znp.Any[commands.NVCreateRsp]())
		if err != nil {
			return fmt.Errorf("nvram: ext create(%d,%#04x,%d): %w", sysID, itemID, subID, err)
		}
		if create := rsp.(commands.NVCreateRsp); create.Status != commands.NVStatusSuccess && create.Status != commands.NVStatusItemUninit {
			return fmt.Errorf("nvram: ext create(%d,%#04x,%d): status %s: %w", sysID, itemID, subID, create.Status, znperrors.ErrInvalidCommandResponse)
		}
	}

	for offset := 0; offset < len(value); offset += chunkSize {
		end := offset + chunkSize
		if end > len(value) {
			end = len(value)
		}
		rsp, err := s.znp.Request(ctx, commands.NVWriteReq{
			SysID: uint8(sysID), ItemID: uint16(itemID), SubID: subID,
			Offset: uint16(offset), Value: value[offset:end],
		}, znp.Any[commands.NVWriteRsp]())
		if err != nil {
			return fmt.Errorf("nvram: ext write(%d,%#04x,%d) at offset %d: %w", sysID, itemID, subID, offset, err)
		}
		if rsp.(commands.NVWriteRsp).Status != commands.NVStatusSuccess {
			return fmt.Errorf("nvram: ext write(%d,%#04x,%d) at offset %d: %w", sysID, itemID, subID, offset, znperrors.ErrInvalidCommandResponse)
		}
	}
	return nil
}

// ExtDelete removes an extended NV item, returning false if it did not
// exist.
func (s *Store) ExtDelete(ctx context.Context, sysID SysID, itemID ItemID, subID uint16) (bool, error) {
	rsp, err := s.znp.Request(ctx, commands.NVDeleteReq{SysID: uint8(sysID), ItemID: uint16(itemID), SubID: subID}, znp.Any[commands.NVDeleteRsp]())
	if err != nil {
		return false, fmt.Errorf("nvram: ext delete(%d,%#04x,%d): %w", sysID, itemID, subID, err)
	}
	return rsp.(commands.NVDeleteRsp).Status == commands.NVStatusSuccess, nil
}

// --- table helpers ---------------------------------------------------------

// LegacyTableRead walks the contiguous legacy NVID range [start,end],
// decoding each entry that exists and skipping absent ones. Grounded on
// zigpy_znp.nvram.NVRAMHelper.osal_read_table, used for the pre-3.30 TCLK
// and network security-material tables (§4.6).
func (s *Store) LegacyTableRead(ctx context.Context, start, end ID, decode func([]byte) (any, error)) ([]any, error) {
	var out []any
	for id := start; id <= end; id++ {
		raw, err := s.Read(ctx, id)
		if err != nil {
			if errors.Is(err, znperrors.ErrKeyNotFound) {
				continue
			}
			return out, err
		}
		entry, err := decode(raw)
		if err != nil {
			return out, fmt.Errorf("nvram: legacy table %#04x-%#04x entry %#04x: %w", start, end, id, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// LegacyTableWrite writes values into consecutive NVIDs starting at start,
// filling the remainder of the range up to end with fillValue. Grounded on
// zigpy_znp.nvram.NVRAMHelper.osal_write_table.
func (s *Store) LegacyTableWrite(ctx context.Context, start, end ID, values [][]byte, fillValue []byte) error {
	id := start
	for _, v := range values {
		if id > end {
			return fmt.Errorf("nvram: legacy table %#04x-%#04x: too many entries to write", start, end)
		}
		if err := s.Write(ctx, id, v, true); err != nil {
			return err
		}
		id++
	}
	for ; id <= end; id++ {
		if err := s.Write(ctx, id, fillValue, true); err != nil {
			return err
		}
	}
	return nil
}

// tableCapacity probes sub_id from 0 to find how many slots an extended
// table already has allocated on the coprocessor.
func (s *Store) tableCapacity(ctx context.Context, sysID SysID, itemID ItemID) (int, error) {
	capacity := 0
	for {
		length, err := s.ExtLength(ctx, sysID, itemID, uint16(capacity))
		if err != nil {
			return 0, err
		}
		if length == 0 {
			break
		}
		capacity++
	}
	return capacity, nil
}

// TableWrite writes values into consecutive sub_ids of an extended-surface
// table, filling the remainder of the table's existing capacity with
// fillValue. The table's capacity is fixed at compile time on the
// coprocessor, so this never grows it (§4.6: "the security material and
// TCLK tables are small and rewritten completely on every update").
func (s *Store) TableWrite(ctx context.Context, sysID SysID, itemID ItemID, values [][]byte, fillValue []byte) error {
	capacity, err := s.tableCapacity(ctx, sysID, itemID)
	if err != nil {
		return err
	}
	if len(values) > capacity {
		return fmt.Errorf("nvram: table %#04x: %d entries do not fit in capacity %d", itemID, len(values), capacity)
	}
	for subID, v := range values {
		if err := s.ExtWrite(ctx, sysID, itemID, uint16(subID), v, false); err != nil {
			return err
		}
	}
	for subID := len(values); subID < capacity; subID++ {
		if err := s.ExtWrite(ctx, sysID, itemID, uint16(subID), fillValue, false); err != nil {
			return err
		}
	}
	return nil
}

// TableRead walks sub_id from 0 until an entry is absent (zero length) or a
// read reports a non-success status, decoding each entry with decode (§4.5:
// "Table read").
func (s *Store) TableRead(ctx context.Context, sysID SysID, itemID ItemID, decode func([]byte) (any, error)) ([]any, error) {
	var out []any
	for subID := uint16(0); ; subID++ {
		raw, err := s.ExtRead(ctx, sysID, itemID, subID)
		if err != nil {
			if errors.Is(err, znperrors.ErrKeyNotFound) || errors.Is(err, znperrors.ErrInvalidCommandResponse) {
				break
			}
			return out, err
		}
		entry, err := decode(raw)
		if err != nil {
			return out, fmt.Errorf("nvram: table %#04x entry %d: %w", itemID, subID, err)
		}
		out = append(out, entry)
	}
	return out, nil
}
