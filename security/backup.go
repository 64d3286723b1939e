package security

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-zigbee/znp/nvram"
	"github.com/go-zigbee/znp/types"
	"github.com/go-zigbee/znp/znperrors"
)

// NetworkBackup is the JSON-serializable artifact security.Backup produces,
// matching the shape zigpy_znp/tools/network_backup.py assembles (§4.9).
type NetworkBackup struct {
	NetworkInfo
	TCLinkKeySeed *Seed    `json:"tc_link_key_seed,omitempty"`
	Devices       []Device `json:"devices"`
}

type keyInfo struct {
	ieee   [8]byte
	tx, rx uint32
	key    [16]byte
}

// Backup reads the coordinator's address-manager and link-key tables and
// assembles the per-device key material alongside info, mirroring
// security.py's read_devices.
func (s *Store) Backup(ctx context.Context, info NetworkInfo) (NetworkBackup, error) {
	var seed Seed
	haveSeed := false
	if s.gen != GenerationZStack12 {
		raw, err := s.nv.Read(ctx, nvram.IDTCLKSeed)
		if err != nil {
			return NetworkBackup{}, fmt.Errorf("security: backup: read tclk seed: %w", err)
		}
		if len(raw) < 16 {
			return NetworkBackup{}, fmt.Errorf("security: backup: tclk seed too short (%d bytes): %w", len(raw), znperrors.ErrInvalidCommandResponse)
		}
		copy(seed[:], raw[:16])
		haveSeed = true
	}

	addrMgr, err := s.readAddrMgrEntries(ctx)
	if err != nil {
		return NetworkBackup{}, fmt.Errorf("security: backup: %w", err)
	}

	devices := map[[8]byte]*Device{}
	var order [][8]byte

	for _, entry := range addrMgr {
		if entry.IEEE == emptyIEEE || entry.IEEE == broadcastIEEE {
			continue
		}
		switch entry.Type {
		case AddrMgrUserTypeDefault:
			continue
		case AddrMgrUserTypeAssoc, AddrMgrUserTypeAssoc | AddrMgrUserTypeSecurity, AddrMgrUserTypeSecurity:
			if entry.NWK > 0xFFF7 {
				s.log.Warn().Uint16("nwk", entry.NWK).Msg("ignoring invalid address manager entry")
				continue
			}
			devices[entry.IEEE] = &Device{IEEE: entry.IEEE, NWK: entry.NWK}
			order = append(order, entry.IEEE)
		default:
			return NetworkBackup{}, fmt.Errorf("security: backup: unexpected address manager entry type %s", entry.Type)
		}
	}

	if haveSeed {
		hashed, err := s.readHashedLinkKeys(ctx, seed)
		if err != nil {
			return NetworkBackup{}, fmt.Errorf("security: backup: %w", err)
		}
		for _, k := range hashed {
			d, ok := devices[k.ieee]
			if !ok {
				s.log.Warn().Msg("skipping hashed link key for unknown device")
				continue
			}
			d.TxCounter = types.Some(k.tx)
			d.RxCounter = types.Some(k.rx)
			d.APSLinkKey = types.Some(k.key)
			if shift, ok := FindKeyShift(k.ieee, k.key, seed); ok {
				d.HashedLinkKeyShift = types.Some(shift)
			}
		}
	}

	unhashed, err := s.readUnhashedLinkKeys(ctx, addrMgr)
	if err != nil {
		return NetworkBackup{}, fmt.Errorf("security: backup: %w", err)
	}
	for _, k := range unhashed {
		d, ok := devices[k.ieee]
		if !ok {
			s.log.Warn().Msg("skipping unhashed link key for unknown device")
			continue
		}
		d.TxCounter = types.Some(k.tx)
		d.RxCounter = types.Some(k.rx)
		d.APSLinkKey = types.Some(k.key)
	}

	out := make([]Device, 0, len(order))
	for _, ieee := range order {
		out = append(out, *devices[ieee])
	}

	tcCounter, err := s.ReadTCFrameCounter(ctx, info.ExtendedPANID)
	if err != nil {
		return NetworkBackup{}, fmt.Errorf("security: backup: %w", err)
	}
	info.TCFrameCounter = tcCounter

	backup := NetworkBackup{NetworkInfo: info, Devices: out}
	if haveSeed {
		backup.TCLinkKeySeed = &seed
	}
	return backup, nil
}

// Restore writes devices back to the coordinator's address-manager and
// link-key tables, choosing (or honoring, if still optimal) a TCLK seed
// (written to nvram.IDTCLKSeed on firmware other than Z-Stack 1.2), and advancing each device's outgoing frame counter by counterIncrement
// as a replay-safety margin, mirroring security.py's write_devices.
// preferredSeed may be nil to let Restore pick the seed that maximizes the
// number of hashed keys.
func (s *Store) Restore(ctx context.Context, devices []Device, counterIncrement uint32, preferredSeed *Seed) error {
	var pairs []ieeeKeyPair
	for _, d := range devices {
		if key, ok := d.APSLinkKey.Get(); ok {
			pairs = append(pairs, ieeeKeyPair{ieee: d.IEEE, key: key})
		}
	}

	var seed Seed
	switch {
	case len(pairs) > 0:
		chosen, _ := bestSeed(pairs, preferredSeed)
		seed = chosen
	case preferredSeed != nil:
		seed = *preferredSeed
	}

	var hashedTable []TCLKDevEntry
	var apsKeyDataTable []APSKeyDataTableEntry
	var linkKeyTable []APSLinkKeyTableEntry

	var linkKeyOffsetBase uint16
	if s.gen != GenerationZStack330Plus {
		linkKeyOffsetBase = uint16(nvram.LegacyAPSLinkKeyDataStart)
	}

	for index, d := range devices {
		key, ok := d.APSLinkKey.Get()
		if !ok {
			continue
		}
		tx, _ := d.TxCounter.Get()
		rx, _ := d.RxCounter.Get()

		if shift, ok := FindKeyShift(d.IEEE, key, seed); ok {
			hashedTable = append(hashedTable, TCLKDevEntry{
				TxFrameCounter: tx + counterIncrement,
				RxFrameCounter: rx,
				IEEE:           d.IEEE,
				KeyAttributes:  KeyAttributesVerified,
				KeyType:        KeyTypeNone,
				SeedShift:      shift,
			})
			continue
		}

		offset := uint16(len(apsKeyDataTable))
		apsKeyDataTable = append(apsKeyDataTable, APSKeyDataTableEntry{
			Key:            key,
			TxFrameCounter: tx + counterIncrement,
			RxFrameCounter: rx,
		})
		linkKeyTable = append(linkKeyTable, APSLinkKeyTableEntry{
			AddressManagerIndex: uint16(index),
			LinkKeyNvID:         linkKeyOffsetBase + offset,
			AuthenticationState: AuthenticationCBCK,
		})
	}

	oldLinkKeyTable, err := s.nv.Read(ctx, nvram.IDAPSLinkKeyTable)
	if err != nil {
		return fmt.Errorf("security: restore: read aps link key table: %w", err)
	}
	newLinkKeyTable, err := encodeAPSLinkKeyTable(linkKeyTable, len(oldLinkKeyTable))
	if err != nil {
		return fmt.Errorf("security: restore: %w", err)
	}

	if err := s.writeAddrMgrEntries(ctx, devices); err != nil {
		return fmt.Errorf("security: restore: %w", err)
	}
	if s.gen != GenerationZStack12 {
		if err := s.nv.Write(ctx, nvram.IDTCLKSeed, seed[:], true); err != nil {
			return fmt.Errorf("security: restore: write tclk seed: %w", err)
		}
	}
	if err := s.nv.Write(ctx, nvram.IDAPSLinkKeyTable, newLinkKeyTable, false); err != nil {
		return fmt.Errorf("security: restore: write aps link key table: %w", err)
	}

	tclkFill := EncodeTCLKDevEntry(emptyTCLKDevEntry)
	apsKeyFill := EncodeAPSKeyDataTableEntry(emptyAPSKeyDataTableEntry)

	hashedRaw := make([][]byte, len(hashedTable))
	for i, e := range hashedTable {
		hashedRaw[i] = EncodeTCLKDevEntry(e)
	}
	apsRaw := make([][]byte, len(apsKeyDataTable))
	for i, e := range apsKeyDataTable {
		apsRaw[i] = EncodeAPSKeyDataTableEntry(e)
	}

	if s.gen == GenerationZStack330Plus {
		if err := s.nv.TableWrite(ctx, nvram.SysIDZStack, nvram.ItemTCLKTable, hashedRaw, tclkFill); err != nil {
			return fmt.Errorf("security: restore: write tclk table: %w", err)
		}
		if err := s.nv.TableWrite(ctx, nvram.SysIDZStack, nvram.ItemAPSKeyDataTable, apsRaw, apsKeyFill); err != nil {
			return fmt.Errorf("security: restore: write aps key data table: %w", err)
		}
		return nil
	}

	if err := s.nv.LegacyTableWrite(ctx, nvram.LegacyTCLKTableStart, nvram.LegacyTCLKTableEnd, hashedRaw, tclkFill); err != nil {
		return fmt.Errorf("security: restore: write tclk table: %w", err)
	}
	if err := s.nv.LegacyTableWrite(ctx, nvram.LegacyAPSLinkKeyDataStart, nvram.LegacyAPSLinkKeyDataEnd, apsRaw, apsKeyFill); err != nil {
		return fmt.Errorf("security: restore: write aps key data table: %w", err)
	}
	return nil
}

func (s *Store) writeAddrMgrEntries(ctx context.Context, devices []Device) error {
	entries := make([]AddrMgrEntry, len(devices))
	for i, d := range devices {
		typ := AddrMgrUserTypeAssoc
		if _, ok := d.APSLinkKey.Get(); ok {
			typ = AddrMgrUserTypeSecurity
		}
		entries[i] = AddrMgrEntry{Type: typ, NWK: d.NWK, IEEE: d.IEEE}
	}

	if s.gen == GenerationZStack330Plus {
		raw := make([][]byte, len(entries))
		for i, e := range entries {
			raw[i] = EncodeAddrMgrEntry(e)
		}
		return s.nv.TableWrite(ctx, nvram.SysIDZStack, nvram.ItemAddrMgr, raw, EncodeAddrMgrEntry(emptyAddrMgrEntry))
	}

	old, err := s.nv.Read(ctx, nvram.IDAddrMgr)
	if err != nil {
		return fmt.Errorf("read address manager table: %w", err)
	}
	capacity := len(old) / 11
	if len(entries) > capacity {
		return fmt.Errorf("%d entries do not fit in address manager table capacity %d", len(entries), capacity)
	}
	full := make([]AddrMgrEntry, capacity)
	for i := range full {
		full[i] = emptyAddrMgrEntry
	}
	copy(full, entries)
	return s.nv.Write(ctx, nvram.IDAddrMgr, encodeAddrMgrTable(full), false)
}

// --- wire helpers for the non-table-indexed NVRAM blobs ---------------------

func (s *Store) readAddrMgrEntries(ctx context.Context) ([]AddrMgrEntry, error) {
	if s.gen == GenerationZStack330Plus {
		rows, err := s.nv.TableRead(ctx, nvram.SysIDZStack, nvram.ItemAddrMgr, func(raw []byte) (any, error) { return DecodeAddrMgrEntry(raw) })
		if err != nil {
			return nil, err
		}
		out := make([]AddrMgrEntry, len(rows))
		for i, r := range rows {
			out[i] = r.(AddrMgrEntry)
		}
		return out, nil
	}

	raw, err := s.nv.Read(ctx, nvram.IDAddrMgr)
	if err != nil {
		return nil, err
	}
	return decodeAddrMgrTable(raw)
}

func (s *Store) readHashedLinkKeys(ctx context.Context, seed Seed) ([]keyInfo, error) {
	decode := func(raw []byte) (any, error) { return DecodeTCLKDevEntry(raw) }

	var rows []any
	var err error
	if s.gen == GenerationZStack330Plus {
		rows, err = s.nv.TableRead(ctx, nvram.SysIDZStack, nvram.ItemTCLKTable, decode)
	} else {
		rows, err = s.nv.LegacyTableRead(ctx, nvram.LegacyTCLKTableStart, nvram.LegacyTCLKTableEnd, decode)
	}
	if err != nil {
		return nil, err
	}

	out := make([]keyInfo, 0, len(rows))
	for _, r := range rows {
		e := r.(TCLKDevEntry)
		if e.IEEE == emptyIEEE {
			continue
		}
		out = append(out, keyInfo{ieee: e.IEEE, tx: e.TxFrameCounter, rx: e.RxFrameCounter, key: ComputeKey(e.IEEE, seed, e.SeedShift)})
	}
	return out, nil
}

func (s *Store) readUnhashedLinkKeys(ctx context.Context, addrMgr []AddrMgrEntry) ([]keyInfo, error) {
	decode := func(raw []byte) (any, error) { return DecodeAPSKeyDataTableEntry(raw) }

	var rows []any
	var err error
	var offsetBase uint16
	if s.gen == GenerationZStack330Plus {
		rows, err = s.nv.TableRead(ctx, nvram.SysIDZStack, nvram.ItemAPSKeyDataTable, decode)
	} else {
		offsetBase = uint16(nvram.LegacyAPSLinkKeyDataStart)
		rows, err = s.nv.LegacyTableRead(ctx, nvram.LegacyAPSLinkKeyDataStart, nvram.LegacyAPSLinkKeyDataEnd, decode)
	}
	if err != nil {
		if errors.Is(err, znperrors.ErrSecurity) {
			// CC2531 on Z-Stack Home 1.2 refuses this read outright.
			return nil, nil
		}
		return nil, err
	}
	apsKeyDataTable := make([]APSKeyDataTableEntry, len(rows))
	for i, r := range rows {
		apsKeyDataTable[i] = r.(APSKeyDataTableEntry)
	}

	rawLinkKeyTable, err := s.nv.Read(ctx, nvram.IDAPSLinkKeyTable)
	if err != nil {
		return nil, err
	}
	linkKeyTable, err := decodeAPSLinkKeyTable(rawLinkKeyTable)
	if err != nil {
		return nil, err
	}

	var out []keyInfo
	for _, entry := range linkKeyTable {
		if entry.AuthenticationState != AuthenticationCBCK {
			continue
		}
		idx := int(entry.LinkKeyNvID) - int(offsetBase)
		if idx < 0 || idx >= len(apsKeyDataTable) {
			return nil, fmt.Errorf("aps link key table entry references out-of-range key index %d", idx)
		}
		keyEntry := apsKeyDataTable[idx]

		if int(entry.AddressManagerIndex) >= len(addrMgr) {
			return nil, fmt.Errorf("aps link key table entry references out-of-range address manager index %d", entry.AddressManagerIndex)
		}
		addrEntry := addrMgr[entry.AddressManagerIndex]
		if !addrEntry.Type.Has(AddrMgrUserTypeSecurity) {
			return nil, fmt.Errorf("address manager entry %d referenced by link key table is not flagged Security", entry.AddressManagerIndex)
		}

		out = append(out, keyInfo{ieee: addrEntry.IEEE, tx: keyEntry.TxFrameCounter, rx: keyEntry.RxFrameCounter, key: keyEntry.Key})
	}
	return out, nil
}

// decodeAddrMgrTable parses the legacy AddressManagerTable NV item: a bare
// run of 11-byte AddrMgrEntry rows with no length prefix (structs.py's
// AddressManagerTable, a CompleteList).
func decodeAddrMgrTable(raw []byte) ([]AddrMgrEntry, error) {
	const entrySize = 11
	if len(raw)%entrySize != 0 {
		return nil, fmt.Errorf("address manager table length %d is not a multiple of %d", len(raw), entrySize)
	}
	n := len(raw) / entrySize
	out := make([]AddrMgrEntry, n)
	for i := 0; i < n; i++ {
		e, err := DecodeAddrMgrEntry(raw[i*entrySize : (i+1)*entrySize])
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func encodeAddrMgrTable(entries []AddrMgrEntry) []byte {
	out := make([]byte, 0, 11*len(entries))
	for _, e := range entries {
		out = append(out, EncodeAddrMgrEntry(e)...)
	}
	return out
}

// decodeAPSLinkKeyTable parses the APS link key table NV item: a uint16
// entry count followed by that many 5-byte APSLinkKeyTableEntry rows, with
// undefined trailing bytes up to the item's fixed on-device capacity
// (structs.py's APSLinkKeyTable, an LVList).
func decodeAPSLinkKeyTable(raw []byte) ([]APSLinkKeyTableEntry, error) {
	const entrySize = 5
	if len(raw) < 2 {
		return nil, fmt.Errorf("aps link key table too short (%d bytes)", len(raw))
	}
	count := int(raw[0]) | int(raw[1])<<8
	out := make([]APSLinkKeyTableEntry, 0, count)
	offset := 2
	for i := 0; i < count; i++ {
		if offset+entrySize > len(raw) {
			return nil, fmt.Errorf("aps link key table truncated at entry %d", i)
		}
		e, err := DecodeAPSLinkKeyTableEntry(raw[offset : offset+entrySize])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		offset += entrySize
	}
	return out, nil
}

// encodeAPSLinkKeyTable serializes entries with their uint16 count prefix,
// zero-padded out to totalLen (the existing on-device item's length, which
// must not shrink — §4.6: "the link key table has a static maximum
// capacity").
func encodeAPSLinkKeyTable(entries []APSLinkKeyTableEntry, totalLen int) ([]byte, error) {
	body := make([]byte, 2, 2+5*len(entries))
	body[0] = byte(len(entries))
	body[1] = byte(len(entries) >> 8)
	for _, e := range entries {
		body = append(body, EncodeAPSLinkKeyTableEntry(e)...)
	}
	if len(body) > totalLen {
		return nil, fmt.Errorf("new link key table (%d bytes) is larger than the current one (%d bytes)", len(body), totalLen)
	}
	out := make([]byte, totalLen)
	copy(out, body)
	return out, nil
}
