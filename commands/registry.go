// Package commands declares every MT command known to the core: one file
// per MT subsystem (sys.go, mac.go, nwk.go, af.go, zdo.go, sapi.go, util.go,
// app.go, appconfig.go, ubl.go, gp.go, rpcerror.go), each registering its
// Req/Rsp/Callback types and decoders into the package-level Registry at
// init time. This file holds the shared registry machinery (§4.2).
package commands

import (
	"fmt"

	"github.com/go-zigbee/znp/frame"
	"github.com/go-zigbee/znp/types"
)

// Generation gates a command to the firmware generations that implement it
// (§4.7 step 2, step 6): several MT commands only exist on some Z-Stack
// releases.
type Generation uint8

const (
	// GenerationAny means the command exists on every supported firmware
	// generation.
	GenerationAny Generation = iota
	GenerationZStack12
	GenerationZStack30
	GenerationZStack330Plus
)

// Command is implemented by every concrete Req/Rsp/Callback type the
// registry produces. Decode is provided by the package-level Decode
// function, keyed off a frame's header; Encode and Header are on the
// concrete type itself (§4.2).
type Command interface {
	// Header returns the command's CommandHeader.
	Header() types.CommandHeader
	// Encode serializes the command's parameters, in schema order, to
	// their on-wire representation.
	Encode() []byte
}

// Decoder decodes a payload into a Command, given the header that selected
// it. A types.ErrShortPayload panic raised by types.Reader inside a decoder
// is recovered by safeDecode and turned into a regular error, so a single
// malformed frame cannot crash the read loop (§4.1 rationale, §7
// "Framing / transport").
type Decoder func(header types.CommandHeader, payload []byte) (cmd Command, err error)

// Def is a compile-time command definition: the (subsystem, id, type) that
// select it, its human name for logging, its decoder, and the firmware
// generation it requires.
type Def struct {
	Header     types.CommandHeader
	Name       string
	Decode     Decoder
	Generation Generation
}

// Registry maps every known CommandHeader to its Def, built at package init
// time from each subsystem file's init() registrations.
var Registry = map[types.CommandHeader]Def{}

// register is called from each subsystem file's init(). It panics on a
// duplicate header, since that can only be a programming error in this
// package — never a runtime condition.
func register(d Def) {
	if _, exists := Registry[d.Header]; exists {
		panic(fmt.Sprintf("commands: duplicate registration for header %v (%s)", d.Header, d.Name))
	}
	Registry[d.Header] = d
}

// Decode looks up f.Header in the Registry and decodes f.Payload into the
// matching concrete Command. It returns ok=false (not an error) when the
// header is unknown, matching §4.4 step 1: "if unknown, log and return;
// the line is not poisoned by unknown frames."
func Decode(f frame.General) (cmd Command, ok bool, err error) {
	def, known := Registry[f.Header]
	if !known {
		return nil, false, nil
	}
	c, err := safeDecode(def, f)
	if err != nil {
		return nil, true, err
	}
	return c, true, nil
}

// safeDecode recovers a types.ErrShortPayload panic from a malformed frame
// and turns it into a regular error.
func safeDecode(def Def, f frame.General) (cmd Command, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("commands: decoding %s: %v", def.Name, r)
		}
	}()
	return def.Decode(f.Header, f.Payload)
}

// Capabilities is the bit-flag set reported by SYS.Ping, recording which
// subsystems the connected firmware image supports (§4.7 step 1, step 2).
type Capabilities uint16

const (
	CapabilitySYS          Capabilities = 1 << 0
	CapabilityMAC          Capabilities = 1 << 1
	CapabilityNWK          Capabilities = 1 << 2
	CapabilityAF           Capabilities = 1 << 3
	CapabilityZDO          Capabilities = 1 << 4
	CapabilitySAPI         Capabilities = 1 << 5
	CapabilityUTIL         Capabilities = 1 << 6
	CapabilityAPP          Capabilities = 1 << 8
	CapabilityAPPConfig    Capabilities = 1 << 11
	CapabilityZOAD         Capabilities = 1 << 12
)

var capabilityNames = []types.FlagName{
	{Bit: uint32(CapabilitySYS), Name: "SYS"},
	{Bit: uint32(CapabilityMAC), Name: "MAC"},
	{Bit: uint32(CapabilityNWK), Name: "NWK"},
	{Bit: uint32(CapabilityAF), Name: "AF"},
	{Bit: uint32(CapabilityZDO), Name: "ZDO"},
	{Bit: uint32(CapabilitySAPI), Name: "SAPI"},
	{Bit: uint32(CapabilityUTIL), Name: "UTIL"},
	{Bit: uint32(CapabilityAPP), Name: "APP"},
	{Bit: uint32(CapabilityAPPConfig), Name: "APPConfig"},
	{Bit: uint32(CapabilityZOAD), Name: "ZOAD"},
}

func (c Capabilities) String() string {
	return types.FormatFlags("Capabilities", uint32(c), capabilityNames)
}

// Has reports whether c advertises cap.
func (c Capabilities) Has(cap Capabilities) bool {
	return c&cap == cap
}
