// Package stun implements a STUN (RFC 5389) message parser.
//
// A message is a 20-byte header followed by Message Length bytes of
// attributes. Each attribute is a type/length/value triple padded so that the
// next attribute starts on a 4-byte boundary. Padding is skipped and never
// shows up in a decoded attribute.
package stun

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/wirelab/pkg/hexutil"
	"firestige.xyz/wirelab/pkg/plugin"
	"firestige.xyz/wirelab/pkg/schema"
)

const (
	headerLength     = 20
	attrHeaderLength = 4
	magicCookie      = 0x2112A442
)

// Attribute types rendered with more than hex.
const (
	attrMappedAddress    = 0x0001
	attrUsername         = 0x0006
	attrMessageIntegrity = 0x0008
	attrErrorCode        = 0x0009
	attrUnknown          = 0x000A
	attrRealm            = 0x0014
	attrNonce            = 0x0015
	attrXORMappedAddress = 0x0020
	attrSoftware         = 0x8022
	attrFingerprint      = 0x8028
)

var messageTypes = map[uint16]string{
	0x0001: "Binding Request",
	0x0011: "Binding Indication",
	0x0101: "Binding Response",
	0x0111: "Binding Error Response",
	0x0002: "Shared Secret Request",
	0x0102: "Shared Secret Response",
	0x0112: "Shared Secret Error Response",
}

var attributeNames = map[uint16]string{
	attrMappedAddress:    "MAPPED-ADDRESS",
	attrUsername:         "USERNAME",
	attrMessageIntegrity: "MESSAGE-INTEGRITY",
	attrErrorCode:        "ERROR-CODE",
	attrUnknown:          "UNKNOWN-ATTRIBUTES",
	attrRealm:            "REALM",
	attrNonce:            "NONCE",
	attrXORMappedAddress: "XOR-MAPPED-ADDRESS",
	attrSoftware:         "SOFTWARE",
	attrFingerprint:      "FINGERPRINT",
}

// Parser is the plugin wrapper around Decode.
type Parser struct {
	name string
}

func NewParser() plugin.Parser {
	return &Parser{name: "stun"}
}

func (p *Parser) Name() string { return p.name }

// Init needs no configuration.
func (p *Parser) Init(_ map[string]any) error { return nil }

func (p *Parser) Start(_ context.Context) error { return nil }

func (p *Parser) Stop(_ context.Context) error { return nil }

// CanHandle checks the fixed header: two leading zero bits, the magic cookie
// and a 4-byte aligned length that fits in the payload.
func (p *Parser) CanHandle(payload []byte) bool {
	if len(payload) < headerLength || payload[0]&0xC0 != 0 {
		return false
	}
	if binary.BigEndian.Uint32(payload[4:8]) != magicCookie {
		return false
	}
	length := int(binary.BigEndian.Uint16(payload[2:4]))
	return length%4 == 0 && headerLength+length <= len(payload)
}

func (p *Parser) Handle(payload []byte) ([]schema.DecodedField, error) {
	return Decode(payload), nil
}

// Decode breaks a STUN message into header fields and an "Attributes" entry
// whose children are the individual attributes.
func Decode(data []byte) []schema.DecodedField {
	if len(data) < headerLength {
		return []schema.DecodedField{{
			Name:         "Error",
			DisplayValue: "Packet too short for STUN header",
			Length:       len(data),
			Error:        schema.ErrTooShort,
		}}
	}

	msgType := binary.BigEndian.Uint16(data[0:2])
	length := int(binary.BigEndian.Uint16(data[2:4]))
	cookie := binary.BigEndian.Uint32(data[4:8])
	txID := data[8:20]

	typeName, ok := messageTypes[msgType]
	if !ok {
		typeName = "Unknown"
	}

	results := []schema.DecodedField{
		field("Message Type", data, 0, 2, uint64(msgType), fmt.Sprintf("0x%04x (%s)", msgType, typeName)),
		field("Message Length", data, 2, 2, uint64(length), fmt.Sprintf("%d bytes", length)),
		field("Magic Cookie", data, 4, 4, uint64(cookie), fmt.Sprintf("0x%08x", cookie)),
		field("Transaction ID", data, 8, 12, hexutil.ToSpacedHex(txID), hexutil.ToSpacedHex(txID)),
	}

	end := headerLength + length
	if end > len(data) {
		return append(results, schema.DecodedField{
			Name:         "Error",
			DisplayValue: "Calculated length exceeds packet size",
			Offset:       headerLength,
			Error:        schema.ErrLengthMismatch,
		})
	}
	if length == 0 {
		return results
	}

	attrs := schema.DecodedField{
		Name:         "Attributes",
		RawHex:       hexutil.ToSpacedHex(data[headerLength:end]),
		DisplayValue: fmt.Sprintf("%d bytes", length),
		Offset:       headerLength,
		Length:       length,
	}
	attrs.FormattedValue = attrs.DisplayValue

	offset := headerLength
	for offset+attrHeaderLength <= end {
		attrType := binary.BigEndian.Uint16(data[offset : offset+2])
		attrLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		valueEnd := offset + attrHeaderLength + attrLen
		if valueEnd > end {
			attrs.Children = append(attrs.Children, schema.DecodedField{
				Name:         "Error",
				DisplayValue: "Attribute length overflow",
				Offset:       offset,
				Error:        schema.ErrOverflow,
			})
			break
		}

		value := data[offset+attrHeaderLength : valueEnd]
		attrs.Children = append(attrs.Children,
			field(attributeName(attrType), data, offset, attrHeaderLength+attrLen,
				hexutil.ToSpacedHex(value), renderAttribute(attrType, value, txID)))

		offset += attrHeaderLength + padded(attrLen)
	}

	return append(results, attrs)
}

func field(name string, data []byte, offset, length int, value any, display string) schema.DecodedField {
	return schema.DecodedField{
		Name:           name,
		RawHex:         hexutil.ToSpacedHex(data[offset : offset+length]),
		Value:          value,
		DisplayValue:   display,
		FormattedValue: display,
		Offset:         offset,
		Length:         length,
	}
}

// padded rounds n up to a multiple of 4.
func padded(n int) int {
	return (n + 3) &^ 3
}

func attributeName(t uint16) string {
	if name, ok := attributeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%04x)", t)
}

// renderAttribute formats the value of well-known attributes; anything else,
// and any value too short for its type, is shown as hex.
func renderAttribute(t uint16, v, txID []byte) string {
	switch t {
	case attrMappedAddress:
		if s, ok := address(v, nil); ok {
			return s
		}
	case attrXORMappedAddress:
		if s, ok := address(v, txID); ok {
			return s
		}
	case attrUsername, attrSoftware, attrRealm, attrNonce:
		return strings.ToValidUTF8(string(v), "\uFFFD")
	case attrErrorCode:
		if len(v) >= 4 {
			code := int(v[2]&0x07)*100 + int(v[3])
			reason := strings.ToValidUTF8(string(v[4:]), "\uFFFD")
			return strings.TrimSpace(fmt.Sprintf("%d %s", code, reason))
		}
	case attrFingerprint:
		if len(v) == 4 {
			return fmt.Sprintf("0x%08x", binary.BigEndian.Uint32(v))
		}
	}
	return hexutil.ToSpacedHex(v)
}

// address decodes a (XOR-)MAPPED-ADDRESS value. A non-nil txID selects the
// XOR form: the port is XORed with the cookie's high half, an IPv4 address
// with the cookie, and an IPv6 address with the cookie followed by txID.
func address(v, txID []byte) (string, bool) {
	if len(v) < 4 {
		return "", false
	}
	family := v[1]
	port := binary.BigEndian.Uint16(v[2:4])

	var key [16]byte
	if txID != nil {
		port ^= uint16(magicCookie >> 16)
		binary.BigEndian.PutUint32(key[:4], magicCookie)
		copy(key[4:], txID)
	}

	switch family {
	case 0x01:
		if len(v) != 8 {
			return "", false
		}
		var ip [4]byte
		for i := range ip {
			ip[i] = v[4+i] ^ key[i]
		}
		return netip.AddrPortFrom(netip.AddrFrom4(ip), port).String(), true
	case 0x02:
		if len(v) != 20 {
			return "", false
		}
		var ip [16]byte
		for i := range ip {
			ip[i] = v[4+i] ^ key[i]
		}
		return netip.AddrPortFrom(netip.AddrFrom16(ip), port).String(), true
	}
	return "", false
}
