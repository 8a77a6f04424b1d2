package msg

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ContentTypeCBOR is the Attrs["content-type"] value that marks a Msg
// packet's body as a CBOR-encoded map instead of opaque bytes.
const ContentTypeCBOR = "cbor"

// IsCBOR reports whether p's body should be decoded as CBOR.
func (p *Packet) IsCBOR() bool {
	return p.Attrs["content-type"] == ContentTypeCBOR
}

// DecodeBody decodes a CBOR body into a map, for handlers that declared
// content-type=cbor on the wire.
func (p *Packet) DecodeBody() (map[string]any, error) {
	if !p.IsCBOR() {
		return nil, fmt.Errorf("msg: packet content-type is not cbor")
	}
	out := make(map[string]any)
	if err := cbor.Unmarshal(p.Body, &out); err != nil {
		return nil, fmt.Errorf("msg: decoding cbor body: %w", err)
	}
	return out, nil
}

// SetCBORBody encodes v as the packet's CBOR body and tags content-type
// accordingly.
func (p *Packet) SetCBORBody(v map[string]any) error {
	body, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("msg: encoding cbor body: %w", err)
	}
	if p.Attrs == nil {
		p.Attrs = make(map[string]string)
	}
	p.Attrs["content-type"] = ContentTypeCBOR
	p.Body = body
	return nil
}
