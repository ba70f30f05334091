package clearinghouse

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

func accountDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

func instructionDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// HasDiscriminator reports whether data starts with the given account tag.
func HasDiscriminator(data []byte, disc [8]byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:8], disc[:])
}

// reader keeps the first decode error so field lists read top to bottom.
type reader struct {
	dec *bin.Decoder
	err error
}

func newReader(dec *bin.Decoder) *reader {
	return &reader{dec: dec}
}

func (r *reader) pubkey(dst *solana.PublicKey) {
	if r.err != nil {
		return
	}
	var raw []byte
	raw, r.err = r.dec.ReadNBytes(solana.PublicKeyLength)
	if r.err == nil {
		copy(dst[:], raw)
	}
}

func (r *reader) u8(dst *uint8) {
	if r.err == nil {
		*dst, r.err = r.dec.ReadUint8()
	}
}

func (r *reader) boolean(dst *bool) {
	if r.err == nil {
		*dst, r.err = r.dec.ReadBool()
	}
}

func (r *reader) u32(dst *uint32) {
	if r.err == nil {
		*dst, r.err = r.dec.ReadUint32(bin.LE)
	}
}

func (r *reader) u64(dst *uint64) {
	if r.err == nil {
		*dst, r.err = r.dec.ReadUint64(bin.LE)
	}
}

func (r *reader) i64(dst *int64) {
	if r.err == nil {
		*dst, r.err = r.dec.ReadInt64(bin.LE)
	}
}

func (r *reader) u128(dst *bin.Uint128) {
	if r.err == nil {
		*dst, r.err = r.dec.ReadUint128(bin.LE)
	}
}

func (r *reader) i128(dst *bin.Int128) {
	if r.err == nil {
		*dst, r.err = r.dec.ReadInt128(bin.LE)
	}
}

func (r *reader) nested(dst bin.BinaryUnmarshaler) {
	if r.err == nil {
		r.err = dst.UnmarshalWithDecoder(r.dec)
	}
}

type writer struct {
	enc *bin.Encoder
	err error
}

func newWriter(enc *bin.Encoder) *writer {
	return &writer{enc: enc}
}

func (w *writer) pubkey(v solana.PublicKey) {
	if w.err == nil {
		w.err = w.enc.WriteBytes(v[:], false)
	}
}

func (w *writer) u8(v uint8) {
	if w.err == nil {
		w.err = w.enc.WriteUint8(v)
	}
}

func (w *writer) boolean(v bool) {
	if w.err == nil {
		w.err = w.enc.WriteBool(v)
	}
}

func (w *writer) u32(v uint32) {
	if w.err == nil {
		w.err = w.enc.WriteUint32(v, bin.LE)
	}
}

func (w *writer) u64(v uint64) {
	if w.err == nil {
		w.err = w.enc.WriteUint64(v, bin.LE)
	}
}

func (w *writer) i64(v int64) {
	if w.err == nil {
		w.err = w.enc.WriteInt64(v, bin.LE)
	}
}

func (w *writer) u128(v bin.Uint128) {
	if w.err == nil {
		w.err = w.enc.WriteUint128(v, bin.LE)
	}
}

func (w *writer) i128(v bin.Int128) {
	if w.err == nil {
		w.err = w.enc.WriteInt128(v, bin.LE)
	}
}

func (w *writer) nested(v bin.BinaryMarshaler) {
	if w.err == nil {
		w.err = v.MarshalWithEncoder(w.enc)
	}
}

// decodeAccount checks the 8-byte tag, decodes the body, and rejects
// trailing bytes so one layout can never be mistaken for another.
func decodeAccount(data []byte, disc [8]byte, name string, dst bin.BinaryUnmarshaler) error {
	if !HasDiscriminator(data, disc) {
		return fmt.Errorf("%w: %s", ErrDiscriminatorMismatch, name)
	}
	dec := bin.NewBorshDecoder(data[8:])
	if err := dst.UnmarshalWithDecoder(dec); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	if dec.Remaining() != 0 {
		return fmt.Errorf("decode %s: %d trailing bytes", name, dec.Remaining())
	}
	return nil
}

// EncodeAccount serializes an account body behind its discriminator.
func EncodeAccount(disc [8]byte, src bin.BinaryMarshaler) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(disc[:])
	if err := src.MarshalWithEncoder(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
