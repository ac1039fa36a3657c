package client

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
	"github.com/b4ae-io/b4ae-core/internal/session"
	"github.com/b4ae-io/b4ae-core/internal/wire"
)

const msgTypeRecord byte = 0x20

func encodeRecord(rec *session.EncryptedRecord) ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(msgTypeRecord).Uint64(rec.Seq).Raw(rec.Nonce[:]).Bytes(rec.Ciphertext)
	buf, err := w.Finish()
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func decodeRecord(buf []byte) (*session.EncryptedRecord, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	msgType, err := r.Byte()
	if err != nil {
		return nil, err
	}
	if msgType != msgTypeRecord {
		return nil, b4aeerr.New("client.decodeRecord", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	rec := &session.EncryptedRecord{}
	if rec.Seq, err = r.Uint64(); err != nil {
		return nil, err
	}
	nonce, err := r.Raw(crypto.AEADNonceSize)
	if err != nil {
		return nil, err
	}
	copy(rec.Nonce[:], nonce)
	if rec.Ciphertext, err = r.Bytes(); err != nil {
		return nil, err
	}
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return rec, nil
}
