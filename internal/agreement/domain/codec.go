package agreement

import (
	"bytes"
	"encoding/binary"
	"time"

	ledger "trusted-properties/internal/ledger/domain"
)

// ProgramID owns the slots holding agreement records.
const ProgramID = "trusted-properties.rent-agreement"

// SchemaVersion is the version tag written by Encode.
const SchemaVersion uint8 = 1

// RecordSize is the encoded size of a version 1 record.
const RecordSize = 1 + 1 + 2*ledger.MaxAddressLen + 5*8 + 1 + 2 + 2*8

// Encode serializes a record in the version 1 layout. All integers are big-endian;
// addresses are zero padded to MaxAddressLen.
func Encode(r *Record) []byte {
	buf := make([]byte, RecordSize)
	off := 0
	buf[off] = SchemaVersion
	off++
	buf[off] = uint8(r.status)
	off++
	copy(buf[off:off+ledger.MaxAddressLen], r.owner)
	off += ledger.MaxAddressLen
	copy(buf[off:off+ledger.MaxAddressLen], r.tenant)
	off += ledger.MaxAddressLen
	for _, v := range []uint64{r.securityDeposit, r.remainingSecurityDeposit, r.rentAmount, r.duration, r.remainingPayments} {
		binary.BigEndian.PutUint64(buf[off:], v)
		off += 8
	}
	buf[off] = r.startMonth
	off++
	binary.BigEndian.PutUint16(buf[off:], r.startYear)
	off += 2
	binary.BigEndian.PutUint64(buf[off:], uint64(unixNano(r.createdAt)))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(unixNano(r.updatedAt)))
	return buf
}

// Decode parses a record stored at address.
func Decode(address ledger.Address, data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrCorruptRecord
	}
	if data[0] != SchemaVersion {
		return nil, ErrUnsupportedSchema
	}
	if len(data) != RecordSize {
		return nil, ErrCorruptRecord
	}
	r := &Record{address: address}
	off := 1
	r.status = Status(data[off])
	off++
	r.owner = readAddress(data[off : off+ledger.MaxAddressLen])
	off += ledger.MaxAddressLen
	r.tenant = readAddress(data[off : off+ledger.MaxAddressLen])
	off += ledger.MaxAddressLen
	for _, dst := range []*uint64{&r.securityDeposit, &r.remainingSecurityDeposit, &r.rentAmount, &r.duration, &r.remainingPayments} {
		*dst = binary.BigEndian.Uint64(data[off:])
		off += 8
	}
	r.startMonth = data[off]
	off++
	r.startYear = binary.BigEndian.Uint16(data[off:])
	off += 2
	r.createdAt = fromUnixNano(int64(binary.BigEndian.Uint64(data[off:])))
	off += 8
	r.updatedAt = fromUnixNano(int64(binary.BigEndian.Uint64(data[off:])))

	if err := r.check(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Record) check() error {
	switch {
	case !r.status.Valid() || r.status == StatusUninitialized:
		return ErrCorruptRecord
	case r.owner.Validate() != nil || r.tenant.Validate() != nil:
		return ErrCorruptRecord
	case r.remainingSecurityDeposit > r.securityDeposit:
		return ErrCorruptRecord
	case r.remainingPayments > r.duration:
		return ErrCorruptRecord
	}
	return nil
}

func readAddress(b []byte) ledger.Address {
	return ledger.Address(bytes.TrimRight(b, "\x00"))
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}
