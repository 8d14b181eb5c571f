package agreement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	r := newRecord(t, sampleTerms())
	_, err := r.Deposit(Signers{tenantAddr}, 1000, epoch.Add(time.Minute))
	require.NoError(t, err)

	data := Encode(r)
	require.Len(t, data, RecordSize)

	decoded, err := Decode(agreementAddr, data)
	require.NoError(t, err)
	require.Equal(t, r.Snapshot(), decoded.Snapshot())
}

func TestDecode_Rejects(t *testing.T) {
	data := Encode(newRecord(t, sampleTerms()))

	_, err := Decode(agreementAddr, nil)
	require.ErrorIs(t, err, ErrCorruptRecord)

	future := append([]byte(nil), data...)
	future[0] = SchemaVersion + 1
	_, err = Decode(agreementAddr, future)
	require.ErrorIs(t, err, ErrUnsupportedSchema)

	_, err = Decode(agreementAddr, data[:RecordSize-1])
	require.ErrorIs(t, err, ErrCorruptRecord)

	badStatus := append([]byte(nil), data...)
	badStatus[1] = 42
	_, err = Decode(agreementAddr, badStatus)
	require.ErrorIs(t, err, ErrCorruptRecord)
}
