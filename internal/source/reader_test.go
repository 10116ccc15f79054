package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/ryabkov82/ride-booking-ingest/internal/logging"
	"github.com/ryabkov82/ride-booking-ingest/internal/metrics"
)

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ncr_ride_bookings.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func collect(t *testing.T, r *Reader) []Record {
	t.Helper()
	var out []Record
	for rec, err := range r.Records(context.Background()) {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestReaderYieldsOneRecordPerNonEmptyLine(t *testing.T) {
	content := strings.Join([]string{
		`{"Booking ID":"CNR1","Booking Value":250.50}`,
		``,
		`   `,
		`{"Booking ID":"CNR2"`,
		`  {"Booking ID":"CNR3"}  `,
		`[1,2,3]`,
	}, "\n")

	var logs bytes.Buffer
	r, err := Open(writeSource(t, content), Options{
		Logger: logging.New("source", logging.Options{Format: "json", Out: &logs}),
	})
	require.NoError(t, err)

	records := collect(t, r)
	require.Len(t, records, 4)

	assert.Equal(t, int64(1), records[0].LineNo)
	assert.False(t, records[0].IsError())
	obj, ok := records[0].Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "CNR1", obj["Booking ID"])
	assert.Equal(t, json.Number("250.50"), obj["Booking Value"])

	// blank lines 2 and 3 still advance the counter
	assert.True(t, records[1].IsError())
	assert.Equal(t, int64(4), records[1].LineNo)
	assert.Equal(t, &ErrorRecord{
		Error:      InvalidJSON,
		LineNumber: 4,
		RawData:    `{"Booking ID":"CNR2"`,
	}, records[1].Invalid)

	assert.Equal(t, int64(5), records[2].LineNo)
	assert.False(t, records[2].IsError())

	assert.Equal(t, []interface{}{json.Number("1"), json.Number("2"), json.Number("3")}, records[3].Value)

	assert.Equal(t, int64(1), r.Malformed())
	assert.Equal(t, int64(6), r.LineNo())
	assert.Contains(t, logs.String(), "Line 4 is not valid JSON")
}

func TestRecordMarshalJSON(t *testing.T) {
	r, err := Open(writeSource(t, "{\"a\":1.10}\nnot json\nnull\n"), Options{Logger: logging.Discard()})
	require.NoError(t, err)

	records := collect(t, r)
	require.Len(t, records, 3)

	b, err := json.Marshal(records[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.10}`, string(b))
	assert.Equal(t, `{"a":1.10}`, string(b))

	b, err = json.Marshal(records[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"invalid_json","line_number":2,"raw_data":"not json"}`, string(b))

	b, err = json.Marshal(records[2])
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestReaderTrailingDataIsMalformed(t *testing.T) {
	r, err := Open(writeSource(t, `{"a":1} {"b":2}`), Options{Logger: logging.Discard()})
	require.NoError(t, err)

	records := collect(t, r)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsError())
}

func TestReaderCRLFAndMissingFinalNewline(t *testing.T) {
	r, err := Open(writeSource(t, "{\"a\":1}\r\n\r\n{\"a\":2}"), Options{Logger: logging.Discard()})
	require.NoError(t, err)

	records := collect(t, r)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].LineNo)
	assert.Equal(t, int64(3), records[1].LineNo)
}

func TestReaderLongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	r, err := Open(writeSource(t, `{"note":"`+long+`"}`+"\n"), Options{Logger: logging.Discard()})
	require.NoError(t, err)

	records := collect(t, r)
	require.Len(t, records, 1)
	assert.Equal(t, long, records[0].Value.(map[string]interface{})["note"])
}

func TestReaderWindows1251(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().String(`{"Pickup Location":"Москва"}` + "\n")
	require.NoError(t, err)

	r, err := Open(writeSource(t, encoded), Options{Encoding: "windows-1251", Logger: logging.Discard()})
	require.NoError(t, err)

	records := collect(t, r)
	require.Len(t, records, 1)
	assert.Equal(t, "Москва", records[0].Value.(map[string]interface{})["Pickup Location"])
}

func TestOpenUnsupportedEncoding(t *testing.T) {
	_, err := Open(writeSource(t, "{}"), Options{Encoding: "koi8-r"})
	assert.True(t, errors.Is(err, ErrUnsupportedEncoding))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.txt"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = Records(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), Options{})
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestOpenOutsideAllowedBaseDir(t *testing.T) {
	path := writeSource(t, "{}")
	_, err := Open(path, Options{AllowedBaseDir: t.TempDir()})
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.True(t, errors.Is(err, ErrOutsideBaseDir))

	r, err := Open(path, Options{AllowedBaseDir: filepath.Dir(path), Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestOpenAllowedBaseDirEscapes(t *testing.T) {
	tmpDir := t.TempDir()
	base := filepath.Join(tmpDir, "data")
	require.NoError(t, os.MkdirAll(base, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "data_evil"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "rides.txt"), []byte("{}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "data_evil", "rides.txt"), []byte("{}\n"), 0644))

	tests := []struct {
		name string
		path string
	}{
		{name: "dot-dot escape", path: filepath.Join(base, "..", "rides.txt")},
		{name: "sibling with common prefix", path: filepath.Join(tmpDir, "data_evil", "rides.txt")},
		{name: "absolute path outside", path: filepath.Join(tmpDir, "rides.txt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path, Options{AllowedBaseDir: base})
			assert.True(t, errors.Is(err, ErrSourceUnavailable))
			assert.True(t, errors.Is(err, ErrOutsideBaseDir), "got %v", err)
		})
	}
}

func TestOpenSymlinkLeavingBaseDir(t *testing.T) {
	tmpDir := t.TempDir()
	base := filepath.Join(tmpDir, "data")
	outside := filepath.Join(tmpDir, "outside")
	require.NoError(t, os.MkdirAll(base, 0755))
	require.NoError(t, os.MkdirAll(outside, 0755))

	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("{}\n"), 0644))

	link := filepath.Join(base, "rides.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("Symlinks not supported: %v", err)
	}

	_, err := Open(link, Options{AllowedBaseDir: base})
	assert.True(t, errors.Is(err, ErrOutsideBaseDir))

	// without a base directory the link is followed
	r, err := Open(link, Options{Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestOpenDirectory(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(dir, Options{})
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.True(t, errors.Is(err, ErrNotRegularFile))

	_, err = Open(dir, Options{AllowedBaseDir: dir})
	assert.True(t, errors.Is(err, ErrNotRegularFile))
}

func TestOpenMissingFileInsideBaseDir(t *testing.T) {
	base := t.TempDir()
	_, err := Open(filepath.Join(base, "missing.txt"), Options{AllowedBaseDir: base})
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMalformedLinesCounted(t *testing.T) {
	before := testutil.ToFloat64(metrics.CounterSourceMalformedLines)

	r, err := Open(writeSource(t, "{}\n{bad\n\nnope\n"), Options{Logger: logging.Discard()})
	require.NoError(t, err)
	collect(t, r)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CounterSourceMalformedLines)-before)
}

func TestRecordsEarlyBreakReleasesFile(t *testing.T) {
	r, err := Open(writeSource(t, "{}\n{}\n{}\n"), Options{Logger: logging.Discard()})
	require.NoError(t, err)

	for range r.Records(context.Background()) {
		break
	}

	assert.True(t, r.closed)
	_, err = r.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, r.Close())
}

func TestRecordsExhaustionReleasesFile(t *testing.T) {
	seq, err := Records(context.Background(), writeSource(t, "{}\n"), Options{Logger: logging.Discard()})
	require.NoError(t, err)

	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 1, n)
}

func TestNextHonorsCanceledContext(t *testing.T) {
	r, err := Open(writeSource(t, "{}\n"), Options{Logger: logging.Discard()})
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Next(ctx)
	assert.Equal(t, context.Canceled, err)
}
