package lock

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// OwnerFileName is the name of the record file inside the lock directory.
const OwnerFileName = "owner"

// ErrMalformedOwner means the owner file exists but cannot be parsed.
var ErrMalformedOwner = errors.New("malformed owner record")

// OwnerRecord identifies the process holding the lock and when it got it.
type OwnerRecord struct {
	PID        int       `json:"pid"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Same reports whether r and o describe the same acquisition.
func (r OwnerRecord) Same(o OwnerRecord) bool {
	return r.PID == o.PID && r.Token == o.Token
}

// Marshal encodes the record in the line-oriented key=value format.
func (r OwnerRecord) Marshal() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "pid=%d\n", r.PID)
	fmt.Fprintf(&buf, "token=%s\n", r.Token)
	fmt.Fprintf(&buf, "acquired_at=%d\n", r.AcquiredAt.Unix())
	return buf.Bytes()
}

// ParseOwnerRecord decodes an owner file. All three fields are required;
// "time" is accepted as an alias of "acquired_at".
func ParseOwnerRecord(data []byte) (OwnerRecord, error) {
	var rec OwnerRecord
	var havePID, haveTok, haveT bool

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return OwnerRecord{}, fmt.Errorf("%w: line %q", ErrMalformedOwner, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "pid":
			pid, err := strconv.Atoi(value)
			if err != nil || pid <= 0 {
				return OwnerRecord{}, fmt.Errorf("%w: pid %q", ErrMalformedOwner, value)
			}
			rec.PID = pid
			havePID = true
		case "token":
			if value == "" {
				return OwnerRecord{}, fmt.Errorf("%w: empty token", ErrMalformedOwner)
			}
			rec.Token = value
			haveTok = true
		case "acquired_at", "time":
			secs, err := strconv.ParseInt(value, 10, 64)
			if err != nil || secs < 0 {
				return OwnerRecord{}, fmt.Errorf("%w: %s %q", ErrMalformedOwner, key, value)
			}
			rec.AcquiredAt = time.Unix(secs, 0)
			haveT = true
		}
	}
	if err := sc.Err(); err != nil {
		return OwnerRecord{}, fmt.Errorf("%w: %v", ErrMalformedOwner, err)
	}

	switch {
	case !havePID:
		return OwnerRecord{}, fmt.Errorf("%w: missing pid", ErrMalformedOwner)
	case !haveTok:
		return OwnerRecord{}, fmt.Errorf("%w: missing token", ErrMalformedOwner)
	case !haveT:
		return OwnerRecord{}, fmt.Errorf("%w: missing acquired_at", ErrMalformedOwner)
	}
	return rec, nil
}

// readOwner reads the owner record of the lock directory dir.
func readOwner(dir string) (OwnerRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, OwnerFileName))
	if err != nil {
		return OwnerRecord{}, err
	}
	return ParseOwnerRecord(data)
}

// writeOwner publishes rec inside dir with a temp file and rename, so other
// processes never observe a half-written record. It does not create dir: if
// the lock directory vanished the write must fail.
func writeOwner(dir string, rec OwnerRecord) error {
	tmp, err := os.CreateTemp(dir, "."+OwnerFileName+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(rec.Marshal()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, OwnerFileName)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
