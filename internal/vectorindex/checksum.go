package vectorindex

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
)

var errChecksumMissing = errors.New("checksum sidecar not found")

// WriteChecksum computes a combined sha256 over every regular file in dir
// (sorted by name) and writes it to a sibling "<dir-name>.sha256" file, so
// a vector directory named "faiss_index" gets "faiss_index.sha256" next to
// it — the on-disk name is kept from the FAISS-backed store this replaces,
// even though the format inside changed.
func WriteChecksum(dir string) error {
	sum, err := hashDir(dir)
	if err != nil {
		return err
	}
	return atomicWrite(checksumPath(dir), func(f *os.File) error {
		_, err := f.WriteString(hex.EncodeToString(sum))
		return err
	})
}

// VerifyChecksum recomputes the directory hash and compares it against
// the persisted sidecar. Returns errChecksumMissing if no sidecar exists
// (legacy indexes built before checksumming existed).
func VerifyChecksum(dir string) error {
	path := checksumPath(dir)
	stored, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errChecksumMissing
		}
		return err
	}

	sum, err := hashDir(dir)
	if err != nil {
		return err
	}
	if hex.EncodeToString(sum) != string(stored) {
		return errors.New("checksum mismatch: index directory contents do not match sidecar")
	}
	return nil
}

func checksumPath(dir string) string {
	return filepath.Join(filepath.Dir(dir), filepath.Base(dir)+".sha256")
}

// hashDir walks dir (non-recursive is sufficient: the index directory
// only ever holds flat files) and hashes file name + contents for every
// regular file in sorted order.
func hashDir(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return sha256.New().Sum(nil), nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return h.Sum(nil), nil
}
