package collector

import "os"

// TruncateScratch empties the scratch file, creating it when missing, so
// that dstat (which appends to its --output file) starts from zero.
func TruncateScratch(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return &ScratchError{Op: "prepare", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &ScratchError{Op: "prepare", Path: path, Err: err}
	}
	return nil
}
