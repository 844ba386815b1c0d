package collector

import "github.com/prometheus/procfs"

// irqTotal returns the number of interrupts serviced since boot, the
// counter dstat reports as system/int.
func irqTotal() (uint64, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, err
	}
	st, err := fs.Stat()
	if err != nil {
		return 0, err
	}
	return st.IRQTotal, nil
}
