// Package dstat understands the CSV dump written by `dstat --output`.
// It turns the two header rows and the first value row into flat metric
// records named after the agent's canonical stat names.
package dstat

// keyMap maps a dstat category (whitespace already replaced by '_') to
// its sub-metric columns and their canonical stat names. Read-only.
var keyMap = map[string]map[string]string{
	"load_avg": {
		"1m":  "loadavg-short",
		"5m":  "loadavg-middle",
		"15m": "loadavg-long",
	},
	"total_cpu_usage": {
		"usr": "cpu-usr",
		"sys": "cpu-sys",
		"idl": "cpu-idl",
		"wai": "cpu-wai",
		"hiq": "cpu-hiq",
		"siq": "cpu-siq",
	},
	"net/total": {
		"recv": "net-recv",
		"send": "net-send",
	},
	"/": {
		"used": "disk-used",
		"free": "disk-free",
	},
	"memory_usage": {
		"used": "mem-used",
		"buff": "mem-buff",
		"cach": "mem-cach",
		"free": "mem-free",
	},
	"dsk/total": {
		"read": "dsk-read",
		"writ": "dsk-writ",
	},
	"paging": {
		"in":  "paging-in",
		"out": "paging-out",
	},
	"system": {
		"int": "sys-int",
		"csw": "sys-csw",
	},
	"swap": {
		"used": "swap-used",
		"free": "swap-free",
	},
	"procs": {
		"run": "procs-run",
		"blk": "procs-blk",
		"new": "procs-new",
	},
}

// Resolve returns the canonical stat name for a column. ok is false when
// either the category or the sub-metric is not tracked, which is the
// common case for most dstat columns.
func Resolve(category, subMetric string) (stat string, ok bool) {
	subs, ok := keyMap[category]
	if !ok {
		return "", false
	}
	stat, ok = subs[subMetric]
	return stat, ok
}
