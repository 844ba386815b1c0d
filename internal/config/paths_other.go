//go:build !linux && !darwin

package config

func configSearchPaths() []string {
	return nil
}
