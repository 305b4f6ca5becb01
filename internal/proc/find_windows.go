//go:build windows

package proc

// FindProcessByName is not implemented on Windows. Shared-instance detection
// falls back to port probing there.
func FindProcessByName(name string) ([]int, error) {
	return nil, nil
}
