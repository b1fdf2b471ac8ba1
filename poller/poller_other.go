//go:build !linux && !darwin && !freebsd

package poller

// New 在不支持的平台上返回占位错误，保证编译通过
func New() (Poller, error) {
	return nil, ErrPlatformNotSupported
}
