//go:build !linux

package tcpinfo

func GetTCPInfo(fd int) (*Snapshot, error) {
	return nil, ErrUnsupported
}

func Supported() bool {
	return false
}
