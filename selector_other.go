//go:build !linux && !darwin

package eventserver

type backend struct{}

func openBackend() (*backend, error) { return nil, ErrPlatformNotSupported }

func (*backend) add(int) error { return ErrPlatformNotSupported }

func (*backend) del(int) error { return ErrPlatformNotSupported }

func (*backend) wait(func(fd int)) error { return ErrPlatformNotSupported }

func (*backend) wake() error { return ErrPlatformNotSupported }

func (*backend) close() error { return nil }
