// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build unix

package npy

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmapReadWrite(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func mmapReadOnly(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
}

func msync(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}

func munmap(data []byte) error {
	return unix.Munmap(data)
}
