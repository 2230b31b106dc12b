// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the paths given in the command line.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// IsDir returns whether path exists and is a directory.
func IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to IsDir(%q)", path)
	}
	return info.IsDir(), nil
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It returns an error if `dir` has an unknown user (e.g: `~unknown/...`)
func ReplaceTildeInDir(dir string) (string, error) {
	if !strings.HasPrefix(dir, "~") {
		return dir, nil
	}
	userName, rest, _ := strings.Cut(dir[1:], "/")
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}

// ResolvePath expands a leading "~" and cleans path. Empty paths are returned as is.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	path, err := ReplaceTildeInDir(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

// RequireDir resolves dir with ResolvePath and checks that it is an existing directory.
func RequireDir(dir string) (string, error) {
	resolved, err := ResolvePath(dir)
	if err != nil {
		return "", err
	}
	isDir, err := IsDir(resolved)
	if err != nil {
		return "", err
	}
	if !isDir {
		return "", errors.Errorf("%q is not a directory", dir)
	}
	return resolved, nil
}
