//go:build linux

package main

import (
	"memprobe/process"
	"memprobe/process_linux"
)

var (
	openProcess     process.OpenFunc = process_linux.Open
	checkPrivileges                  = process_linux.CheckPrivileges
	findByName                       = process_linux.OneByName
)
