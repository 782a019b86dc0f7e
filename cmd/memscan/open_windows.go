//go:build windows

package main

import (
	"memprobe/process"
	"memprobe/process_windows"
)

var (
	openProcess     process.OpenFunc = process_windows.Open
	checkPrivileges                  = process_windows.CheckPrivileges
	findByName                       = process_windows.OneByName
)
