package main

import "time"

const defaultListen = ":7171"

// GlobalFlags holds persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
}

// UpFlags holds flags for the up command
type UpFlags struct {
	Serve  bool
	Listen string
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	Listen string
}

// QueryFlags holds flags for commands that talk to a running daemon
type QueryFlags struct {
	APIUrl     string
	APITimeout time.Duration
}
