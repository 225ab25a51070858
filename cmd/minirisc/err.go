package main

import (
	"errors"
)

var (
	ErrLogLevel = errors.New(f("unknown log level"))
	ErrFlagBind = errors.New(f("flag binding"))
)
