package app

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrSourceNotFound = errors.New("source not found")
	ErrJobNotFound    = errors.New("sync job not found")
)
