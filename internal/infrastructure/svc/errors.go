package svc

import "errors"

// ErrNoExchangesReady no exchange passed initialization
var ErrNoExchangesReady = errors.New("no exchanges ready")

// ErrStorageInitFailed storage backend initialization failed
var ErrStorageInitFailed = errors.New("storage initialization failed")
