package domain

import "errors"

var (
	ErrRecordNotFound        = errors.New("container record not found")
	ErrDuplicateRecord       = errors.New("container record already exists for resource")
	ErrNameInUse             = errors.New("unique name already registered")
	ErrPortRangeExhausted    = errors.New("host port range exhausted")
	ErrContentMissing        = errors.New("resource content missing")
	ErrBuildFailure          = errors.New("image build failed")
	ErrContainerStartFailure = errors.New("container failed to start")
	ErrContainerNotFound     = errors.New("container not found")
	ErrEngineUnreachable     = errors.New("container engine unreachable")
	ErrInvalidName           = errors.New("invalid container name")
	ErrPortOutOfRange        = errors.New("port out of range")
	ErrRenderFailed          = errors.New("render resource failed")
	ErrResourceNotFound      = errors.New("resource not found")
	ErrInvalidContent        = errors.New("invalid resource content")
)
