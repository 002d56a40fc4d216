package services

import "errors"

var (
	// ErrDecode means the submitted bytes are not a decodable image.
	ErrDecode = errors.New("image could not be decoded")
	// ErrInference means the detector failed on this frame.
	ErrInference = errors.New("inference failed")
	// ErrPersistence means the frame's records were not stored; none of them were written.
	ErrPersistence = errors.New("failed to store violations")
)
