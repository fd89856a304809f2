package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidToken      = errors.New("invalid download token")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrUpload            = errors.New("blob upload failed")
	ErrPersist           = errors.New("record write failed")
	ErrSubscriberRead    = errors.New("subscriber read failed")
)
