package annotation

import "errors"

var (
	ErrInvalidFeature = errors.New("annotation: invalid feature")
	ErrInvalidOptions = errors.New("annotation: invalid options")
)
