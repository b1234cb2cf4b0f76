package patient

import "errors"

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrPatientInactive      = errors.New("operation not permitted: patient is inactive")
	ErrPatientAlreadyExists = errors.New("patient with this email already exists")
)
