package authapi

import "fmt"

// CodeInvalidCurrentPassword es el codigo que envia el servidor cuando la
// contraseña actual no coincide en un cambio de contraseña.
const CodeInvalidCurrentPassword = "INVALID_CURRENT_PASSWORD"

// NetworkError indica que la llamada no obtuvo respuesta del servidor.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: no response: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError representa una respuesta recibida que no fue exitosa: un status
// HTTP de error o un cuerpo con success=false.
type StatusError struct {
	StatusCode int
	Message    string
	Code       string
	Err        error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("auth api http error: status=%d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.Err }
