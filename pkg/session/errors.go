package session

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	// ErrTornDown is returned by Activate after Teardown.
	ErrTornDown = xerrors.New("session: torn down")
	// ErrBusy is returned by Activate when the session is not Closed.
	ErrBusy = xerrors.New("session: already active")
)

// ErrorKind classifies the failures a session reports to its host.
type ErrorKind int

const (
	// DeviceUnavailable means no render target was available at activation.
	DeviceUnavailable ErrorKind = iota
	// StreamAcquisitionFailed means the camera was denied, missing or lost.
	StreamAcquisitionFailed
	// DecoderInitFailed means the decoding engine could not be prepared.
	DecoderInitFailed
	// DecodeUnexpectedFailure is a per-frame fault other than "nothing found".
	DecodeUnexpectedFailure
)

func (k ErrorKind) String() string {
	switch k {
	case DeviceUnavailable:
		return "DeviceUnavailable"
	case StreamAcquisitionFailed:
		return "StreamAcquisitionFailed"
	case DecoderInitFailed:
		return "DecoderInitFailed"
	case DecodeUnexpectedFailure:
		return "DecodeUnexpectedFailure"
	default:
		return "Unknown"
	}
}

// Message is the operator-facing text shown by the host for this kind of
// failure. The texts are part of the UI contract and kept verbatim.
func (k ErrorKind) Message() string {
	switch k {
	case DeviceUnavailable:
		return "Camera indisponivel neste dispositivo."
	case StreamAcquisitionFailed:
		return "Nao foi possivel acessar a camera. Verifique as permissoes e tente novamente."
	case DecoderInitFailed:
		return "Nao foi possivel iniciar o leitor de codigo de barras."
	case DecodeUnexpectedFailure:
		return "Erro ao ler o codigo de barras. Tente novamente."
	default:
		return "Erro inesperado no leitor de codigo de barras."
	}
}

// ScanError is a classified session failure.
type ScanError struct {
	Kind  ErrorKind
	Err   error
	frame xerrors.Frame
}

func newScanError(kind ErrorKind, err error) *ScanError {
	return &ScanError{Kind: kind, Err: err, frame: xerrors.Caller(1)}
}

func (e *ScanError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

func (e *ScanError) Format(s fmt.State, v rune) { xerrors.FormatError(e, s, v) }

func (e *ScanError) FormatError(p xerrors.Printer) error {
	p.Print(e.Kind.String())
	e.frame.Format(p)
	return e.Err
}
