// Package validator checks classified payloads before they are persisted.
package validator

import (
	"strings"

	"github.com/jittakal/datalogger/internal/errors"
	"github.com/jittakal/datalogger/pkg/reading"
)

// RequestValidator validates ingest payloads.
type RequestValidator struct{}

// NewRequestValidator creates a new request validator.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{}
}

// Validate checks a payload.
//
// A Line is valid when it is non-empty after trimming. A Record must carry
// a timestamp and at least one of data or csv_line.
func (v *RequestValidator) Validate(p reading.Payload) error {
	switch p.Kind {
	case reading.KindLine:
		if strings.TrimSpace(p.Line) == "" {
			return errors.ErrEmptyBody
		}
		return nil

	case reading.KindRecord:
		if _, ok := p.Field(reading.FieldTimestamp); !ok {
			return errors.ErrMissingTimestamp
		}
		_, hasData := p.Field(reading.FieldData)
		_, hasLine := p.Field(reading.FieldCSVLine)
		if !hasData && !hasLine {
			return errors.ErrMissingDataField
		}
		return nil

	default:
		return errors.ErrEmptyBody
	}
}
