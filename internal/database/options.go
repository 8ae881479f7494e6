package database

import (
	"github.com/mitchellh/mapstructure"

	"github.com/koustreak/waaa/internal/errs"
)

// DecodeSelectOptions converts a loosely typed option bag, as it arrives from
// JSON request bodies or template data, into SelectOptions. Recognized keys
// are where, group, order, having and limit; group and order accept either a
// single string or a list. Unknown keys are rejected.
func DecodeSelectOptions(raw map[string]any) (*SelectOptions, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var opts SelectOptions
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to build options decoder", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, errs.Wrap(errs.ErrKindBadStatement, "invalid select options", err).WithFatal(false)
	}
	return &opts, nil
}
