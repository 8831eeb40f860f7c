package http

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"choropleth/internal/mercator"
)

// tileQuery holds the raw tile parameters as they arrived.
type tileQuery struct {
	Layer string
	Style string
	Z     string
	X     string
	Y     string
}

type tileParams struct {
	Layer string `validate:"omitempty,max=64"`
	Style string `validate:"omitempty,max=64,alphanum"`
	Z     int    `validate:"gte=0"`
	X     int    `validate:"gte=0"`
	Y     int    `validate:"gte=0"`
}

// parseTileParams rejects missing, non-integer and out of range coordinates
// before anything is rendered.
func (h *Handlers) parseTileParams(q tileQuery) (tileParams, error) {
	params := tileParams{Layer: q.Layer, Style: q.Style}

	var err error
	if params.Z, err = parseCoord("z", q.Z); err != nil {
		return params, err
	}
	if params.X, err = parseCoord("x", q.X); err != nil {
		return params, err
	}
	if params.Y, err = parseCoord("y", q.Y); err != nil {
		return params, err
	}

	if err := h.validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return params, fmt.Errorf("invalid %s: failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return params, err
	}

	if err := mercator.ValidTile(params.X, params.Y, params.Z, h.config.MaxZoom); err != nil {
		return params, err
	}

	return params, nil
}

func parseCoord(name, raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("missing parameter %s", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parameter %s must be an integer, got %q", name, raw)
	}
	return v, nil
}
