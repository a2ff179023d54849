package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	KeyDzoomRatio      = "dzoom_ratio"
	KeyDzoomRatioDelta = "dzoom_ratio_delta"
	KeyRelAlt          = "rel_alt"
	KeyAbsAlt          = "abs_alt"

	deltaPrefix    = "delta:"
	absAltSplitter = " abs_alt: "
)

// Normalize unpacks the composite annotation fields in their fixed order.
func Normalize(a Annotation) error {
	if err := ProcessDzoom(a); err != nil {
		return err
	}
	return ProcessAltitude(a)
}

// ProcessDzoom splits "ratio,delta:d" into dzoom_ratio and dzoom_ratio_delta.
// Without a comma the delta is null. Both halves stay strings; the table
// builder casts them.
func ProcessDzoom(a Annotation) error {
	v, ok := a[KeyDzoomRatio]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingKey, KeyDzoomRatio)
	}
	parts := strings.Split(v.String(), ",")
	a[KeyDzoomRatio] = StringValue(parts[0])
	if len(parts) > 1 {
		a[KeyDzoomRatioDelta] = StringValue(strings.ReplaceAll(parts[1], deltaPrefix, ""))
	} else {
		a[KeyDzoomRatioDelta] = NullValue()
	}
	return nil
}

// ProcessAltitude splits "rel abs_alt: abs" into the rel_alt and abs_alt floats.
func ProcessAltitude(a Annotation) error {
	v, ok := a[KeyRelAlt]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingKey, KeyRelAlt)
	}
	parts := strings.Split(v.String(), absAltSplitter)
	if len(parts) != 2 {
		return fmt.Errorf("%w: %s %q must contain %q exactly once", ErrMalformedBlock, KeyRelAlt, v.String(), strings.TrimSpace(absAltSplitter))
	}
	rel, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return fmt.Errorf("%w: %s %q is not a float", ErrTypeCoercion, KeyRelAlt, parts[0])
	}
	abs, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return fmt.Errorf("%w: %s %q is not a float", ErrTypeCoercion, KeyAbsAlt, parts[1])
	}
	a[KeyRelAlt] = FloatValue(rel)
	a[KeyAbsAlt] = FloatValue(abs)
	return nil
}
