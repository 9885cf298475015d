package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidMode is returned for unknown background modes
var ErrInvalidMode = errors.New("unknown background mode")

// BackgroundMode names one of the three background treatments
type BackgroundMode string

const (
	ModeTransparent BackgroundMode = "transparent"
	ModeSolid       BackgroundMode = "solid"
	ModeGradient    BackgroundMode = "gradient"
)

// ParseBackgroundMode converts a user supplied mode name
func ParseBackgroundMode(s string) (BackgroundMode, error) {
	switch m := BackgroundMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTransparent, ModeSolid, ModeGradient:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// BackgroundConfig is the active background treatment handed to the renderer.
// Implementations are Transparent, Solid and Gradient.
type BackgroundConfig interface {
	Mode() BackgroundMode
	isBackground()
}

// Transparent leaves the exported surface fully transparent.
type Transparent struct{}

// Solid fills the surface with one color.
type Solid struct {
	ColorHex string
}

// Gradient fills the surface with a two stop linear gradient.
// AngleDegrees is in [0, 360): 0 runs left to right, 90 runs top to bottom.
type Gradient struct {
	ColorHexA    string
	ColorHexB    string
	AngleDegrees float64
}

func (Transparent) Mode() BackgroundMode { return ModeTransparent }
func (Solid) Mode() BackgroundMode       { return ModeSolid }
func (Gradient) Mode() BackgroundMode    { return ModeGradient }

func (Transparent) isBackground() {}
func (Solid) isBackground()       {}
func (Gradient) isBackground()    {}

// NormalizeAngle wraps deg into [0, 360)
func NormalizeAngle(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// Defaults used by the studio editor when a session starts.
const (
	DefaultSolidColor    = "#111827"
	DefaultGradientA     = "#8A3FFC"
	DefaultGradientB     = "#00F0FF"
	DefaultGradientAngle = 135
)

// BackgroundState keeps the values entered for every variant while only one
// of them is active. Switching modes never touches the other fields.
type BackgroundState struct {
	Mode          BackgroundMode `json:"mode"`
	SolidColor    string         `json:"solid_color"`
	GradientA     string         `json:"gradient_a"`
	GradientB     string         `json:"gradient_b"`
	GradientAngle float64        `json:"gradient_angle"`
}

// DefaultBackgroundState returns the initial editor state
func DefaultBackgroundState() BackgroundState {
	return BackgroundState{
		Mode:          ModeTransparent,
		SolidColor:    DefaultSolidColor,
		GradientA:     DefaultGradientA,
		GradientB:     DefaultGradientB,
		GradientAngle: DefaultGradientAngle,
	}
}

// Active returns the BackgroundConfig for the current mode
func (s BackgroundState) Active() BackgroundConfig {
	switch s.Mode {
	case ModeSolid:
		return Solid{ColorHex: s.SolidColor}
	case ModeGradient:
		return Gradient{
			ColorHexA:    s.GradientA,
			ColorHexB:    s.GradientB,
			AngleDegrees: NormalizeAngle(s.GradientAngle),
		}
	default:
		return Transparent{}
	}
}
