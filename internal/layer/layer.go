// Package layer derives the architectural context of a run and enforces
// per-layer rules on generated content before it reaches the working tree.
package layer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Target is the side of the system a plan addresses.
type Target string

const (
	TargetBackend   Target = "backend"
	TargetFrontend  Target = "frontend"
	TargetFullstack Target = "fullstack"
)

// Layer is an architectural partition with its own dependency rules.
type Layer string

const (
	LayerDomain       Layer = "domain"
	LayerData         Layer = "data"
	LayerInfra        Layer = "infra"
	LayerPresentation Layer = "presentation"
	LayerMain         Layer = "main"
)

// AllLayers returns every known layer in dependency order.
func AllLayers() []Layer {
	return []Layer{LayerDomain, LayerData, LayerInfra, LayerPresentation, LayerMain}
}

// Valid reports whether l names a known layer.
func (l Layer) Valid() bool {
	for _, known := range AllLayers() {
		if l == known {
			return true
		}
	}
	return false
}

// Strict reports whether the layer carries the stricter scoring bar.
// Domain carries the business rules and main wires the whole system, so
// mistakes there are costlier than in the outer layers.
func (l Layer) Strict() bool {
	return l == LayerDomain || l == LayerMain
}

// Info is the architectural context of a run: derived once, then immutable.
type Info struct {
	Target Target
	Layer  Layer
}

// Derive resolves layer info with the precedence: filename convention, then
// validator hints, then plan metadata. It returns an error when nothing
// yields a usable layer, so the caller decides whether that is fatal.
func Derive(planPath, hintTarget, hintLayer, metadataLayer string) (Info, error) {
	info := Info{Target: TargetBackend}

	name := strings.ToLower(filepath.Base(planPath))
	for _, t := range []Target{TargetFullstack, TargetFrontend, TargetBackend} {
		if strings.Contains(name, string(t)) {
			info.Target = t
			break
		}
	}
	if hintTarget != "" {
		if t := Target(hintTarget); t == TargetBackend || t == TargetFrontend || t == TargetFullstack {
			info.Target = t
		}
	}

	for _, l := range AllLayers() {
		if strings.Contains(name, string(l)) {
			info.Layer = l
			break
		}
	}
	if info.Layer == "" && hintLayer != "" && Layer(hintLayer).Valid() {
		info.Layer = Layer(hintLayer)
	}
	if info.Layer == "" && metadataLayer != "" && Layer(metadataLayer).Valid() {
		info.Layer = Layer(metadataLayer)
	}
	if info.Layer == "" {
		return Info{}, fmt.Errorf("could not derive layer from plan name %q, validator hints, or metadata", filepath.Base(planPath))
	}

	return info, nil
}

// FromPath extracts the first recognized layer segment of a file path, or ""
// when the path carries no layer folder.
func FromPath(path string) Layer {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if l := Layer(strings.ToLower(segment)); l.Valid() {
			return l
		}
	}
	return ""
}
