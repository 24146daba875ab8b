// Package model turns parsed building meshes into scene nodes in the
// viewer's canonical frame: Y up, centered on X/Z, resting on Y=0.
package model

import (
	"github.com/Faultbox/estateview/internal/engine/scene"
)

// Edge overlay settings.
const (
	EdgeThresholdDeg = 25
	EdgeColor        = 0x333333
	EdgeOpacity      = 0.5
)

// Palette returns fresh glass, concrete and metal materials, in that order.
// Meshes take palette[i % len(palette)].
func Palette() []*scene.Material {
	glass := scene.NewMaterial("glass", scene.Physical, scene.Hex(0xbedcff))
	glass.Metalness = 0.1
	glass.Roughness = 0.05
	glass.Transparent = true
	glass.Opacity = 0.6
	glass.Clearcoat = 1
	glass.ClearcoatRoughness = 0.1

	concrete := scene.NewMaterial("concrete", scene.Standard, scene.Hex(0xf0f0f0))
	concrete.Metalness = 0.1
	concrete.Roughness = 0.7

	metal := scene.NewMaterial("metal", scene.Standard, scene.Hex(0xaaaaaa))
	metal.Metalness = 0.8
	metal.Roughness = 0.2

	return []*scene.Material{glass, concrete, metal}
}

func edgeMaterial() *scene.Material {
	m := scene.NewMaterial("edges", scene.LineBasic, scene.Hex(EdgeColor))
	m.Transparent = true
	m.Opacity = EdgeOpacity
	return m
}
