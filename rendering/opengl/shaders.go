//go:build opengl
// +build opengl

package opengl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.3-core/gl"
)

const tileVertexShader = `
#version 430 core

layout(location = 0) in vec3 position;
layout(location = 1) in vec3 normal;
layout(location = 2) in vec2 tileUV;
layout(location = 3) in vec2 surfaceUV;

uniform mat4 viewProj;
uniform vec4 uvTransform; // scaleU, scaleV, offsetU, offsetV

out vec3 vNormal;
out vec2 vTileUV;
out vec2 vSurfaceUV;

void main() {
    vNormal = normal;
    vTileUV = tileUV * uvTransform.xy + uvTransform.zw;
    vSurfaceUV = surfaceUV;
    gl_Position = viewProj * vec4(position, 1.0);
}
` + "\x00"

const tileFragmentShader = `
#version 430 core

in vec3 vNormal;
in vec2 vTileUV;
in vec2 vSurfaceUV;

uniform sampler2D tileTexture;
uniform sampler2D surfaceTexture;
uniform bool hasTile;
uniform bool hasSurface;
uniform vec3 lightDir;

out vec4 fragColor;

void main() {
    vec3 color = vec3(0.0, 0.25, 0.5);
    if (hasTile) {
        vec4 tile = texture(tileTexture, vTileUV);
        color = mix(color, tile.rgb, tile.a);
    }
    if (hasSurface) {
        color *= texture(surfaceTexture, vSurfaceUV * 64.0).rgb * 1.5;
    }
    float diffuse = max(dot(normalize(vNormal), lightDir), 0.0);
    fragColor = vec4(color * (0.3 + 0.7 * diffuse), 1.0);
}
` + "\x00"

// glStatus reads a compile or link status and, on failure, the info log of
// the shader or program it was queried from.
func glStatus(id, status uint32, getiv func(uint32, uint32, *int32), getLog func(uint32, int32, *int32, *uint8)) error {
	var ok int32
	getiv(id, status, &ok)
	if ok != gl.FALSE {
		return nil
	}
	var n int32
	getiv(id, gl.INFO_LOG_LENGTH, &n)
	buf := make([]byte, n+1)
	getLog(id, n, nil, &buf[0])
	return errors.New(strings.TrimRight(string(buf), "\x00\n"))
}

// buildProgram compiles one shader per stage and links them. The shaders are
// released once linked.
func buildProgram(stages map[uint32]string) (uint32, error) {
	program := gl.CreateProgram()
	for stage, source := range stages {
		shader := gl.CreateShader(stage)
		src, free := gl.Strs(source)
		gl.ShaderSource(shader, 1, src, nil)
		free()
		gl.CompileShader(shader)
		if err := glStatus(shader, gl.COMPILE_STATUS, gl.GetShaderiv, gl.GetShaderInfoLog); err != nil {
			gl.DeleteShader(shader)
			gl.DeleteProgram(program)
			return 0, fmt.Errorf("%s shader: %w", stageName(stage), err)
		}
		gl.AttachShader(program, shader)
		// flagged for deletion, freed with the program
		gl.DeleteShader(shader)
	}

	gl.LinkProgram(program)
	if err := glStatus(program, gl.LINK_STATUS, gl.GetProgramiv, gl.GetProgramInfoLog); err != nil {
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link: %w", err)
	}
	return program, nil
}

func stageName(stage uint32) string {
	switch stage {
	case gl.VERTEX_SHADER:
		return "vertex"
	case gl.FRAGMENT_SHADER:
		return "fragment"
	}
	return fmt.Sprintf("stage 0x%x", stage)
}

// newTileProgram builds the program every surface primitive is drawn with.
func newTileProgram() (uint32, error) {
	return buildProgram(map[uint32]string{
		gl.VERTEX_SHADER:   tileVertexShader,
		gl.FRAGMENT_SHADER: tileFragmentShader,
	})
}
