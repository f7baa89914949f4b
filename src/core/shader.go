// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/utility/kar"
	"github.com/gobuffalo/packr"
)

const shaderSuffix = ".spv"

// ShaderType represents the type of shader thats loaded
type ShaderType int

// Identifies shader objects with their types
const (
	VertexShaderType ShaderType = iota
	FragmentShaderType
	UnknownShaderType
)

// shaderTypeOf reads the type from a compiled shader file name. The name
// must have exactly two dots: the shader name, its stage and the .spv suffix.
func shaderTypeOf(filename string) (string, ShaderType) {
	if !strings.HasSuffix(filename, shaderSuffix) {
		return "", UnknownShaderType
	}
	nodes := strings.Split(strings.TrimSuffix(filename, shaderSuffix), ".")
	if len(nodes) != 2 {
		return "", UnknownShaderType
	}
	switch nodes[1] {
	case "vert":
		return nodes[0], VertexShaderType
	case "frag":
		return nodes[0], FragmentShaderType
	default:
		return "", UnknownShaderType
	}
}

// ShaderSet is the compiled code of the two pipeline stages.
type ShaderSet struct {
	Name     string
	Vertex   []byte
	Fragment []byte
}

// ShaderSource finds compiled shaders by name.
type ShaderSource interface {
	Shaders(name string) (ShaderSet, error)
}

type findFunc func(filename string) ([]byte, error)

func loadSet(name string, find findFunc) (ShaderSet, error) {
	set := ShaderSet{Name: name}
	var err error
	if set.Vertex, err = find(name + ".vert" + shaderSuffix); err != nil {
		return ShaderSet{}, errors.Wrapf(err, "core.Shaders(%s): vertex stage", name)
	}
	if set.Fragment, err = find(name + ".frag" + shaderSuffix); err != nil {
		return ShaderSet{}, errors.Wrapf(err, "core.Shaders(%s): fragment stage", name)
	}
	return set, nil
}

// DirectorySource loads shaders from a directory tree. Only compiled
// shaders are considered, a name found twice keeps the first file walked.
type DirectorySource struct {
	Dir string
}

// Shaders implements interface
func (d DirectorySource) Shaders(name string) (ShaderSet, error) {
	files := make(map[string]string)
	if err := filepath.Walk(d.Dir, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.IsDir() {
			return nil
		}
		if shader, typ := shaderTypeOf(f.Name()); shader == name && typ != UnknownShaderType {
			if _, ok := files[f.Name()]; !ok {
				files[f.Name()] = path
			}
		}
		return nil
	}); err != nil {
		return ShaderSet{}, errors.Wrapf(err, "core.Shaders(%s): walking %s", name, d.Dir)
	}
	return loadSet(name, func(filename string) ([]byte, error) {
		path, ok := files[filename]
		if !ok {
			return nil, errors.Newf("%s not found in %s", filename, d.Dir)
		}
		return os.ReadFile(path)
	})
}

// ArchiveSource loads shaders from a kar archive.
type ArchiveSource struct {
	Archive *kar.Archive
}

// Shaders implements interface
func (a ArchiveSource) Shaders(name string) (ShaderSet, error) {
	return loadSet(name, a.Archive.ReadAll)
}

// BoxSource loads shaders packed into the binary.
type BoxSource struct {
	Box packr.Box
}

// Shaders implements interface
func (b BoxSource) Shaders(name string) (ShaderSet, error) {
	return loadSet(name, func(filename string) ([]byte, error) {
		if !b.Box.Has(filename) {
			return nil, errors.Newf("%s not packed", filename)
		}
		return b.Box.Find(filename)
	})
}
