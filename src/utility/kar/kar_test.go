// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/utility/kar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func build(t *testing.T, files map[string]string) []byte {
	t.Helper()
	builder, err := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	require.NoError(t, err)
	defer builder.Close()

	for name, content := range files {
		require.NoError(t, builder.Add(name, strings.NewReader(content)))
	}

	buf := bytes.NewBuffer([]byte{})
	written, err := builder.WriteTo(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), written)
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	data := build(t, map[string]string{"test": testString1, "test2": testString2})

	ar, err := kar.Open(bytes.NewReader(data))
	require.NoError(t, err)

	f, err := ar.Open("test2")
	require.NoError(t, err)
	assert.Equal(t, int64(len(testString2)), f.Size())

	result, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, testString2, string(result))
}

func TestCreateAndReadAll(t *testing.T) {
	data := build(t, map[string]string{"test": testString1, "test2": testString2})

	ar, err := kar.Open(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"test", "test2"}, ar.Names())
	assert.Equal(t, "devblok", ar.Header().Author)

	f, err := ar.ReadAll("test")
	require.NoError(t, err)
	assert.Equal(t, testString1, string(f))
}

func TestOpenMissing(t *testing.T) {
	data := build(t, map[string]string{"test": testString1})

	ar, err := kar.Open(bytes.NewReader(data))
	require.NoError(t, err)

	assert.False(t, ar.Has("nope"))
	_, err = ar.ReadAll("nope")
	assert.True(t, errors.Is(err, kar.ErrNotFound))
}

func TestOpenNotKar(t *testing.T) {
	_, err := kar.Open(strings.NewReader("PK\x03\x04 definitely a zip"))
	assert.True(t, errors.Is(err, kar.ErrFileFormat))

	_, err = kar.Open(strings.NewReader("KA"))
	assert.True(t, errors.Is(err, kar.ErrFileFormat))
}

func TestOpenFileMapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opentest.kar")
	data := build(t, map[string]string{
		"test/test1.txt": "this is a test",
		"test/test2.txt": "this is another test",
	})
	require.NoError(t, os.WriteFile(path, data, 0644))

	ar, err := kar.OpenFile(path)
	require.NoError(t, err)
	defer ar.Close()

	f, err := ar.ReadAll("test/test1.txt")
	require.NoError(t, err)
	assert.Equal(t, "this is a test", string(f))

	f, err = ar.ReadAll("test/test2.txt")
	require.NoError(t, err)
	assert.Equal(t, "this is another test", string(f))
}

func TestEmptyEntry(t *testing.T) {
	data := build(t, map[string]string{"empty": "", "full": testString1})

	ar, err := kar.Open(bytes.NewReader(data))
	require.NoError(t, err)

	f, err := ar.ReadAll("empty")
	require.NoError(t, err)
	assert.Empty(t, f)

	f, err = ar.ReadAll("full")
	require.NoError(t, err)
	assert.Equal(t, testString1, string(f))
}

func BenchmarkReadAll(b *testing.B) {
	builder, err := kar.NewBuilder(kar.Header{Author: "devblok", Version: 1})
	if err != nil {
		b.Fatal(err)
	}
	defer builder.Close()
	builder.Add("bench", bytes.NewReader(bytes.Repeat([]byte(testString2), 1000)))

	buf := bytes.NewBuffer([]byte{})
	if _, err := builder.WriteTo(buf); err != nil {
		b.Fatal(err)
	}
	ar, err := kar.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for idx := 0; idx < b.N; idx++ {
		ar.ReadAll("bench")
	}
}
