// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"
)

func TestAddAndWrite(t *testing.T) {
	builder, err := NewBuilder(Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	var wg sync.WaitGroup
	for name, s := range map[string]string{
		"test":  "idunvovkjnreovmegihjbrqlkmfrjnb",
		"test2": "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb",
	} {
		wg.Add(1)
		go func(name, s string) {
			defer wg.Done()
			if err := builder.Add(name, bytes.NewReader([]byte(s))); err != nil {
				t.Error(err)
			}
		}(name, s)
	}
	wg.Wait()

	if len(builder.files) != 2 {
		t.Error("incorrect number of files present")
	}

	var data []byte
	buf := bytes.NewBuffer(data)
	if written, err := builder.WriteTo(buf); err != nil {
		t.Error(err)
	} else if written != int64(buf.Len()) {
		t.Errorf("written %d, buffered %d", written, buf.Len())
	}
}

func TestCloseRemovesTemp(t *testing.T) {
	builder, err := NewBuilder(Header{Author: "devblok"})
	if err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("a", bytes.NewReader([]byte("a"))); err != nil {
		t.Fatal(err)
	}
	if err := builder.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(builder.tempDir); !os.IsNotExist(err) {
		t.Errorf("temp dir %s still present", builder.tempDir)
	}
}

func TestHeaderSizeRoundTrip(t *testing.T) {
	for _, n := range []int64{1, 127, 128, 1 << 20} {
		got, err := binaryToint64(int64ToBinary(n))
		if err != nil {
			t.Fatal(err)
		}
		if got != n {
			t.Errorf("got %d, want %d", got, n)
		}
	}
}
