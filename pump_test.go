//go:build unix

package shpipe

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"
)

func TestCursorChunksInOrder(t *testing.T) {
	cur := inputCursor{data: []byte("abcdefghij")}
	if got := string(cur.next(4)); got != "abcd" {
		t.Fatalf("unexpected first chunk: %q", got)
	}
	cur.advance(4)
	if got := string(cur.next(4)); got != "efgh" {
		t.Fatalf("unexpected second chunk: %q", got)
	}
	cur.advance(4)
	if got := string(cur.next(4)); got != "ij" {
		t.Fatalf("unexpected tail chunk: %q", got)
	}
	cur.advance(2)
	if !cur.done() {
		t.Fatalf("cursor not done after consuming all input")
	}
	if got := cur.next(4); len(got) != 0 {
		t.Fatalf("expected empty chunk at end, got %q", got)
	}
}

func TestCursorPartialWriteRetriesExactRemainder(t *testing.T) {
	data := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	cur := inputCursor{data: data}

	// Simulate a sink that accepts fewer bytes than offered, with a
	// varying acceptance pattern. The reassembled stream must equal
	// the input exactly: no byte duplicated, none skipped.
	var got []byte
	accept := []int{1, 3, 2, 5, 1, 4}
	i := 0
	for !cur.done() {
		chunk := cur.next(8)
		if len(chunk) == 0 {
			t.Fatalf("empty chunk before cursor done")
		}
		k := accept[i%len(accept)]
		if k > len(chunk) {
			k = len(chunk)
		}
		got = append(got, chunk[:k]...)
		cur.advance(k)
		i++
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("partial-write reassembly mismatch: got %q want %q", got, data)
	}
}

// startEcho wires two pipe pairs to a fake child that copies its stdin
// to its stdout verbatim and closes both when the input ends. Returns
// the ends the pump owns.
func startEcho(t *testing.T) (stdin *os.File, stdout *os.File, done chan struct{}) {
	t.Helper()
	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdin pipe: %v", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	done = make(chan struct{})
	go func() {
		io.Copy(outW, inR)
		outW.Close()
		inR.Close()
		close(done)
	}()
	return inW, outR, done
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	return data
}

func TestPumpEchoRoundTrip(t *testing.T) {
	// 256 KiB exceeds the kernel pipe buffer, forcing partial writes
	// and read/write interleaving.
	for _, size := range []int{0, 1, chunkSize - 1, chunkSize, chunkSize + 1, 256 * 1024} {
		input := pattern(size)
		stdin, stdout, done := startEcho(t)
		out, err := pump(stdin, stdout, input, nil)
		if err != nil {
			t.Fatalf("pump failed at size %d: %v", size, err)
		}
		if !bytes.Equal(out, input) {
			t.Fatalf("round trip mismatch at size %d: got %d bytes want %d", size, len(out), len(input))
		}
		<-done
	}
}

func TestPumpChildClosesStdoutEarly(t *testing.T) {
	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdin pipe: %v", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 10)
		io.ReadFull(inR, buf)
		outW.Write([]byte("partial"))
		outW.Close()
		inR.Close()
		close(done)
	}()

	finished := make(chan struct{})
	var out []byte
	go func() {
		out, err = pump(inW, outR, pattern(512*1024), nil)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not terminate after child closed stdout")
	}
	if err != nil {
		t.Fatalf("pump failed: %v", err)
	}
	if string(out) != "partial" {
		t.Fatalf("unexpected output: %q", out)
	}
	<-done
}

func TestPumpBrokenPipeKeepsDraining(t *testing.T) {
	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdin pipe: %v", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	done := make(chan struct{})
	go func() {
		// Close the stdin read end immediately: every pump write from
		// now on hits a broken pipe.
		inR.Close()
		outW.Write([]byte("hello "))
		time.Sleep(20 * time.Millisecond)
		outW.Write([]byte("world"))
		outW.Close()
		close(done)
	}()

	out, err := pump(inW, outR, pattern(1<<20), nil)
	if err != nil {
		t.Fatalf("pump failed on broken pipe: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output after broken pipe: %q", out)
	}
	<-done
}

func TestPumpNoStdin(t *testing.T) {
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	go func() {
		outW.Write([]byte("read-only"))
		outW.Close()
	}()
	out, err := pump(nil, outR, nil, nil)
	if err != nil {
		t.Fatalf("pump failed: %v", err)
	}
	if string(out) != "read-only" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPumpEmptyInputClosesStdinImmediately(t *testing.T) {
	stdin, stdout, done := startEcho(t)
	out, err := pump(stdin, stdout, []byte{}, nil)
	if err != nil {
		t.Fatalf("pump failed: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no output, got %q", out)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("child never saw stdin EOF")
	}
}

func TestPumpClosedStdoutReportsError(t *testing.T) {
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	outW.Close()
	outR.Close()
	if _, err := pump(nil, outR, nil, nil); err == nil {
		t.Fatal("expected error for closed stdout handle")
	}
}
