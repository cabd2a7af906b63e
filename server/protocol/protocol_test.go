package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

var raw = []byte("GET /api/v1/users/profile?id=12345 HTTP/1.1\r\n" +
	"Host: localhost:8080\r\n" +
	"User-Agent: Mozilla/5.0 (X11; Linux x86_64)\r\n" +
	"Accept: application/json\r\n" +
	"Connection: keep-alive\r\n" +
	"\r\n")

func BenchmarkFeed(b *testing.B) {
	p := NewParser(0)

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Reset()
		if err := p.Feed(raw); err != nil {
			b.Fatal(err)
		}
		if _, err := p.Target(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFeedByteByByte(b *testing.B) {
	p := NewParser(0)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Reset()
		for i := range raw {
			p.Feed(raw[i : i+1])
		}
	}
}

func Test_parser_all_cases(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		expectDone   bool
		expectTarget string
		expectError  error
	}{
		{
			name:         "valid get request",
			raw:          "GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n",
			expectDone:   true,
			expectTarget: "/index.html",
		},
		{
			name:         "bare lf terminator",
			raw:          "GET /a/b.txt HTTP/1.0\nHost: x\n\n",
			expectDone:   true,
			expectTarget: "/a/b.txt",
		},
		{
			name:         "root path",
			raw:          "GET / HTTP/1.1\r\n\r\n",
			expectDone:   true,
			expectTarget: "/",
		},
		{
			name:        "incomplete request",
			raw:         "GET /partial HTTP/1.1\r\nHost: local",
			expectDone:  false,
			expectError: nil,
			// target is still extractable from what we have
			expectTarget: "/partial",
		},
		{
			name:        "no get token",
			raw:         "POST /form HTTP/1.1\r\n\r\n",
			expectDone:  true,
			expectError: ErrUnknownRequest,
		},
		{
			name:        "get without slash",
			raw:         "GET index.html HTTP/1.1\r\n\r\n",
			expectDone:  true,
			expectError: ErrNoTarget,
		},
		{
			name:        "get without space after path",
			raw:         "GET /nospace\r\n\r\n",
			expectDone:  true,
			expectError: ErrBrokenRequest,
		},
		{
			name:        "empty",
			raw:         "",
			expectDone:  false,
			expectError: ErrUnknownRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(0)
			if err := p.Feed([]byte(tt.raw)); err != nil {
				t.Fatalf("unexpected feed error: %v", err)
			}

			if p.Complete() != tt.expectDone {
				t.Errorf("expected complete=%v, got %v", tt.expectDone, p.Complete())
			}

			target, err := p.Target()
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
				if target != nil {
					t.Errorf("expected no target, got %q", target)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(target) != tt.expectTarget {
				t.Errorf("wrong target: got %q, want %q", target, tt.expectTarget)
			}
		})
	}
}

func TestParserCompletesInAnySplit(t *testing.T) {
	reqs := []string{
		"GET /index.html HTTP/1.1\r\nHost: www.example.com\r\n\r\n",
		"GET /x HTTP/1.0\n\n",
		"junk\r\n\r\n",
		"\n\n",
	}

	for _, req := range reqs {
		for size := 1; size <= len(req); size++ {
			t.Run(fmt.Sprintf("%q/%d", req, size), func(t *testing.T) {
				whole := NewParser(0)
				whole.Feed([]byte(req))

				p := NewParser(0)
				for i := 0; i < len(req); i += size {
					end := min(i+size, len(req))
					p.Feed([]byte(req[i:end]))
				}

				if !p.Complete() {
					t.Fatal("parser is not complete")
				}

				wt, werr := whole.Target()
				ct, cerr := p.Target()
				if !bytes.Equal(wt, ct) || !errors.Is(cerr, werr) {
					t.Errorf("chunked target %q (%v) != whole target %q (%v)", ct, cerr, wt, werr)
				}
			})
		}
	}
}

func TestParserNeverCompletesWithoutBlankLine(t *testing.T) {
	req := "GET /index.html HTTP/1.1\r\nHost: x\r\nAccept: */*\r\n"

	p := NewParser(0)
	for i := 0; i < len(req); i++ {
		p.Feed([]byte{req[i]})
		if p.Complete() {
			t.Fatalf("complete after %d bytes", i+1)
		}
	}
}

func TestParserZeroLengthFeeds(t *testing.T) {
	p := NewParser(0)
	p.Feed(nil)
	p.Feed([]byte("GET /a HTTP/1.1\r\n"))
	p.Feed([]byte{})
	p.Feed([]byte("\r\n"))

	if !p.Complete() {
		t.Fatal("parser is not complete")
	}
	if target, _ := p.Target(); string(target) != "/a" {
		t.Errorf("wrong target %q", target)
	}
}

func TestParserFrozenAfterComplete(t *testing.T) {
	p := NewParser(0)
	p.Feed([]byte("GET /first HTTP/1.1\r\n\r\n"))
	n := p.Len()

	p.Feed([]byte("GET /second HTTP/1.1\r\n\r\n"))
	if p.Len() != n {
		t.Errorf("buffer grew after completion: %d -> %d", n, p.Len())
	}
}

func TestParserHeaderLimit(t *testing.T) {
	p := NewParser(16)

	var err error
	for i := 0; i < 8; i++ {
		if err = p.Feed([]byte("abcd")); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrHeaderTooLarge) {
		t.Fatalf("expected %v, got %v", ErrHeaderTooLarge, err)
	}
	if p.Complete() {
		t.Error("oversized request must not be complete")
	}
}

func TestParserLimitNotHitWhenTerminated(t *testing.T) {
	req := "GET /" + strings.Repeat("a", 32) + " HTTP/1.1\r\n\r\n"
	p := NewParser(16)

	if err := p.Feed([]byte(req)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Complete() {
		t.Fatal("parser is not complete")
	}
}

func TestParserReset(t *testing.T) {
	p := NewParser(0)
	p.Feed([]byte("GET /a HTTP/1.1\r\n\r\n"))
	p.Reset()

	if p.Complete() || p.Len() != 0 {
		t.Fatal("reset left state behind")
	}
	p.Feed([]byte("GET /b HTTP/1.1\r\n\r\n"))
	if target, _ := p.Target(); string(target) != "/b" {
		t.Errorf("wrong target %q", target)
	}
}
