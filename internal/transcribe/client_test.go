package transcribe

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/decoding"
)

func TestSubmitMultipartFields(t *testing.T) {
	var gotNames []string
	var gotAudio []byte
	var gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		values := map[string]string{}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			gotNames = append(gotNames, part.FormName())
			if part.FormName() == "audio" {
				gotAudio = data
				gotFile = part.FileName()
			} else {
				values[part.FormName()] = string(data)
			}
		}
		if values["use_gpu"] != "0" || values["beam_width"] != "5" || values["language"] != "it" {
			t.Errorf("unexpected values %v", values)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":"hello"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL + "/"))
	resp, err := client.Submit(context.Background(), Request{
		FileName: "2025-01-01T00:00:00.000Z.wav",
		Audio:    []byte("RIFF-data"),
		Options:  decoding.Options{Method: decoding.MethodBeam, BeamWidth: 5, Language: "it"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.StatusCode != 200 || string(resp.Body) != `{"results":"hello"}` {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, resp.Body)
	}

	want := []string{"audio", "use_gpu", "beam_width", "patience", "temperature", "best_of", "language"}
	if strings.Join(gotNames, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected field order %v", gotNames)
	}
	if string(gotAudio) != "RIFF-data" || gotFile != "2025-01-01T00:00:00.000Z.wav" {
		t.Fatalf("unexpected audio part %q %q", gotAudio, gotFile)
	}
}

func TestSubmitReturnsServerErrorsAsResponses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"decode failed"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(WithBaseURL(srv.URL)).Submit(context.Background(), Request{FileName: "a.wav", Audio: []byte("x")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError || string(resp.Body) != `{"error":"decode failed"}` {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, resp.Body)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls.Load())
	}
}

func TestSubmitDecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte(`{"results":"zipped"}`))
		_ = gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	resp, err := NewClient(WithBaseURL(srv.URL)).Submit(context.Background(), Request{FileName: "a.wav", Audio: []byte("x")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if string(resp.Body) != `{"results":"zipped"}` {
		t.Fatalf("unexpected body %s", resp.Body)
	}
}

func TestSubmitDecodesDeflate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		_, _ = zw.Write([]byte(`{"results":"deflated"}`))
		_ = zw.Close()
		w.Header().Set("Content-Encoding", "deflate")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	resp, err := NewClient(WithBaseURL(srv.URL)).Submit(context.Background(), Request{FileName: "a.wav", Audio: []byte("x")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if string(resp.Body) != `{"results":"deflated"}` {
		t.Fatalf("unexpected body %s", resp.Body)
	}
}

func TestTimeoutKeepsConfiguredClient(t *testing.T) {
	transport := &http.Transport{}
	custom := &http.Client{Transport: transport}
	c := NewClient(WithHTTPClient(custom), WithTimeout(3*time.Second))
	if c.httpClient.Transport != transport {
		t.Fatalf("timeout must not drop the configured transport")
	}
	if c.httpClient.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", c.httpClient.Timeout)
	}
	if custom.Timeout != 0 {
		t.Fatalf("caller's client must not be mutated")
	}

	if d := NewClient(WithTimeout(time.Second)); d.httpClient == http.DefaultClient || http.DefaultClient.Timeout != 0 {
		t.Fatalf("timeout must apply to a copy of the default client")
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewClient(WithBaseURL(url)).Submit(context.Background(), Request{FileName: "a.wav", Audio: []byte("x")}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestSubmitRejectsEmptyAudio(t *testing.T) {
	if _, err := NewClient().Submit(context.Background(), Request{FileName: "a.wav"}); err == nil {
		t.Fatalf("expected error for empty audio")
	}
}

func TestURL(t *testing.T) {
	c := NewClient(WithBaseURL("http://asr.local:5000/"), WithPath("predict"))
	if c.URL() != "http://asr.local:5000/predict" {
		t.Fatalf("unexpected url %s", c.URL())
	}
}
