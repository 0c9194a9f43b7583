// Package runtimetest provides an in-process model runtime for tests. It
// speaks the real wire protocol and answers with deterministic data.
package runtimetest

import (
	"errors"
	"math"
	"net"
	"sync"
	"testing"

	"github.com/cozy-creator/audio-adapters/internal/mlruntime"
	"github.com/cozy-creator/audio-adapters/pkg/tcpclient"

	"github.com/vmihailenco/msgpack/v5"
)

const DefaultFeatureCount = 768

type Server struct {
	ln net.Listener

	mu sync.Mutex
	// Probe is returned by the probe command.
	Probe mlruntime.ProbeResult
	// FeatureCount is the length of the vector returned by embed.
	FeatureCount int
	Transcription mlruntime.Transcription
	// Failures maps a command to the error message it answers with.
	Failures map[mlruntime.Command]string

	requests []mlruntime.Request
	loaded   map[string]mlruntime.LoadRequest
	unloaded int
}

// NewServer starts a server on 127.0.0.1 and stops it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("runtimetest: listen: %v", err)
	}

	s := &Server{
		ln: ln,
		Probe: mlruntime.ProbeResult{
			RuntimeVersion:   "3.11.9",
			FrameworkVersion: "2.3.1",
		},
		FeatureCount:  DefaultFeatureCount,
		Transcription: mlruntime.Transcription{Text: "HELLO WORLD", Confidence: 12.5},
		Failures:      map[mlruntime.Command]string{},
		loaded:        map[string]mlruntime.LoadRequest{},
	}

	go s.acceptLoop()
	t.Cleanup(func() { ln.Close() })

	return s
}

// WithAccelerator makes probe report a CUDA device.
func (s *Server) WithAccelerator() *Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Probe.Accelerators = []mlruntime.Accelerator{{
		Device:        "cuda",
		Name:          "NVIDIA A10G",
		MemTotal:      24 << 30,
		MemAllocated:  0,
		DriverVersion: "12.1",
	}}
	return s
}

func (s *Server) WithFeatureCount(n int) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.FeatureCount = n
	return s
}

func (s *Server) Fail(cmd mlruntime.Command, msg string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Failures[cmd] = msg
	return s
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Requests() []mlruntime.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]mlruntime.Request(nil), s.requests...)
}

// Commands lists the commands received so far, in order.
func (s *Server) Commands() []mlruntime.Command {
	var cmds []mlruntime.Command
	for _, req := range s.Requests() {
		cmds = append(cmds, req.Command)
	}
	return cmds
}

// Loaded is the number of handles loaded and not yet unloaded.
func (s *Server) Loaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.loaded)
}

func (s *Server) Unloaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.unloaded
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	for {
		frame, err := tcpclient.ReadFrame(conn)
		if err != nil {
			return
		}

		var (
			req  mlruntime.Request
			resp *mlruntime.Response
		)
		if err := msgpack.Unmarshal(frame, &req); err != nil {
			resp = errorResponse(err)
		} else {
			resp = s.handle(&req)
		}

		data, err := msgpack.Marshal(resp)
		if err != nil {
			return
		}
		if err := tcpclient.WriteFrame(conn, data); err != nil {
			return
		}
	}
}

func (s *Server) handle(req *mlruntime.Request) *mlruntime.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, *req)
	if msg, ok := s.Failures[req.Command]; ok {
		return errorResponse(errors.New(msg))
	}

	switch req.Command {
	case mlruntime.CommandProbe:
		probe := s.Probe
		return &mlruntime.Response{Status: mlruntime.StatusOK, Probe: &probe}

	case mlruntime.CommandLoad:
		if req.Load == nil || req.Handle == "" {
			return errorResponse(errors.New("load request is incomplete"))
		}
		s.loaded[req.Handle] = *req.Load
		return &mlruntime.Response{
			Status: mlruntime.StatusOK,
			Handle: &mlruntime.HandleInfo{
				ID:            req.Handle,
				Device:        req.Load.Device,
				Quantization:  req.Load.Quantization,
				HalfPrecision: req.Load.HalfPrecision,
			},
		}

	case mlruntime.CommandUnload:
		if _, ok := s.loaded[req.Handle]; !ok {
			return errorResponse(errors.New("unknown handle"))
		}
		delete(s.loaded, req.Handle)
		s.unloaded++
		return &mlruntime.Response{Status: mlruntime.StatusOK}

	case mlruntime.CommandGenerate:
		load, ok := s.loaded[req.Handle]
		if !ok || req.Generate == nil {
			return errorResponse(errors.New("unknown handle"))
		}
		if load.Kind != mlruntime.KindTextToAudio {
			return errorResponse(errors.New("model cannot generate audio"))
		}
		return &mlruntime.Response{Status: mlruntime.StatusOK, Waveforms: synthesize(req.Generate)}

	case mlruntime.CommandTranscribe:
		if _, ok := s.loaded[req.Handle]; !ok || req.Audio == nil {
			return errorResponse(errors.New("unknown handle"))
		}
		tr := s.Transcription
		return &mlruntime.Response{Status: mlruntime.StatusOK, Transcription: &tr}

	case mlruntime.CommandEmbed:
		if _, ok := s.loaded[req.Handle]; !ok || req.Audio == nil {
			return errorResponse(errors.New("unknown handle"))
		}
		features := make([]float32, s.FeatureCount)
		for i := range features {
			features[i] = float32(i) / 100
		}
		return &mlruntime.Response{Status: mlruntime.StatusOK, Features: features}
	}

	return errorResponse(errors.New("unknown command " + string(req.Command)))
}

// synthesize returns a 440 Hz tone of the requested length per batch item.
func synthesize(req *mlruntime.GenerateRequest) [][]float32 {
	batch := req.BatchSize
	if batch < 1 {
		batch = 1
	}
	n := int(math.Round(req.Duration * float64(req.SampleRate)))

	waves := make([][]float32, batch)
	for b := range waves {
		wave := make([]float32, n)
		for i := range wave {
			wave[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(req.SampleRate)))
		}
		waves[b] = wave
	}
	return waves
}

func errorResponse(err error) *mlruntime.Response {
	return &mlruntime.Response{Status: mlruntime.StatusError, Error: err.Error()}
}
