// Command stanag-decode reads a stream of STANAG 4586 frames from files or
// stdin and prints one line per frame.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/telemetry-generator/internal/logging"
	"github.com/signalsfoundry/telemetry-generator/internal/observability"
	"github.com/signalsfoundry/telemetry-generator/protocol/stanag"
)

func main() {
	jsonOut := flag.Bool("json", false, "print frames as JSON lines")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (empty disables)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(os.Getenv), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	collector, err := observability.NewDecoderCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	inputs := flag.Args()
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}

	exit := 0
	for _, name := range inputs {
		sum, err := decodeInput(ctx, name, os.Stdout, *jsonOut, collector)
		log.Info(ctx, "decoded stream",
			logging.String("input", name),
			logging.Int("frames", sum.Frames),
			logging.Int("checksum_mismatches", sum.Mismatches),
		)
		if err != nil {
			log.Error(ctx, "stream desynchronised", logging.String("input", name), logging.Err(err))
			exit = 1
		}
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	observability.ShutdownWithTimeout(ctx, shutdownTracing, log)
	os.Exit(exit)
}

func decodeInput(ctx context.Context, name string, w io.Writer, jsonOut bool, collector *observability.DecoderCollector) (summary, error) {
	var r io.Reader = os.Stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return summary{}, err
		}
		defer f.Close()
		r = f
	}
	return decode(ctx, r, w, jsonOut, collector)
}

type summary struct {
	Frames     int
	Mismatches int
}

// frameRecord is the JSON shape of one decoded frame.
type frameRecord struct {
	Index      int              `json:"index"`
	Instance   uint32           `json:"instance"`
	Type       uint32           `json:"type"`
	Length     uint32           `json:"length"`
	StreamID   uint32           `json:"stream_id"`
	PacketSeq  uint32           `json:"packet_seq"`
	Checksum   uint32           `json:"checksum"`
	ChecksumOK bool             `json:"checksum_ok"`
	Position   *stanag.Position `json:"position,omitempty"`

	// PositionError explains why a type 2001 payload carries no position.
	PositionError string `json:"position_error,omitempty"`
}

// decode prints every frame in r. A checksum mismatch is reported and
// decoding continues; a framing error stops the stream and is returned.
func decode(ctx context.Context, r io.Reader, w io.Writer, jsonOut bool, collector *observability.DecoderCollector) (summary, error) {
	ctx, span := observability.Tracer().Start(ctx, "stanag.decode")
	defer span.End()

	var sum summary
	enc := json.NewEncoder(w)
	s := stanag.NewScanner(r)
	for s.Scan() {
		f := s.Frame()
		rec := frameRecord{
			Index:      sum.Frames,
			Instance:   f.Header.Instance,
			Type:       f.Header.Type,
			Length:     f.Header.Length,
			StreamID:   f.Header.StreamID,
			PacketSeq:  f.Header.PacketSeq,
			Checksum:   f.Checksum,
			ChecksumOK: f.Verify() == nil,
		}
		if f.Header.Type == stanag.MsgTypeVehicleSpecific1 {
			switch pos, err := stanag.PositionFromFrame(f); {
			case err != nil:
				rec.PositionError = err.Error()
			case !finite(pos):
				rec.PositionError = fmt.Sprintf("non-finite position lat=%v lon=%v hae=%v", pos.Lat, pos.Lon, pos.HAE)
			default:
				rec.Position = &pos
			}
		}
		sum.Frames++
		if !rec.ChecksumOK {
			sum.Mismatches++
		}
		collector.ObserveFrame(len(f.Payload), rec.ChecksumOK)

		var err error
		if jsonOut {
			err = enc.Encode(rec)
		} else {
			err = printFrame(w, rec, f)
		}
		if err != nil {
			return sum, err
		}
	}
	span.SetAttributes(
		attribute.Int("frames", sum.Frames),
		attribute.Int("checksum_mismatches", sum.Mismatches),
	)

	if err := s.Err(); err != nil {
		collector.IncParseErrors()
		span.RecordError(err)
		span.SetStatus(codes.Error, "desynchronised")
		return sum, fmt.Errorf("after %d frames: %w", sum.Frames, err)
	}
	return sum, nil
}

func printFrame(w io.Writer, rec frameRecord, f *stanag.Frame) error {
	status := "ok"
	if !rec.ChecksumOK {
		status = fmt.Sprintf("MISMATCH (computed %d)", f.ComputeChecksum())
	}
	_, err := fmt.Fprintf(w, "frame %d instance=%d type=%d stream=%d len=%d checksum=%d %s\n",
		rec.Index, rec.Instance, rec.Type, rec.StreamID, rec.Length, rec.Checksum, status)
	if err != nil {
		return err
	}
	if p := rec.Position; p != nil {
		_, err = fmt.Fprintf(w, "  agent=%q lat=%.7f lon=%.7f hae=%.1f\n", p.AgentID, p.Lat, p.Lon, p.HAE)
	} else if rec.PositionError != "" {
		_, err = fmt.Fprintf(w, "  no position: %s\n", rec.PositionError)
	}
	return err
}

// finite rejects payloads JSON cannot carry.
func finite(p stanag.Position) bool {
	hae := float64(p.HAE)
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lon) && !math.IsInf(p.Lon, 0) &&
		!math.IsNaN(hae) && !math.IsInf(hae, 0)
}

func serveMetrics(addr string, collector *observability.DecoderCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
